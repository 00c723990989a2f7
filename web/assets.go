package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var Assets embed.FS

func Templates() (fs.FS, error) {
	return fs.Sub(Assets, "templates")
}
