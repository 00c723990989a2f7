package email

import (
	"strings"
	"time"
)

// Address is one parsed mailbox. User and Host are empty when the mailbox
// string could not be split into local and domain parts.
type Address struct {
	Address     string `json:"address"`
	User        string `json:"user"`
	Host        string `json:"host"`
	DisplayName string `json:"displayName"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}

// Email is the parsed form of a raw message. It is derived on every read and
// never persisted.
type Email struct {
	From        *Address     `json:"from"`
	To          []Address    `json:"to"`
	Cc          []Address    `json:"cc"`
	Bcc         []Address    `json:"bcc"`
	Subject     string       `json:"subject"`
	Text        string       `json:"-"`
	HTML        string       `json:"-"`
	Received    time.Time    `json:"received"`
	Attachments []Attachment `json:"attachments"`
}

// Body returns the best available body: rendered HTML when present, plain
// text otherwise, empty string when the message had neither. The precedence
// is fixed.
func (e *Email) Body() string {
	if e.HTML != "" {
		return e.HTML
	}
	return e.Text
}

func (e *Email) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// SenderAddress returns the sender mailbox string, empty when the message had
// no From header.
func (e *Email) SenderAddress() string {
	if e.From == nil {
		return ""
	}
	return e.From.Address
}

func newAddress(addr, displayName string) Address {
	parsed := Address{Address: addr, DisplayName: displayName}
	at := strings.LastIndex(addr, "@")
	if at > 0 && at < len(addr)-1 {
		parsed.User = addr[:at]
		parsed.Host = addr[at+1:]
	}
	return parsed
}
