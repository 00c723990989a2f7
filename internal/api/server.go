package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.io/infrasutra/disposeme/internal/blob"
	"github.io/infrasutra/disposeme/internal/config"
	apperrors "github.io/infrasutra/disposeme/internal/errors"
	"github.io/infrasutra/disposeme/internal/inbox"
	"github.io/infrasutra/disposeme/internal/store"
	"github.io/infrasutra/disposeme/internal/token"
	webassets "github.io/infrasutra/disposeme/web"
)

// Index is the inbox-index capability the read surface depends on.
type Index interface {
	Query(ctx context.Context, username string, sentAfter int64, limit int) ([]store.Entry, error)
	Exists(ctx context.Context, username, id string) (bool, error)
	Delete(ctx context.Context, username, id string) (bool, error)
	Referenced(ctx context.Context, id string) (bool, error)
}

// Ingestor drives one stored message through the ingestion pipeline.
type Ingestor interface {
	Process(ctx context.Context, messageID string) error
}

type Server struct {
	cfg           config.Config
	index         Index
	blobs         blob.Store
	ingestor      Ingestor
	authorizer    *token.Authorizer
	blacklist     map[string]struct{}
	logger        *slog.Logger
	mux           *http.ServeMux
	templates     *template.Template
	ingestLimiter *rate.Limiter
}

func NewServer(cfg config.Config, index Index, blobs blob.Store, ingestor Ingestor, logger *slog.Logger) (*Server, error) {
	templatesFS, err := webassets.Templates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	templates, err := template.ParseFS(templatesFS, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	blacklist := make(map[string]struct{}, len(cfg.InboxBlacklist))
	for _, name := range cfg.InboxBlacklist {
		blacklist[inbox.Normalize(name)] = struct{}{}
	}

	server := &Server{
		cfg:           cfg,
		index:         index,
		blobs:         blobs,
		ingestor:      ingestor,
		authorizer:    token.NewAuthorizer(cfg.APIToken),
		blacklist:     blacklist,
		logger:        logger,
		templates:     templates,
		ingestLimiter: rate.NewLimiter(rate.Limit(cfg.IngestRPS), cfg.IngestBurst),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", server.handleRoot)
	mux.HandleFunc("/logout", server.handleLogout)
	mux.HandleFunc("/inbox", server.handleInboxShell)
	mux.HandleFunc("/inbox/", server.handleInbox)
	mux.HandleFunc("/ingest", server.handleIngest)
	mux.HandleFunc("/ingest/raw", server.handleIngestRaw)
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)
	server.mux = mux
	return server, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.renderNotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleIndex(w, r)
	case http.MethodPost:
		s.handleAuth(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(token.Name); err == nil && cookie.Value != "" {
		http.Redirect(w, r, "/inbox", http.StatusFound)
		return
	}
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.renderTemplate(w, http.StatusOK, "index.html", nil)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderValidationError(w, r, apperrors.NewValidationError(
			apperrors.FieldError{Field: "token", Message: "invalid form body"},
		))
		return
	}
	value := strings.TrimSpace(r.PostFormValue("token"))
	if value == "" || !isAlphanumeric(value) {
		s.renderValidationError(w, r, apperrors.NewValidationError(
			apperrors.FieldError{Field: "token", Message: "token must be alphanumeric"},
		))
		return
	}
	remember := r.PostFormValue("remember") == "on"
	token.SetAuthCookie(w, value, remember, time.Now(), s.cfg.CookieTTLDays)
	http.Redirect(w, r, "/inbox", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token.ClearAuthCookies(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleInboxShell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.renderTemplate(w, http.StatusOK, "inbox.html", nil)
}

// handleInbox dispatches /inbox/{username}[/...] paths.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/inbox/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.renderNotFound(w, r)
		return
	}
	username := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleList(w, r, username)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch parts[1] {
		case "latest":
			s.handleLatest(w, r, username)
		case "feed":
			s.handleFeed(w, r, username)
		default:
			s.handleShow(w, r, username, parts[1])
		}
		return
	}

	if len(parts) == 3 {
		id := parts[1]
		switch parts[2] {
		case "download":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.handleDownload(w, r, username, id)
			return
		case "delete":
			if r.Method != http.MethodGet && r.Method != http.MethodDelete {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.handleDelete(w, r, username, id)
			return
		}
	}

	s.renderNotFound(w, r)
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if err := s.authorizer.Authorize(r); err != nil {
		s.renderForbidden(w, r)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ready")
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (s *Server) renderTemplate(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template", "template", name, "error", err)
	}
}

func responseType(r *http.Request) string {
	if r.URL.Query().Get("type") == "json" {
		return "json"
	}
	return "html"
}
