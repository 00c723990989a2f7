package api

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.io/infrasutra/disposeme/internal/email"
	apperrors "github.io/infrasutra/disposeme/internal/errors"
	"github.io/infrasutra/disposeme/internal/feed"
	"github.io/infrasutra/disposeme/internal/pagination"
	"github.io/infrasutra/disposeme/internal/token"
)

const feedFetchConcurrency = 4

type emailListItem struct {
	ID             string `json:"id"`
	From           string `json:"from"`
	Subject        string `json:"subject"`
	Received       string `json:"received"`
	HasAttachments bool   `json:"hasAttachments"`
}

type attachmentSummary struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type emailDetail struct {
	ID          string              `json:"id"`
	From        *email.Address      `json:"from"`
	To          []email.Address     `json:"to"`
	Cc          []email.Address     `json:"cc"`
	Bcc         []email.Address     `json:"bcc"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	Received    string              `json:"received"`
	Attachments []attachmentSummary `json:"attachments"`
}

type listPage struct {
	Username string
	Token    string
	Emails   []emailListItem
}

type emailPage struct {
	Username string
	Token    string
	Email    *emailView
}

type emailView struct {
	ID          string
	Subject     string
	From        string
	Received    string
	Body        template.HTML
	Attachments []attachmentSummary
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, username string) {
	normalized, verr := s.validUsername(username)
	if verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}
	params := pagination.FromQuery(r.URL.Query())

	entries, err := s.index.Query(r.Context(), normalized, params.SentAfter, params.Limit)
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}

	items := make([]emailListItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, emailListItem{
			ID:             entry.ID,
			From:           entry.Sender,
			Subject:        entry.Subject,
			Received:       time.Unix(entry.ReceivedAt, 0).UTC().Format(time.RFC3339),
			HasAttachments: entry.HasAttachments,
		})
	}

	if params.Type == "json" {
		s.respondJSON(w, http.StatusOK, map[string]any{"emails": items})
		return
	}
	s.renderTemplate(w, http.StatusOK, "list.html", listPage{
		Username: normalized,
		Token:    token.FromRequest(r),
		Emails:   items,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request, username string) {
	normalized, verr := s.validUsername(username)
	if verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}
	params := pagination.FromQuery(r.URL.Query())

	// latest always looks at a single entry regardless of the limit param
	entries, err := s.index.Query(r.Context(), normalized, params.SentAfter, 1)
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}

	var detail *emailDetail
	if len(entries) > 0 {
		parsed, err := s.fetchAndParse(r, entries[0].ID)
		if err == nil {
			detail = toDetail(entries[0].ID, parsed)
		}
	}

	if params.Type == "json" {
		s.respondJSON(w, http.StatusOK, map[string]any{"email": detail})
		return
	}
	s.renderTemplate(w, http.StatusOK, "email.html", emailPage{
		Username: normalized,
		Token:    token.FromRequest(r),
		Email:    toView(detail),
	})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request, username, id string) {
	normalized, verr := s.validRequest(username, id)
	if verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}

	parsed, err := s.fetchMessage(r, normalized, id)
	if errors.Is(err, apperrors.ErrMessageNotFound) {
		s.renderNotFound(w, r)
		return
	}
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}

	detail := toDetail(id, parsed)
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusOK, map[string]any{"email": detail})
		return
	}
	s.renderTemplate(w, http.StatusOK, "email.html", emailPage{
		Username: normalized,
		Token:    token.FromRequest(r),
		Email:    toView(detail),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, username, id string) {
	normalized, verr := s.validRequest(username, id)
	if verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}

	exists, err := s.index.Exists(r.Context(), normalized, id)
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}
	if !exists {
		s.renderNotFound(w, r)
		return
	}

	raw, err := s.blobs.Get(r.Context(), id)
	if err != nil {
		s.renderServerError(w, r, fmt.Errorf("%w: %v", apperrors.ErrContentMissing, err))
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.eml", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, username, id string) {
	normalized, verr := s.validRequest(username, id)
	if verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}

	deleted, err := s.index.Delete(r.Context(), normalized, id)
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}
	if !deleted {
		s.renderNotFound(w, r)
		return
	}
	s.reclaimBlob(r, id)

	if responseType(r) == "json" || r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/inbox/"+username+"?"+r.URL.RawQuery, http.StatusFound)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, username string) {
	normalized, verr := s.validUsername(username)
	if verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}

	entries, err := s.index.Query(r.Context(), normalized, 0, pagination.DefaultLimit)
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}

	// Fetch and parse blobs concurrently; a message that fails either step is
	// skipped rather than failing the whole feed.
	parsed := make([]*email.Email, len(entries))
	group, ctx := errgroup.WithContext(r.Context())
	group.SetLimit(feedFetchConcurrency)
	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			raw, err := s.blobs.Get(ctx, entry.ID)
			if err != nil {
				s.logger.Warn("feed: fetch message", "messageId", entry.ID, "error", err)
				return nil
			}
			message, err := email.Parse(raw)
			if err != nil {
				s.logger.Warn("feed: parse message", "messageId", entry.ID, "error", err)
				return nil
			}
			parsed[i] = message
			return nil
		})
	}
	_ = group.Wait()

	messages := make([]feed.Message, 0, len(entries))
	for i, entry := range entries {
		if parsed[i] == nil {
			continue
		}
		messages = append(messages, feed.Message{ID: entry.ID, Email: parsed[i]})
	}

	rss, err := feed.RSS(messages, normalized, token.FromRequest(r), s.cfg.Domain, time.Now())
	if err != nil {
		s.renderServerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rss))
}

// reclaimBlob deletes the raw message once no inbox entry, for any user,
// references it. Without this a user-deleted message whose rows never reach
// expiry would keep its blob on disk forever; the expiry sweep only sees ids
// that still have rows. Failures are logged, not surfaced: the sweep's
// unreferenced-blob pass picks up anything missed here.
func (s *Server) reclaimBlob(r *http.Request, id string) {
	referenced, err := s.index.Referenced(r.Context(), id)
	if err != nil {
		s.logger.Warn("reclaim check", "messageId", id, "error", err)
		return
	}
	if referenced {
		return
	}
	if err := s.blobs.Delete(r.Context(), id); err != nil {
		s.logger.Warn("reclaim blob", "messageId", id, "error", err)
	}
}

// fetchAndParse loads a raw message and parses it. Parsing happens lazily on
// every read; nothing derived is persisted.
func (s *Server) fetchAndParse(r *http.Request, id string) (*email.Email, error) {
	raw, err := s.blobs.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return email.Parse(raw)
}

// fetchMessage resolves a message the caller addressed directly. A missing
// entry is ErrMessageNotFound; an entry whose raw body cannot be fetched or
// parsed is ErrContentMissing, store inconsistency rather than a bad request.
func (s *Server) fetchMessage(r *http.Request, username, id string) (*email.Email, error) {
	exists, err := s.index.Exists(r.Context(), username, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrMessageNotFound, id)
	}
	parsed, err := s.fetchAndParse(r, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrContentMissing, err)
	}
	return parsed, nil
}

func toDetail(id string, parsed *email.Email) *emailDetail {
	attachments := make([]attachmentSummary, 0, len(parsed.Attachments))
	for _, attachment := range parsed.Attachments {
		attachments = append(attachments, attachmentSummary{
			Filename:    attachment.Filename,
			ContentType: attachment.ContentType,
			Size:        attachment.Size,
		})
	}
	return &emailDetail{
		ID:          id,
		From:        parsed.From,
		To:          parsed.To,
		Cc:          parsed.Cc,
		Bcc:         parsed.Bcc,
		Subject:     parsed.Subject,
		Body:        parsed.Body(),
		Received:    parsed.Received.UTC().Format(time.RFC3339),
		Attachments: attachments,
	}
}

func toView(detail *emailDetail) *emailView {
	if detail == nil {
		return nil
	}
	from := ""
	if detail.From != nil {
		from = detail.From.Address
	}
	return &emailView{
		ID:          detail.ID,
		Subject:     detail.Subject,
		From:        from,
		Received:    detail.Received,
		Body:        template.HTML(detail.Body),
		Attachments: detail.Attachments,
	}
}
