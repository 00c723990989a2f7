package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.io/infrasutra/disposeme/internal/config"
	apperrors "github.io/infrasutra/disposeme/internal/errors"
	"github.io/infrasutra/disposeme/internal/inbox"
	"github.io/infrasutra/disposeme/internal/ingest"
	"github.io/infrasutra/disposeme/internal/store"
	"github.io/infrasutra/disposeme/internal/token"
)

const testToken = "testtoken1234567890abcdef"

type memIndex struct {
	entries map[string]map[string]store.Entry
}

func newMemIndex() *memIndex {
	return &memIndex{entries: map[string]map[string]store.Entry{}}
}

func (m *memIndex) Put(_ context.Context, entry store.Entry) error {
	if m.entries[entry.Username] == nil {
		m.entries[entry.Username] = map[string]store.Entry{}
	}
	m.entries[entry.Username][entry.ID] = entry
	return nil
}

func (m *memIndex) Query(_ context.Context, username string, sentAfter int64, limit int) ([]store.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []store.Entry
	for _, entry := range m.entries[username] {
		if entry.ReceivedAt > sentAfter {
			out = append(out, entry)
		}
	}
	// insertion order is good enough for single-entry tests; multi-entry
	// ordering is covered by the sqlite store tests
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ReceivedAt > out[i].ReceivedAt {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memIndex) Exists(_ context.Context, username, id string) (bool, error) {
	_, ok := m.entries[username][id]
	return ok, nil
}

func (m *memIndex) Delete(_ context.Context, username, id string) (bool, error) {
	if _, ok := m.entries[username][id]; !ok {
		return false, nil
	}
	delete(m.entries[username], id)
	return true, nil
}

func (m *memIndex) Referenced(_ context.Context, id string) (bool, error) {
	for _, byID := range m.entries {
		if _, ok := byID[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

type memBlobs struct {
	blobs map[string][]byte
	putAt map[string]time.Time
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: map[string][]byte{}, putAt: map[string]time.Time{}}
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, apperrors.ErrBlobNotFound
	}
	return data, nil
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte) error {
	m.blobs[key] = data
	m.putAt[key] = time.Now()
	return nil
}

func (m *memBlobs) Copy(ctx context.Context, src, dst string) error {
	data, err := m.Get(ctx, src)
	if err != nil {
		return err
	}
	return m.Put(ctx, dst, data)
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	delete(m.blobs, key)
	delete(m.putAt, key)
	return nil
}

func (m *memBlobs) ListOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	var keys []string
	for key, at := range m.putAt {
		if !at.After(cutoff) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type testEnv struct {
	server *Server
	index  *memIndex
	blobs  *memBlobs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		Domain:        "example.com",
		APIToken:      testToken,
		EmailTTLDays:  1,
		CookieTTLDays: 30,
		InboxBlacklist: []string{
			"Admin",
		},
		FilterRecipientDomain: true,
		IngestRPS:             1000,
		IngestBurst:           1000,
	}
	index := newMemIndex()
	blobs := newMemBlobs()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := inbox.Resolver{Domain: cfg.Domain, FilterDomain: true}
	processor := ingest.NewProcessor(blobs, index, resolver, cfg.EmailTTLDays, logger)
	server, err := NewServer(cfg, index, blobs, processor, logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return &testEnv{server: server, index: index, blobs: blobs}
}

func (e *testEnv) request(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, body)
	r.Header.Set(token.Name, testToken)
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, r)
	return w
}

func rawTestMessage() string {
	return strings.Join([]string{
		"From: Sender <sender@other.org>",
		"To: tester@example.com",
		"Subject: test subject",
		"Date: Mon, 01 Jan 2024 00:00:00 +0000",
		"Content-Type: text/plain",
		"",
		"hello body",
	}, "\r\n")
}

func seedMessage(t *testing.T, env *testEnv, username, id string, receivedAt int64) {
	t.Helper()
	env.blobs.blobs[id] = []byte(rawTestMessage())
	err := env.index.Put(context.Background(), store.Entry{
		Username:   username,
		ID:         id,
		Sender:     "sender@other.org",
		Subject:    "test subject",
		ReceivedAt: receivedAt,
		ExpireAt:   receivedAt + 86400,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestAuthorizationRequired(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodGet, "/inbox/tester?type=json", nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("no token: status = %d, want 403", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/inbox/tester?type=json", nil)
	r.Header.Set(token.Name, "wrong")
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("bad token: status = %d, want 403", w.Code)
	}
}

func TestTokenAcceptedFromAnyCarrier(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodGet, "/inbox/tester?type=json&"+token.Name+"="+testToken, nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("query token: status = %d, want 200", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/inbox/tester?type=json", nil)
	r.AddCookie(&http.Cookie{Name: token.Name, Value: testToken})
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("cookie token: status = %d, want 200", w.Code)
	}
}

func TestListJSON(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)
	seedMessage(t, env, "tester", "m2", 200)

	w := env.request(t, http.MethodGet, "/inbox/tester?type=json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload struct {
		Emails []emailListItem `json:"emails"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Emails) != 2 {
		t.Fatalf("emails = %d, want 2", len(payload.Emails))
	}
	if payload.Emails[0].ID != "m2" {
		t.Fatalf("first email = %s, want newest m2", payload.Emails[0].ID)
	}

	w = env.request(t, http.MethodGet, "/inbox/tester?type=json&sentAfter=150", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Emails) != 1 || payload.Emails[0].ID != "m2" {
		t.Fatalf("sentAfter filter returned %+v", payload.Emails)
	}
}

func TestListNormalizesUsername(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)

	w := env.request(t, http.MethodGet, "/inbox/Te.sTer+tag?type=json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var payload struct {
		Emails []emailListItem `json:"emails"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Emails) != 1 {
		t.Fatalf("emails = %d, want 1 after normalization", len(payload.Emails))
	}
}

func TestListValidation(t *testing.T) {
	env := newTestEnv(t)

	// too short after normalization
	w := env.request(t, http.MethodGet, "/inbox/ab?type=json", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short username: status = %d, want 422", w.Code)
	}

	// blacklisted, matched case-insensitively after normalization
	w = env.request(t, http.MethodGet, "/inbox/ad.min?type=json", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blacklisted username: status = %d, want 422", w.Code)
	}
}

func TestShowJSON(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)

	w := env.request(t, http.MethodGet, "/inbox/tester/m1?type=json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var payload struct {
		Email *emailDetail `json:"email"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Email == nil || payload.Email.ID != "m1" {
		t.Fatalf("email = %+v", payload.Email)
	}
	if payload.Email.Subject != "test subject" || payload.Email.Body != "hello body" {
		t.Fatalf("email = %+v", payload.Email)
	}
	if payload.Email.From == nil || payload.Email.From.Address != "sender@other.org" {
		t.Fatalf("from = %+v", payload.Email.From)
	}
}

func TestShowNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/inbox/tester/nope?type=json", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestShowContentMissing(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)
	delete(env.blobs.blobs, "m1")

	w := env.request(t, http.MethodGet, "/inbox/tester/m1?type=json", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when entry exists but blob is gone", w.Code)
	}
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)

	w := env.request(t, http.MethodGet, "/inbox/tester/m1/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "message/rfc822" {
		t.Fatalf("Content-Type = %q", got)
	}
	if w.Body.String() != rawTestMessage() {
		t.Fatalf("body mismatch")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)

	w := env.request(t, http.MethodDelete, "/inbox/tester/m1/delete?type=json", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("first delete: status = %d, want 204", w.Code)
	}

	w = env.request(t, http.MethodDelete, "/inbox/tester/m1/delete?type=json", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", w.Code)
	}
}

func TestDeleteReclaimsOrphanedBlob(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)

	w := env.request(t, http.MethodDelete, "/inbox/tester/m1/delete?type=json", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", w.Code)
	}
	if _, ok := env.blobs.blobs["m1"]; ok {
		t.Fatal("blob m1 survived deleting its only inbox entry")
	}
}

func TestDeleteKeepsSharedBlob(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)
	seedMessage(t, env, "other", "m1", 100)

	w := env.request(t, http.MethodDelete, "/inbox/tester/m1/delete?type=json", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", w.Code)
	}
	if _, ok := env.blobs.blobs["m1"]; !ok {
		t.Fatal("blob m1 reclaimed while another inbox still references it")
	}

	w = env.request(t, http.MethodDelete, "/inbox/other/m1/delete?type=json", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("second inbox delete: status = %d, want 204", w.Code)
	}
	if _, ok := env.blobs.blobs["m1"]; ok {
		t.Fatal("blob m1 survived deleting its last inbox entry")
	}
}

func TestFeedSkipsUnparseable(t *testing.T) {
	env := newTestEnv(t)
	seedMessage(t, env, "tester", "m1", 100)
	seedMessage(t, env, "tester", "m2", 200)
	env.blobs.blobs["m2"] = []byte("no colon here\r\nbroken\r\n\r\nbody")

	w := env.request(t, http.MethodGet, "/inbox/tester/feed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); !strings.Contains(got, "application/rss+xml") {
		t.Fatalf("Content-Type = %q", got)
	}
	body := w.Body.String()
	if !strings.Contains(body, "m1") {
		t.Fatalf("feed misses parseable message: %s", body)
	}
	if strings.Contains(body, ">m2<") {
		t.Fatalf("feed contains unparseable message: %s", body)
	}
	if strings.Count(body, "<item>") != 1 {
		t.Fatalf("feed item count = %d, want 1", strings.Count(body, "<item>"))
	}
}

func TestIngestFlow(t *testing.T) {
	env := newTestEnv(t)
	env.blobs.blobs["m1"] = []byte(rawTestMessage())

	w := env.request(t, http.MethodPost, "/ingest", strings.NewReader(`{"messageId":"m1"}`))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body.String())
	}

	exists, _ := env.index.Exists(context.Background(), "tester", "m1")
	if !exists {
		t.Fatal("ingest did not write the inbox entry")
	}
}

func TestIngestMissingBlob(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/ingest", strings.NewReader(`{"messageId":"nope"}`))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestIngestRaw(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/ingest/raw", strings.NewReader(rawTestMessage()))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var payload struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.MessageID == "" {
		t.Fatal("no messageId in response")
	}

	exists, _ := env.index.Exists(context.Background(), "tester", payload.MessageID)
	if !exists {
		t.Fatal("raw ingest did not file the message")
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
}
