package feed

import (
	"strings"
	"testing"
	"time"

	"github.io/infrasutra/disposeme/internal/email"
)

func message(id, subject string, received time.Time) Message {
	return Message{
		ID: id,
		Email: &email.Email{
			From: &email.Address{
				Address:     "john.doe@example.com",
				User:        "john.doe",
				Host:        "example.com",
				DisplayName: "John Doe",
			},
			To: []email.Address{
				{Address: "jane@example.com", User: "jane", Host: "example.com"},
			},
			Cc: []email.Address{
				{Address: "copy@example.com", User: "copy", Host: "example.com"},
			},
			Subject:  subject,
			HTML:     "<p>" + subject + "</p>",
			Received: received,
		},
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	feed := Synthesize(nil, "tester", "secret-token", "example.com", now)
	if !feed.Updated.Equal(now) {
		t.Fatalf("Updated = %v, want now for empty inbox", feed.Updated)
	}
	if len(feed.Items) != 0 {
		t.Fatalf("Items = %d, want 0", len(feed.Items))
	}
	if feed.Link.Href != "https://example.com/inbox/tester?x-api-key=secret-token" {
		t.Fatalf("feed link = %q", feed.Link.Href)
	}
}

func TestSynthesizeItems(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	newest := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	older := newest.Add(-time.Hour)

	feed := Synthesize([]Message{
		message("m2", "newest", newest),
		message("m1", "older", older),
	}, "tester", "secret-token", "example.com", now)

	if !feed.Updated.Equal(newest) {
		t.Fatalf("Updated = %v, want newest received %v", feed.Updated, newest)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("Items = %d, want 2", len(feed.Items))
	}

	item := feed.Items[0]
	if item.Id != "m2" || item.Title != "newest" {
		t.Fatalf("item = %+v", item)
	}
	if item.Link.Href != "https://example.com/inbox/tester/m2?x-api-key=secret-token" {
		t.Fatalf("item link = %q", item.Link.Href)
	}
	if item.Content != "<p>newest</p>" {
		t.Fatalf("item content = %q", item.Content)
	}
	if item.Author == nil || item.Author.Name != "John Doe" || item.Author.Email != "john.doe@example.com" {
		t.Fatalf("item author = %+v", item.Author)
	}
	if !strings.Contains(item.Description, "jane@example.com") || !strings.Contains(item.Description, "copy@example.com") {
		t.Fatalf("description misses recipients: %q", item.Description)
	}
	if !item.Created.Equal(newest) {
		t.Fatalf("item date = %v", item.Created)
	}
}

func TestRSSRendering(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	received := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	rss, err := RSS([]Message{message("m1", "hello", received)}, "tester", "secret-token", "example.com", now)
	if err != nil {
		t.Fatalf("RSS failed: %v", err)
	}
	for _, want := range []string{
		`<rss version="2.0"`,
		"<title>Dispose Me</title>",
		"<title>hello</title>",
		"https://example.com/inbox/tester/m1?x-api-key=secret-token",
	} {
		if !strings.Contains(rss, want) {
			t.Errorf("rss output missing %q", want)
		}
	}
}

func TestSynthesizeNoSender(t *testing.T) {
	received := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	anonymous := Message{ID: "m1", Email: &email.Email{Subject: "anon", Received: received}}

	feed := Synthesize([]Message{anonymous}, "tester", "secret-token", "example.com", time.Now())
	if feed.Items[0].Author != nil {
		t.Fatalf("author = %+v, want nil for missing sender", feed.Items[0].Author)
	}
}
