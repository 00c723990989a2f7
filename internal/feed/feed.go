// Package feed renders a user's inbox as an RSS 2.0 syndication feed.
package feed

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"github.io/infrasutra/disposeme/internal/email"
	"github.io/infrasutra/disposeme/internal/token"
)

// Message pairs a stored message id with its parsed form. Callers skip
// messages that failed to parse before building the feed; a skipped message
// is simply absent, never an error.
type Message struct {
	ID    string
	Email *email.Email
}

// Synthesize builds the feed for one user. Deep links embed the resolved
// access token so feed readers can follow them without separate login, using
// the same credential resolution as the HTML pages. The feed's update time is
// the newest message's received time, or now when the inbox is empty.
func Synthesize(messages []Message, username, accessToken, domain string, now time.Time) *feeds.Feed {
	updated := now
	if len(messages) > 0 {
		updated = messages[0].Email.Received
	}

	feed := &feeds.Feed{
		Title:       "Dispose Me",
		Link:        &feeds.Link{Href: inboxLink(domain, username, accessToken)},
		Description: "Dispose Me is a simple disposable email service.",
		Copyright:   "Dispose Me",
		Updated:     updated,
	}

	for _, message := range messages {
		feed.Items = append(feed.Items, toItem(message, username, accessToken, domain))
	}
	return feed
}

// RSS renders the synthesized feed as RSS 2.0 XML.
func RSS(messages []Message, username, accessToken, domain string, now time.Time) (string, error) {
	rss, err := Synthesize(messages, username, accessToken, domain, now).ToRss()
	if err != nil {
		return "", fmt.Errorf("render rss: %w", err)
	}
	return rss, nil
}

func toItem(message Message, username, accessToken, domain string) *feeds.Item {
	parsed := message.Email
	item := &feeds.Item{
		Id:      message.ID,
		Title:   parsed.Subject,
		Link:    &feeds.Link{Href: messageLink(domain, username, message.ID, accessToken)},
		Content: parsed.Body(),
		Created: parsed.Received,
	}
	if parsed.From != nil {
		item.Author = &feeds.Author{
			Name:  authorName(*parsed.From),
			Email: parsed.From.Address,
		}
	}
	// RSS 2.0 has no contributor element; recipients ride along in the
	// description instead.
	item.Description = contributorLine(parsed)
	return item
}

func authorName(addr email.Address) string {
	if addr.DisplayName != "" {
		return addr.DisplayName
	}
	return addr.User
}

// contributorLine lists the union of to, cc and bcc.
func contributorLine(parsed *email.Email) string {
	all := make([]email.Address, 0, len(parsed.To)+len(parsed.Cc)+len(parsed.Bcc))
	all = append(all, parsed.To...)
	all = append(all, parsed.Cc...)
	all = append(all, parsed.Bcc...)
	if len(all) == 0 {
		return ""
	}
	line := "To:"
	for _, addr := range all {
		line += " " + addr.Address
	}
	return line
}

func inboxLink(domain, username, accessToken string) string {
	return fmt.Sprintf("https://%s/inbox/%s?%s=%s", domain, username, token.Name, accessToken)
}

func messageLink(domain, username, id, accessToken string) string {
	return fmt.Sprintf("https://%s/inbox/%s/%s?%s=%s", domain, username, id, token.Name, accessToken)
}
