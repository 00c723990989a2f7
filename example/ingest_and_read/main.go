// Command ingest_and_read exercises a running disposeme instance end to end:
// it submits a raw message through /ingest/raw, lists the recipient inboxes,
// reads the newest message back and deletes it.
//
// Configure with DISPOSEME_URL (default http://localhost:3080) and
// DISPOSEME_TOKEN (the instance's API token).
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type ingestResponse struct {
	MessageID string `json:"messageId"`
}

type listResponse struct {
	Emails []struct {
		ID             string `json:"id"`
		From           string `json:"from"`
		Subject        string `json:"subject"`
		Received       string `json:"received"`
		HasAttachments bool   `json:"hasAttachments"`
	} `json:"emails"`
}

type latestResponse struct {
	Email *struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	} `json:"email"`
}

func main() {
	baseURL := getenvDefault("DISPOSEME_URL", "http://localhost:3080")
	token := os.Getenv("DISPOSEME_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "DISPOSEME_TOKEN is required")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	userA := "test.one+demo"
	userB := "testtwo"

	fmt.Println("Submitting test message...")
	resp := mustDo(client, token, "POST", baseURL+"/ingest/raw",
		strings.NewReader(string(buildTestMessage("Demo message", userA, userB))))
	var ingested ingestResponse
	mustDecode(resp, &ingested)
	fmt.Println("Stored as", ingested.MessageID)

	// userA normalizes to "testone": sub-address suffix and dots are dropped
	for _, username := range []string{"testone", userB} {
		resp = mustDo(client, token, "GET", baseURL+"/inbox/"+username+"?type=json", nil)
		var listing listResponse
		mustDecode(resp, &listing)
		fmt.Printf("Inbox %s: %d message(s)\n", username, len(listing.Emails))
		for _, email := range listing.Emails {
			fmt.Printf("- %s from=%s subject=%q\n", email.ID, email.From, email.Subject)
		}
	}

	resp = mustDo(client, token, "GET", baseURL+"/inbox/testone/latest?type=json", nil)
	var latest latestResponse
	mustDecode(resp, &latest)
	if latest.Email != nil {
		fmt.Printf("Latest for testone: %q\n", latest.Email.Subject)
	}

	fmt.Println("Deleting the message from testone...")
	resp = mustDo(client, token, "DELETE", baseURL+"/inbox/testone/"+ingested.MessageID+"/delete?type=json", nil)
	_ = resp.Body.Close()
	fmt.Println("Done")
}

func buildTestMessage(subject string, recipients ...string) []byte {
	domain := getenvDefault("DISPOSEME_DOMAIN", "localhost")
	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, r+"@"+domain)
	}
	lines := []string{
		"From: Demo Sender <sender@example.org>",
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello!",
		"",
		"This is a disposeme demo message.",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func mustDo(client *http.Client, token, method, url string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		panic(err)
	}
	req.Header.Set("x-api-key", token)
	resp, err := client.Do(req)
	if err != nil {
		panic(err)
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		panic(fmt.Sprintf("request failed: %s %s: %d %s", method, url, resp.StatusCode, string(b)))
	}
	return resp
}

func mustDecode(resp *http.Response, v any) {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		panic(err)
	}
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
