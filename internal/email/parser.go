package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	apperrors "github.io/infrasutra/disposeme/internal/errors"
)

// Parse turns a raw RFC 822 message into an Email. It fails only on
// structurally invalid input; missing optional headers never error. Inline and
// related parts feed the body, only parts explicitly disposed as attachments
// are surfaced in Attachments.
func Parse(raw []byte) (*Email, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedMessage, err)
	}

	parsed := &Email{
		To:          []Address{},
		Cc:          []Address{},
		Bcc:         []Address{},
		Received:    time.Unix(0, 0).UTC(),
		Attachments: []Attachment{},
	}

	if subject, err := reader.Header.Subject(); err == nil {
		parsed.Subject = subject
	}
	if date, err := reader.Header.Date(); err == nil && !date.IsZero() {
		parsed.Received = date
	}

	if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		from := newAddress(fromList[0].Address, fromList[0].Name)
		parsed.From = &from
	}
	parsed.To = headerAddresses(reader, "To")
	parsed.Cc = headerAddresses(reader, "Cc")
	parsed.Bcc = headerAddresses(reader, "Bcc")

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedMessage, err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				if parsed.Text == "" {
					parsed.Text = string(body)
				} else {
					parsed.Text += "\n" + string(body)
				}
			case strings.HasPrefix(mediaType, "text/html"):
				if parsed.HTML == "" {
					parsed.HTML = string(body)
				} else {
					parsed.HTML += "\n" + string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			if strings.TrimSpace(filename) == "" {
				filename = "attachment"
			}
			contentType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(body)),
				Content:     body,
			})
		}
	}

	return parsed, nil
}

func headerAddresses(reader *mail.Reader, field string) []Address {
	addresses := []Address{}
	list, err := reader.Header.AddressList(field)
	if err != nil {
		return addresses
	}
	for _, addr := range list {
		addresses = append(addresses, newAddress(addr.Address, addr.Name))
	}
	return addresses
}
