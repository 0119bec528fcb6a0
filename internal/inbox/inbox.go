// Package inbox fetches new messages from the configured mailbox.
package inbox

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/model"
)

// Message is one fetched email
type Message struct {
	ID          string
	Subject     string
	From        string
	FromName    string
	To          []string
	Body        string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is the decoded text of one attachment. Binary attachments are
// skipped during parsing.
type Attachment struct {
	Filename    string
	ContentType string
	Text        string
}

// Fetcher returns messages received since the previous call.
type Fetcher interface {
	FetchNewEmails(ctx context.Context) ([]Message, error)
	Close() error
}

// Payload converts the message into the pipeline input.
func (m Message) Payload() model.EmailPayload {
	body := m.Body
	if strings.TrimSpace(body) == "" {
		body = htmlToText(m.HTMLBody)
	}

	sender, name := m.From, m.FromName
	if addr, err := mail.ParseAddress(m.From); err == nil {
		sender = addr.Address
		if name == "" {
			name = addr.Name
		}
	}

	texts := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if strings.TrimSpace(a.Text) != "" {
			texts = append(texts, a.Text)
		}
	}

	return model.EmailPayload{
		Subject:         m.Subject,
		Body:            body,
		SenderEmail:     strings.ToLower(sender),
		SenderName:      name,
		AttachmentTexts: texts,
	}
}

// NewFetcher creates the fetcher for cfg.Provider
func NewFetcher(ctx context.Context, cfg config.InboxConfig) (Fetcher, error) {
	switch cfg.Provider {
	case "gmail":
		f, err := NewGmailFetcher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "imap":
		f, err := NewIMAPFetcher(cfg)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported inbox provider %q", cfg.Provider)
	}
}

func isText(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "text/")
}
