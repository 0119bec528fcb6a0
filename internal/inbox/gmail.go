package inbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mail-to-quote-go/internal/config"
)

// GmailFetcher reads the mailbox through the Gmail API
type GmailFetcher struct {
	service   *gmail.Service
	userEmail string
	lastCheck time.Time
}

// NewGmailFetcher creates a Gmail API client from a stored refresh token
func NewGmailFetcher(ctx context.Context, cfg config.InboxConfig) (*GmailFetcher, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailFetcher{
		service:   service,
		userEmail: cfg.UserEmail,
		lastCheck: time.Now().Add(-24 * time.Hour),
	}, nil
}

// FetchNewEmails lists messages received after the previous check
func (f *GmailFetcher) FetchNewEmails(ctx context.Context) ([]Message, error) {
	started := time.Now()
	query := fmt.Sprintf("after:%d", f.lastCheck.Unix())

	var emails []Message
	err := f.service.Users.Messages.List(f.userEmail).Q(query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, ref := range resp.Messages {
			msg, err := f.service.Users.Messages.Get(f.userEmail, ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				logrus.Warnf("Failed to get message %s: %v", ref.Id, err)
				continue
			}
			email, err := f.parseGmailMessage(ctx, msg)
			if err != nil {
				logrus.Warnf("Failed to parse message %s: %v", ref.Id, err)
				continue
			}
			emails = append(emails, email)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	f.lastCheck = started
	return emails, nil
}

func (f *GmailFetcher) parseGmailMessage(ctx context.Context, msg *gmail.Message) (Message, error) {
	email := Message{ID: msg.Id}
	if msg.Payload == nil {
		return email, fmt.Errorf("message has no payload")
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.From = header.Value
		case "To":
			for _, to := range strings.Split(header.Value, ",") {
				email.To = append(email.To, strings.TrimSpace(to))
			}
		}
	}

	if err := f.parseGmailPart(ctx, msg.Id, msg.Payload, &email); err != nil {
		return email, err
	}
	return email, nil
}

// parseGmailPart walks the part tree. Text attachments are downloaded
// separately because Gmail only inlines small bodies.
func (f *GmailFetcher) parseGmailPart(ctx context.Context, msgID string, part *gmail.MessagePart, email *Message) error {
	if part.Filename != "" {
		if !isText(part.MimeType) || part.Body == nil {
			return nil
		}
		data := part.Body.Data
		if data == "" && part.Body.AttachmentId != "" {
			att, err := f.service.Users.Messages.Attachments.Get(f.userEmail, msgID, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("failed to download attachment %s: %w", part.Filename, err)
			}
			data = att.Data
		}
		text, err := decodeGmailData(data)
		if err != nil {
			return err
		}
		email.Attachments = append(email.Attachments, Attachment{
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Text:        text,
		})
		return nil
	}

	if part.Body != nil && part.Body.Data != "" {
		content, err := decodeGmailData(part.Body.Data)
		if err != nil {
			return err
		}
		switch part.MimeType {
		case "text/plain":
			if email.Body == "" {
				email.Body = content
			}
		case "text/html":
			if email.HTMLBody == "" {
				email.HTMLBody = content
			}
		}
	}

	for _, sub := range part.Parts {
		if err := f.parseGmailPart(ctx, msgID, sub, email); err != nil {
			return err
		}
	}
	return nil
}

func decodeGmailData(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail sometimes omits padding
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode body data: %w", err)
		}
	}
	return string(decoded), nil
}

// Close is a no-op; the Gmail client holds no connection.
func (f *GmailFetcher) Close() error {
	return nil
}
