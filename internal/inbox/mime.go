package inbox

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// parseEntity walks a MIME tree, filling the message bodies and text
// attachments.
func parseEntity(entity *message.Entity, msg *Message) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return fmt.Errorf("failed to read part: %w", err)
			}
			if err := parseEntity(part, msg); err != nil {
				return err
			}
		}
	}

	contentType, _, _ := entity.Header.ContentType()
	disposition, params, _ := entity.Header.ContentDisposition()

	if disposition == "attachment" || params["filename"] != "" {
		if !isText(contentType) {
			return nil
		}
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return fmt.Errorf("failed to read attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    params["filename"],
			ContentType: contentType,
			Text:        string(content),
		})
		return nil
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}

	switch {
	case strings.EqualFold(contentType, "text/html"):
		if msg.HTMLBody == "" {
			msg.HTMLBody = string(content)
		}
	case contentType == "" || strings.EqualFold(contentType, "text/plain"):
		if msg.Body == "" {
			msg.Body = string(content)
		}
	}
	return nil
}

// parseRaw parses a complete RFC 5322 message.
func parseRaw(r io.Reader, msg *Message) error {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("failed to read message: %w", err)
	}
	if msg.Subject == "" {
		if subject, err := entity.Header.Text("Subject"); err == nil {
			msg.Subject = subject
		}
	}
	if msg.From == "" {
		msg.From = entity.Header.Get("From")
	}
	return parseEntity(entity, msg)
}
