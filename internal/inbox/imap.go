package inbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/config"
)

// IMAPFetcher reads the INBOX over IMAP
type IMAPFetcher struct {
	client    *client.Client
	lastCheck time.Time
	lastUID   uint32
}

// NewIMAPFetcher connects and logs in to the IMAP server
func NewIMAPFetcher(cfg config.InboxConfig) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:    c,
		lastCheck: time.Now().Add(-24 * time.Hour),
	}, nil
}

// FetchNewEmails returns the messages with a UID above the last one seen.
// IMAP SINCE has day granularity, so older UIDs are filtered out here.
func (f *IMAPFetcher) FetchNewEmails(ctx context.Context) ([]Message, error) {
	if _, err := f.client.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = f.lastCheck

	uids, err := f.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	fresh := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if uid > f.lastUID {
			fresh = append(fresh, uid)
		}
	}
	if len(fresh) == 0 {
		f.lastCheck = time.Now()
		return []Message{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(fresh...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(fresh))
	done := make(chan error, 1)
	go func() {
		done <- f.client.UidFetch(seqset, items, messages)
	}()

	var emails []Message
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		email, err := parseIMAPMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message %d: %v", msg.Uid, err)
			continue
		}
		emails = append(emails, email)
		if msg.Uid > f.lastUID {
			f.lastUID = msg.Uid
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.lastCheck = time.Now()
	return emails, nil
}

func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (Message, error) {
	email := Message{ID: "imap-" + strconv.FormatUint(uint64(msg.Uid), 10)}

	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			email.ID = env.MessageId
		}
		email.Subject = env.Subject
		if len(env.From) > 0 {
			email.From = env.From[0].Address()
			email.FromName = env.From[0].PersonalName
		}
		for _, addr := range env.To {
			email.To = append(email.To, addr.Address())
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return email, fmt.Errorf("failed to get message body")
	}
	if err := parseRaw(r, &email); err != nil {
		return email, err
	}
	return email, nil
}

// Close logs out of the IMAP server
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}
