// Package mail collects unread messages from an IMAP mailbox.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"

	"digestd/internal/digest"
	"digestd/internal/source"
	logx "digestd/pkg/logx"
)

// Config carries the IMAP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS (usually port 993); when false the
	// connection starts plain and upgrades with STARTTLS.
	TLS     bool
	Mailbox string
	// Window bounds the search when no checkpoint exists.
	Window time.Duration
}

type Collector struct {
	cfg   Config
	log   logx.Logger
	since source.SinceFunc

	dial func(addr string) (*imapclient.Client, error)
}

func New(cfg Config, since source.SinceFunc, log logx.Logger) (*Collector, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, source.ConfigError(digest.SourceMail, fmt.Errorf("host is required"))
	}
	if strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return nil, source.ConfigError(digest.SourceMail, fmt.Errorf("username and password are required"))
	}
	if cfg.Port <= 0 {
		if cfg.TLS {
			cfg.Port = 993
		} else {
			cfg.Port = 143
		}
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}

	c := &Collector{
		cfg:   cfg,
		log:   log.With(logx.String("source", string(digest.SourceMail))),
		since: since,
	}
	c.dial = func(addr string) (*imapclient.Client, error) {
		if cfg.TLS {
			return imapclient.DialTLS(addr, nil)
		}
		return imapclient.DialStartTLS(addr, nil)
	}
	return c, nil
}

func (c *Collector) ID() digest.SourceID { return digest.SourceMail }

// Collect searches the mailbox for unseen messages newer than the
// checkpoint and maps them. Bodies are fetched with Peek so collection
// never flips the Seen flag.
func (c *Collector) Collect(ctx context.Context) ([]digest.Message, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	session, err := c.dial(addr)
	if err != nil {
		return nil, source.TransientError(digest.SourceMail, fmt.Errorf("dialing %s: %w", addr, err))
	}
	defer func() { _ = session.Logout().Wait() }()

	if err := session.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		return nil, source.AuthError(digest.SourceMail,
			fmt.Errorf("login rejected for %s: %w", c.cfg.Username, err))
	}

	if _, err := session.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		return nil, source.ConfigError(digest.SourceMail,
			fmt.Errorf("selecting %s: %w", c.cfg.Mailbox, err))
	}

	since := time.Now().Add(-c.cfg.Window)
	if c.since != nil {
		if t := c.since(ctx); !t.IsZero() && t.After(since) {
			since = t
		}
	}
	criteria := &imap.SearchCriteria{
		Since:   since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := session.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, source.TransientError(digest.SourceMail, fmt.Errorf("searching %s: %w", c.cfg.Mailbox, err))
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return []digest.Message{}, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := session.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msgs := []digest.Message{}
	skipped := 0
	for {
		raw := fetchCmd.Next()
		if raw == nil {
			break
		}
		buf, err := raw.Collect()
		if err != nil {
			skipped++
			continue
		}
		m, ok := mapEnvelope(buf)
		if !ok {
			skipped++
			continue
		}
		if body := textBody(buf.FindBodySection(bodySection)); body != "" {
			m.Content = m.Content + " - " + body
		}
		msgs = append(msgs, m)
	}
	if err := fetchCmd.Close(); err != nil {
		// Partial fetch still yields a digest; losing the tail beats
		// losing the run.
		c.log.Warn("fetch ended early", logx.Int("collected", len(msgs)), logx.Err(err))
	}

	if skipped > 0 {
		c.log.Debug("skipped unmappable envelopes", logx.Int("count", skipped))
	}
	return msgs, nil
}

// textBody extracts the text/plain part of a raw RFC 2822 message. A body
// that cannot be parsed yields ""; the subject alone still makes a valid
// digest entry.
func textBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		h, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(body))
	}
}

// mapEnvelope turns one fetched envelope into a canonical Message. Mail
// without a sender or date cannot be grouped or ordered and is skipped.
func mapEnvelope(buf *imapclient.FetchMessageBuffer) (digest.Message, bool) {
	if buf.Envelope == nil || len(buf.Envelope.From) == 0 {
		return digest.Message{}, false
	}
	if buf.Envelope.Date.IsZero() {
		return digest.Message{}, false
	}

	from := buf.Envelope.From[0]
	sender := from.Name
	if sender == "" {
		sender = from.Addr()
	}
	if sender == "" {
		return digest.Message{}, false
	}
	detail := from.Addr()
	if detail == "" {
		detail = sender
	}

	subject := strings.TrimSpace(buf.Envelope.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	return digest.Message{
		Source:       digest.SourceMail,
		Sender:       sender,
		SenderDetail: detail,
		Content:      subject,
		Timestamp:    buf.Envelope.Date.UTC(),
		Type:         digest.TypeEmail,
	}, true
}
