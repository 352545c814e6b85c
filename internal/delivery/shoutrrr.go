package delivery

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"digestd/internal/digest"
)

// ShoutrrrSender delivers through one shoutrrr service URL (smtp, discord,
// gotify, ...). SMTP channels get the HTML rendering; everything else gets
// plain text.
type ShoutrrrSender struct {
	name   string
	title  string
	html   bool
	sender *router.ServiceRouter
}

// NewShoutrrrSender validates the URL by building the router up front, so a
// bad channel URL fails at startup rather than at the first digest.
func NewShoutrrrSender(name, serviceURL, title string, timeout time.Duration) (*ShoutrrrSender, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("channel name is required")
	}
	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		// Never echo the URL itself; it can carry credentials.
		return nil, fmt.Errorf("channel %s: invalid service URL: %w", name, err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrSender{
		name:   name,
		title:  title,
		html:   strings.HasPrefix(serviceURL, "smtp://") || strings.HasPrefix(serviceURL, "smtps://"),
		sender: sender,
	}, nil
}

func (s *ShoutrrrSender) Name() string { return s.name }

func (s *ShoutrrrSender) Send(ctx context.Context, r digest.Rendered) error {
	_ = ctx // the router enforces its own timeout

	body := r.Plain
	params := stypes.Params{}
	params.SetTitle(Subject(s.title, r))
	if s.html {
		body = r.HTML
		params["UseHTML"] = "yes"
	}

	for _, err := range s.sender.Send(body, &params) {
		if err != nil {
			return fmt.Errorf("channel %s: %w", s.name, err)
		}
	}
	return nil
}

// SendError carries a short plain-text failure notice.
func (s *ShoutrrrSender) SendError(ctx context.Context, msg string) error {
	_ = ctx

	params := stypes.Params{}
	params.SetTitle(s.title + " - run failed")
	for _, err := range s.sender.Send(msg, &params) {
		if err != nil {
			return fmt.Errorf("channel %s: %w", s.name, err)
		}
	}
	return nil
}
