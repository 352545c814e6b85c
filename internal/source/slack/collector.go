// Package slack collects unread channel and DM messages through the Slack
// Web API (conversations.list, conversations.history, users.info).
package slack

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"digestd/internal/digest"
	"digestd/internal/source"
	logx "digestd/pkg/logx"
)

// Config carries everything the collector needs from the config file.
type Config struct {
	Token string
	// Window bounds how far back history is fetched when no checkpoint
	// exists.
	Window  time.Duration
	Timeout time.Duration
}

type Collector struct {
	client *client
	log    logx.Logger
	since  source.SinceFunc
	window time.Duration

	// userNames caches users.info lookups across runs. Collect is never
	// called concurrently for the same collector, so no lock.
	userNames map[string]string
}

func New(cfg Config, since source.SinceFunc, log logx.Logger) (*Collector, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, source.ConfigError(digest.SourceSlack, fmt.Errorf("token is required"))
	}
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Collector{
		client:    newClient(cfg.Token, cfg.Timeout),
		log:       log.With(logx.String("source", string(digest.SourceSlack))),
		since:     since,
		window:    window,
		userNames: map[string]string{},
	}, nil
}

func (c *Collector) ID() digest.SourceID { return digest.SourceSlack }

// Collect lists the conversations the token can see and fetches each one's
// history newer than the checkpoint. Items that cannot be mapped to a valid
// Message (no author, empty text, bot noise) are skipped one by one, never
// failing the whole call.
func (c *Collector) Collect(ctx context.Context) ([]digest.Message, error) {
	oldest := time.Now().Add(-c.window)
	if c.since != nil {
		if t := c.since(ctx); !t.IsZero() && t.After(oldest) {
			oldest = t
		}
	}

	channels, err := c.listConversations(ctx)
	if err != nil {
		return nil, err
	}

	msgs := []digest.Message{}
	skipped := 0
	for _, ch := range channels {
		history, err := c.history(ctx, ch.ID, oldest)
		if err != nil {
			return nil, err
		}
		for _, raw := range history {
			m, ok := c.mapMessage(ctx, ch, raw)
			if !ok {
				skipped++
				continue
			}
			msgs = append(msgs, m)
		}
	}

	if skipped > 0 {
		c.log.Debug("skipped unmappable items", logx.Int("count", skipped))
	}
	return msgs, nil
}

func (c *Collector) listConversations(ctx context.Context) ([]channel, error) {
	var out []channel
	cursor := ""
	for {
		params := url.Values{
			"types":            {"public_channel,private_channel,im"},
			"exclude_archived": {"true"},
			"limit":            {"200"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp conversationsListResponse
		if err := c.client.get(ctx, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Channels...)
		cursor = resp.Meta.NextCursor
		if cursor == "" {
			return out, nil
		}
	}
}

func (c *Collector) history(ctx context.Context, channelID string, oldest time.Time) ([]historyMessage, error) {
	var out []historyMessage
	cursor := ""
	for {
		params := url.Values{
			"channel": {channelID},
			"oldest":  {slackTS(oldest)},
			"limit":   {"200"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp conversationsHistoryResponse
		if err := c.client.get(ctx, "conversations.history", params, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Messages...)
		if !resp.HasMore || resp.Meta.NextCursor == "" {
			return out, nil
		}
		cursor = resp.Meta.NextCursor
	}
}

// mapMessage turns one raw history item into a canonical Message. The bool
// result is false for items the digest should not carry: bot posts, channel
// joins and other subtyped events, and items missing required fields.
func (c *Collector) mapMessage(ctx context.Context, ch channel, raw historyMessage) (digest.Message, bool) {
	if raw.Type != "message" || raw.Subtype != "" || raw.BotID != "" {
		return digest.Message{}, false
	}
	if raw.User == "" || strings.TrimSpace(raw.Text) == "" {
		return digest.Message{}, false
	}
	ts, err := parseSlackTS(raw.TS)
	if err != nil {
		c.log.Debug("dropping item with bad timestamp",
			logx.String("channel", ch.ID), logx.String("ts", raw.TS))
		return digest.Message{}, false
	}

	typ := digest.TypeChannel
	detail := "#" + ch.Name
	if ch.IsIM {
		typ = digest.TypeDirect
		detail = "Direct Message"
	}

	return digest.Message{
		Source:       digest.SourceSlack,
		Sender:       c.userName(ctx, raw.User),
		SenderDetail: detail,
		Content:      raw.Text,
		Timestamp:    ts,
		Type:         typ,
	}, true
}

// userName resolves a user id to a display name, caching results. Lookup
// failures fall back to the raw id: a digest entry with an ugly sender beats
// a dropped message.
func (c *Collector) userName(ctx context.Context, userID string) string {
	if name, ok := c.userNames[userID]; ok {
		return name
	}
	var resp usersInfoResponse
	err := c.client.get(ctx, "users.info", url.Values{"user": {userID}}, &resp)
	if err != nil {
		c.log.Debug("users.info lookup failed", logx.String("user", userID), logx.Err(err))
		return userID
	}
	name := resp.User.Profile.DisplayName
	if name == "" {
		name = resp.User.RealName
	}
	if name == "" {
		name = resp.User.Name
	}
	if name == "" {
		name = userID
	}
	c.userNames[userID] = name
	return name
}

// slackTS renders a time as Slack's seconds.microseconds string.
func slackTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

func parseSlackTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, err
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}
