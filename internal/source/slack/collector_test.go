package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"digestd/internal/digest"
	"digestd/internal/source"
	logx "digestd/pkg/logx"
)

// newTestCollector points a collector at a fake Web API.
func newTestCollector(t *testing.T, handler http.Handler) *Collector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{Token: "xoxb-test", Window: 24 * time.Hour}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.client.baseURL = srv.URL
	return c
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, nil, logx.Nop())
	if err == nil {
		t.Fatal("New accepted an empty token")
	}
	var se *source.Error
	if !errors.As(err, &se) || se.Category != source.CategoryConfig {
		t.Fatalf("err = %v, want config category", err)
	}
}

func TestCollectMapsChannelAndDirectMessages(t *testing.T) {
	ts := fmt.Sprintf("%d.000100", time.Date(2025, time.March, 14, 8, 0, 0, 0, time.UTC).Unix())

	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"channels":[
			{"id":"C1","name":"general"},
			{"id":"D1","name":"","is_im":true,"user":"U2"}
		],"response_metadata":{"next_cursor":""}}`)
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("channel") {
		case "C1":
			fmt.Fprintf(w, `{"ok":true,"messages":[
				{"type":"message","user":"U1","text":"deploy is done","ts":"%s"},
				{"type":"message","subtype":"channel_join","user":"U9","text":"joined","ts":"%s"},
				{"type":"message","bot_id":"B1","text":"automated noise","ts":"%s"},
				{"type":"message","user":"U1","text":"bad clock","ts":"not-a-ts"}
			],"has_more":false}`, ts, ts, ts)
		case "D1":
			fmt.Fprintf(w, `{"ok":true,"messages":[
				{"type":"message","user":"U2","text":"got a minute?","ts":"%s"}
			],"has_more":false}`, ts)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("user") {
		case "U1":
			fmt.Fprint(w, `{"ok":true,"user":{"id":"U1","name":"alice","real_name":"Alice Doe","profile":{"display_name":"alice"}}}`)
		case "U2":
			fmt.Fprint(w, `{"ok":true,"user":{"id":"U2","name":"bob","real_name":"Bob Roe","profile":{"display_name":""}}}`)
		default:
			fmt.Fprint(w, `{"ok":false,"error":"user_not_found"}`)
		}
	})

	c := newTestCollector(t, mux)
	msgs, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (bot/subtype/bad-ts skipped): %+v", len(msgs), msgs)
	}

	ch := msgs[0]
	if ch.Sender != "alice" || ch.SenderDetail != "#general" || ch.Type != digest.TypeChannel {
		t.Fatalf("channel message mapped wrong: %+v", ch)
	}
	if ch.Content != "deploy is done" {
		t.Fatalf("content = %q", ch.Content)
	}
	if err := ch.Validate(); err != nil {
		t.Fatalf("mapped message invalid: %v", err)
	}

	dm := msgs[1]
	if dm.Sender != "Bob Roe" || dm.SenderDetail != "Direct Message" || dm.Type != digest.TypeDirect {
		t.Fatalf("direct message mapped wrong: %+v", dm)
	}
}

func TestCollectPaginatesConversations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C1","name":"one"}],"response_metadata":{"next_cursor":"page2"}}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C2","name":"two"}],"response_metadata":{"next_cursor":""}}`)
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"messages":[],"has_more":false}`)
	})

	c := newTestCollector(t, mux)
	channels, err := c.listConversations(context.Background())
	if err != nil {
		t.Fatalf("listConversations: %v", err)
	}
	if len(channels) != 2 || channels[0].ID != "C1" || channels[1].ID != "C2" {
		t.Fatalf("channels = %+v", channels)
	}
}

func TestCollectInvalidAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"invalid_auth"}`)
	})

	c := newTestCollector(t, mux)
	_, err := c.Collect(context.Background())
	if source.CategoryOf(err) != source.CategoryAuth {
		t.Fatalf("CategoryOf(%v) = %s, want auth", err, source.CategoryOf(err))
	}
}

func TestCollectRateLimitCarriesRetryAfter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := newTestCollector(t, mux)
	_, err := c.Collect(context.Background())
	if source.CategoryOf(err) != source.CategoryRateLimit {
		t.Fatalf("CategoryOf(%v) = %s, want rate_limit", err, source.CategoryOf(err))
	}
	hint, ok := source.RetryHint(err)
	if !ok || hint != 12*time.Second {
		t.Fatalf("RetryHint = %v/%v, want 12s", hint, ok)
	}
}

func TestUserNameCaching(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"ok":true,"user":{"id":"U1","name":"alice","profile":{"display_name":"alice"}}}`)
	})

	c := newTestCollector(t, mux)
	for i := 0; i < 3; i++ {
		if got := c.userName(context.Background(), "U1"); got != "alice" {
			t.Fatalf("userName = %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("users.info called %d times, want 1", calls)
	}
}

func TestSlackTimestampRoundTrip(t *testing.T) {
	ts, err := parseSlackTS("1726300800.000200")
	if err != nil {
		t.Fatalf("parseSlackTS: %v", err)
	}
	if ts.Unix() != 1726300800 {
		t.Fatalf("seconds = %d", ts.Unix())
	}

	if _, err := parseSlackTS("garbage"); err == nil {
		t.Fatal("parseSlackTS accepted garbage")
	}

	orig := time.Date(2025, time.March, 14, 8, 0, 0, 0, time.UTC)
	back, err := parseSlackTS(slackTS(orig))
	if err != nil || !back.Equal(orig) {
		t.Fatalf("round trip: %v, %v", back, err)
	}
}
