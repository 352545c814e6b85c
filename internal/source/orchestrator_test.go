package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"digestd/internal/digest"
	"digestd/internal/eventbus"
	logx "digestd/pkg/logx"
)

// instantPolicy keeps retries but makes backoff effectively free in tests.
func instantPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Microsecond,
		Multiplier:        2,
		RateLimitAttempts: 2,
		RateLimitDelay:    time.Microsecond,
	}
}

func TestRunIsolatesFailingSources(t *testing.T) {
	ok := &fakeCollector{id: digest.SourceSlack, script: []func() ([]digest.Message, error){
		succeeds(testMessage(digest.SourceSlack), testMessage(digest.SourceSlack)),
	}}
	bad := &fakeCollector{id: digest.SourceMail, script: []func() ([]digest.Message, error){
		fails(AuthError(digest.SourceMail, errors.New("login rejected"))),
	}}

	o := NewOrchestrator(logx.Nop(), nil)
	o.Register(ok, instantPolicy())
	o.Register(bad, instantPolicy())

	res := o.Run(context.Background())

	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 from the healthy source", len(res.Messages))
	}
	for _, m := range res.Messages {
		if m.Source != digest.SourceSlack {
			t.Fatalf("message leaked from failed source: %+v", m)
		}
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(res.Failures))
	}
	f := res.Failures[0]
	if f.Source != digest.SourceMail || f.Category != CategoryAuth || f.Attempts != 1 {
		t.Fatalf("failure = %+v", f)
	}
}

func TestRunAllSourcesFailed(t *testing.T) {
	o := NewOrchestrator(logx.Nop(), nil)
	o.Register(&fakeCollector{id: digest.SourceSlack, script: []func() ([]digest.Message, error){
		fails(AuthError(digest.SourceSlack, errors.New("invalid_auth"))),
	}}, instantPolicy())
	o.Register(&fakeCollector{id: digest.SourceMail, script: []func() ([]digest.Message, error){
		fails(ConfigError(digest.SourceMail, errors.New("missing host"))),
	}}, instantPolicy())

	res := o.Run(context.Background())

	if len(res.Messages) != 0 {
		t.Fatalf("messages = %d, want 0", len(res.Messages))
	}
	if len(res.Failures) != 2 {
		t.Fatalf("failures = %d, want 2 (one per source)", len(res.Failures))
	}
}

func TestRunNoRegistrations(t *testing.T) {
	res := NewOrchestrator(logx.Nop(), nil).Run(context.Background())
	if len(res.Messages) != 0 || len(res.Failures) != 0 {
		t.Fatalf("empty orchestrator produced %d messages, %d failures", len(res.Messages), len(res.Failures))
	}
}

func TestRunPanickingCollectorDoesNotSinkOthers(t *testing.T) {
	boom := func() ([]digest.Message, error) { panic("nil map write") }
	o := NewOrchestrator(logx.Nop(), nil)
	o.Register(&fakeCollector{id: digest.SourceMail, script: []func() ([]digest.Message, error){boom}}, instantPolicy())
	o.Register(&fakeCollector{id: digest.SourceSlack, script: []func() ([]digest.Message, error){
		succeeds(testMessage(digest.SourceSlack)),
	}}, instantPolicy())

	res := o.Run(context.Background())

	if len(res.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(res.Messages))
	}
	if len(res.Failures) != 1 || res.Failures[0].Category != CategoryTransient {
		t.Fatalf("failures = %+v", res.Failures)
	}
}

func TestRunPublishesPerSourceEvents(t *testing.T) {
	bus := eventbus.New()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	o := NewOrchestrator(logx.Nop(), bus)
	o.Register(&fakeCollector{id: digest.SourceSlack, script: []func() ([]digest.Message, error){
		succeeds(testMessage(digest.SourceSlack)),
	}}, instantPolicy())
	o.Register(&fakeCollector{id: digest.SourceMail, script: []func() ([]digest.Message, error){
		fails(ConfigError(digest.SourceMail, errors.New("missing host"))),
	}}, instantPolicy())

	o.Run(context.Background())

	got := map[string]SourceEvent{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			se, ok := ev.Data.(SourceEvent)
			if !ok {
				t.Fatalf("event payload %T, want SourceEvent", ev.Data)
			}
			got[ev.Type] = se
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, have %v", got)
		}
	}

	collected, ok := got["source.collected"]
	if !ok || collected.Source != digest.SourceSlack || collected.Count != 1 {
		t.Fatalf("source.collected event = %+v", got)
	}
	failed, ok := got["source.failed"]
	if !ok || failed.Source != digest.SourceMail || failed.Category != CategoryConfig {
		t.Fatalf("source.failed event = %+v", got)
	}
}

func TestSetRegistrationsReplacesCollectors(t *testing.T) {
	o := NewOrchestrator(logx.Nop(), nil)
	o.Register(&fakeCollector{id: digest.SourceSlack, script: []func() ([]digest.Message, error){
		succeeds(testMessage(digest.SourceSlack)),
	}}, instantPolicy())

	o.SetRegistrations([]Registration{{
		Collector: &fakeCollector{id: digest.SourceMail, script: []func() ([]digest.Message, error){
			succeeds(testMessage(digest.SourceMail)),
		}},
		Policy: instantPolicy(),
	}})

	if ids := o.Sources(); len(ids) != 1 || ids[0] != digest.SourceMail {
		t.Fatalf("Sources() = %v, want [mail]", ids)
	}
	res := o.Run(context.Background())
	if len(res.Messages) != 1 || res.Messages[0].Source != digest.SourceMail {
		t.Fatalf("run after replacement = %+v", res)
	}
}
