package source

import (
	"context"
	"sync"
	"time"

	"digestd/internal/digest"
	"digestd/internal/eventbus"
	logx "digestd/pkg/logx"
)

// Registration pairs a collector with its retry policy.
type Registration struct {
	Collector Collector
	Policy    Policy
}

// RunResult is the unified, partially-successful outcome of one collection
// run: every successful source's messages concatenated (cross-source order
// unspecified; the digest builder imposes order later) plus one failure
// record per source that did not succeed.
type RunResult struct {
	Messages []digest.Message
	Failures []Failure
}

// SourceEvent is published on the bus for every per-source terminal outcome.
type SourceEvent struct {
	Source   digest.SourceID `json:"source"`
	Count    int             `json:"count"`
	Category Category        `json:"category,omitempty"`
	Cause    string          `json:"cause,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
	Took     time.Duration   `json:"took"`
}

// Orchestrator drives all registered collectors to completion.
//
// Collectors run concurrently, one goroutine per source; each writes only
// its own result slot, and assembly starts only after every source reached
// a terminal state. A failing source never prevents the others from
// running, and an all-failed run still returns normally.
type Orchestrator struct {
	log logx.Logger
	bus eventbus.Bus

	mu   sync.Mutex
	regs []Registration
}

func NewOrchestrator(log logx.Logger, bus eventbus.Bus) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{log: log, bus: bus}
}

// Register appends a collector. Registration order fixes the concatenation
// order of successful messages (the digest builder reorders anyway).
func (o *Orchestrator) Register(c Collector, p Policy) {
	o.mu.Lock()
	o.regs = append(o.regs, Registration{Collector: c, Policy: p})
	o.mu.Unlock()
}

// SetRegistrations replaces the collector set (config hot reload).
func (o *Orchestrator) SetRegistrations(regs []Registration) {
	o.mu.Lock()
	o.regs = append([]Registration(nil), regs...)
	o.mu.Unlock()
}

// Sources returns the currently registered source ids, in order.
func (o *Orchestrator) Sources() []digest.SourceID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]digest.SourceID, 0, len(o.regs))
	for _, r := range o.regs {
		out = append(out, r.Collector.ID())
	}
	return out
}

// Run invokes every registered collector through the fetch wrapper and
// assembles the unified result. It blocks until all sources are terminal.
func (o *Orchestrator) Run(ctx context.Context) RunResult {
	o.mu.Lock()
	regs := append([]Registration(nil), o.regs...)
	o.mu.Unlock()

	// Per-source slot: written exactly once by its own goroutine.
	results := make([]Result, len(regs))
	took := make([]time.Duration, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg Registration) {
			defer wg.Done()
			start := time.Now()
			f := NewFetcher(reg.Policy, o.log)
			results[i] = f.Fetch(ctx, reg.Collector)
			took[i] = time.Since(start)
		}(i, reg)
	}
	wg.Wait()

	var out RunResult
	for i, r := range results {
		if r.OK() {
			out.Messages = append(out.Messages, r.Messages...)
			o.log.Info("source collected",
				logx.String("source", string(r.Source)),
				logx.Int("count", len(r.Messages)),
				logx.Duration("took", took[i]))
			o.publish("source.collected", SourceEvent{
				Source: r.Source,
				Count:  len(r.Messages),
				Took:   took[i],
			})
			continue
		}
		out.Failures = append(out.Failures, *r.Failure)
		o.publish("source.failed", SourceEvent{
			Source:   r.Source,
			Category: r.Failure.Category,
			Cause:    r.Failure.Cause,
			Attempts: r.Failure.Attempts,
			Took:     took[i],
		})
	}
	return out
}

func (o *Orchestrator) publish(typ string, ev SourceEvent) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
