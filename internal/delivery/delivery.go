// Package delivery sends a rendered digest out through the configured
// channels. Channels are independent: one failing channel never blocks the
// others, and per-channel outcomes are reported on the event bus.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digestd/internal/digest"
	"digestd/internal/eventbus"
	logx "digestd/pkg/logx"
)

// Sender is one delivery channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, r digest.Rendered) error
}

// Subject builds the one-line summary used as mail subject / push title.
func Subject(title string, r digest.Rendered) string {
	return fmt.Sprintf("%s - %s - %d %s",
		title, r.GeneratedAt.Format("January 2, 2006"), r.TotalCount, noun(r.TotalCount))
}

func noun(n int) string {
	if n == 1 {
		return "notification"
	}
	return "notifications"
}

// DeliveryEvent is published per channel per dispatch.
type DeliveryEvent struct {
	Channel string        `json:"channel"`
	Error   string        `json:"error,omitempty"`
	Took    time.Duration `json:"took"`
}

// Dispatcher fans a rendered digest out to every sender.
type Dispatcher struct {
	senders []Sender
	log     logx.Logger
	bus     eventbus.Bus
	timeout time.Duration
}

func NewDispatcher(senders []Sender, timeout time.Duration, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{senders: senders, log: log, bus: bus, timeout: timeout}
}

// Channels returns the configured channel names, in dispatch order.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		out = append(out, s.Name())
	}
	return out
}

// Dispatch sends r through every channel sequentially, each under its own
// timeout. It returns the joined per-channel errors; a non-nil error still
// means every channel was attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, r digest.Rendered) error {
	if len(d.senders) == 0 {
		return errors.New("no delivery channels configured")
	}

	var errs []error
	for _, s := range d.senders {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Send(sctx, r)
		cancel()
		took := time.Since(start)

		ev := DeliveryEvent{Channel: s.Name(), Took: took}
		if err != nil {
			ev.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			d.log.Error("delivery failed", logx.String("channel", s.Name()),
				logx.Duration("took", took), logx.Err(err))
			d.publish("delivery.failed", ev)
			continue
		}
		d.log.Info("digest delivered", logx.String("channel", s.Name()),
			logx.Int("total", r.TotalCount), logx.Duration("took", took))
		d.publish("delivery.sent", ev)
	}
	return errors.Join(errs...)
}

// ErrorNotifier is implemented by senders that can carry a short failure
// notice in addition to full digests.
type ErrorNotifier interface {
	SendError(ctx context.Context, msg string) error
}

// NotifyFailure reports a failed run through every channel that supports
// error notices. Failures here are only logged; there is nothing further
// to escalate to.
func (d *Dispatcher) NotifyFailure(ctx context.Context, runErr error) {
	msg := fmt.Sprintf("Digest run failed: %v", runErr)
	for _, s := range d.senders {
		n, ok := s.(ErrorNotifier)
		if !ok {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.SendError(sctx, msg)
		cancel()
		if err != nil {
			d.log.Warn("error notice failed", logx.String("channel", s.Name()), logx.Err(err))
			continue
		}
		d.log.Info("error notice sent", logx.String("channel", s.Name()))
	}
}

func (d *Dispatcher) publish(typ string, ev DeliveryEvent) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
