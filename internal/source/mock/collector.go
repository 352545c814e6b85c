// Package mock provides a synthetic collector for demos and end-to-end
// checks of the digest pipeline without any provider credentials.
package mock

import (
	"context"
	"time"

	"digestd/internal/digest"
	logx "digestd/pkg/logx"
)

const sourceID = digest.SourceID("mock")

type Collector struct {
	log logx.Logger
	now func() time.Time
}

func New(log logx.Logger) *Collector {
	return &Collector{
		log: log.With(logx.String("source", string(sourceID))),
		now: time.Now,
	}
}

func (c *Collector) ID() digest.SourceID { return sourceID }

// Collect returns a fixed set of synthetic messages with staggered
// timestamps so grouping and ordering are visible in the output.
func (c *Collector) Collect(ctx context.Context) ([]digest.Message, error) {
	now := c.now()
	msgs := []digest.Message{
		{
			Source:       sourceID,
			Sender:       "Build Pipeline",
			SenderDetail: "ci@example.com",
			Content:      "Nightly build completed: 412 tests passed, 0 failed.",
			Timestamp:    now.Add(-15 * time.Minute),
			Type:         digest.TypeSynthetic,
		},
		{
			Source:       sourceID,
			Sender:       "On-call Monitor",
			SenderDetail: "#alerts",
			Content:      "Disk usage on db-2 crossed 80%. No action needed yet.",
			Timestamp:    now.Add(-2 * time.Hour),
			Type:         digest.TypeSynthetic,
		},
		{
			Source:       sourceID,
			Sender:       "Release Bot",
			SenderDetail: "#releases",
			Content:      "v2.4.1 tagged and pushed to staging.",
			Timestamp:    now.Add(-45 * time.Minute),
			Type:         digest.TypeSynthetic,
		},
	}
	c.log.Debug("emitting synthetic messages", logx.Int("count", len(msgs)))
	return msgs, nil
}
