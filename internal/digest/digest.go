package digest

import (
	"fmt"
	"sort"
	"time"
)

// Digest is the grouped, ordered view of one run's messages.
//
// It is built fresh per run and never mutated afterwards; both renderers
// treat it as immutable input, which is what makes rendering idempotent.
type Digest struct {
	groups      map[SourceID][]Message
	sources     []SourceID // non-empty groups, display order
	total       int
	generatedAt time.Time
}

// Build groups messages by exact Source match and orders every group
// newest-first.
//
// Ordering ties on equal timestamps are broken by sender (ascending), then
// by original insertion order; repeated runs over identical input produce
// identical digests. Group display order is lexicographic by source id.
//
// Build panics on an invalid Message. Collectors validate everything they
// emit, so an invalid message here is a programming error, not a runtime
// condition to degrade around.
func Build(messages []Message, now time.Time) *Digest {
	groups := make(map[SourceID][]Message)
	for _, m := range messages {
		if err := m.Validate(); err != nil {
			panic(fmt.Sprintf("digest: message reached builder unvalidated: %v", err))
		}
		groups[m.Source] = append(groups[m.Source], m)
	}

	sources := make([]SourceID, 0, len(groups))
	for id, msgs := range groups {
		sortGroup(msgs)
		sources = append(sources, id)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	return &Digest{
		groups:      groups,
		sources:     sources,
		total:       len(messages),
		generatedAt: now,
	}
}

// sortGroup orders msgs newest-first. SliceStable preserves insertion order
// as the final tie-break.
func sortGroup(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.After(msgs[j].Timestamp)
		}
		return msgs[i].Sender < msgs[j].Sender
	})
}

// Sources returns the group display order (non-empty groups only).
func (d *Digest) Sources() []SourceID {
	out := make([]SourceID, len(d.sources))
	copy(out, d.sources)
	return out
}

// Group returns the ordered messages for one source.
// The returned slice must not be modified.
func (d *Digest) Group(id SourceID) []Message { return d.groups[id] }

// Count returns the number of messages in one group.
func (d *Digest) Count(id SourceID) int { return len(d.groups[id]) }

// Total returns the message count across all groups.
func (d *Digest) Total() int { return d.total }

// GeneratedAt returns the generation instant recorded at Build time.
func (d *Digest) GeneratedAt() time.Time { return d.generatedAt }

// Rendered is what the delivery boundary consumes: both renderings of one
// digest plus the total count for subject lines.
type Rendered struct {
	Plain       string
	HTML        string
	TotalCount  int
	GeneratedAt time.Time
}
