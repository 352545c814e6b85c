package digest

import (
	"errors"
	"fmt"
	"time"
)

// SourceID identifies one external platform. The set is finite per deploy
// but open-ended: new collectors introduce new ids.
type SourceID string

const (
	SourceSlack    SourceID = "slack"
	SourceMail     SourceID = "mail"
	SourceWhatsApp SourceID = "whatsapp"
)

// MessageType is an advisory classification tag. It is carried through to
// rendering but never drives grouping.
type MessageType string

const (
	TypeChannel   MessageType = "channel"
	TypeDirect    MessageType = "direct"
	TypeEmail     MessageType = "email"
	TypeChat      MessageType = "chat"
	TypeSynthetic MessageType = "synthetic"
)

// Message is the canonical unit of a notification.
//
// Messages are built only by collectors, validated immediately after
// mapping from raw provider data, and are read-only from that point on.
// They live for one run; nothing persists them.
type Message struct {
	Source       SourceID
	Sender       string
	SenderDetail string
	Content      string
	Timestamp    time.Time
	Type         MessageType
}

var errInvalidMessage = errors.New("invalid message")

// Validate reports the first missing required field. Every field is
// required; a Message failing Validate must never reach Build.
func (m Message) Validate() error {
	switch {
	case m.Source == "":
		return fmt.Errorf("%w: empty source", errInvalidMessage)
	case m.Sender == "":
		return fmt.Errorf("%w: empty sender", errInvalidMessage)
	case m.SenderDetail == "":
		return fmt.Errorf("%w: empty sender detail", errInvalidMessage)
	case m.Content == "":
		return fmt.Errorf("%w: empty content", errInvalidMessage)
	case m.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", errInvalidMessage)
	case m.Type == "":
		return fmt.Errorf("%w: empty type", errInvalidMessage)
	}
	return nil
}

// IsInvalid reports whether err originates from Message.Validate.
func IsInvalid(err error) bool { return errors.Is(err, errInvalidMessage) }
