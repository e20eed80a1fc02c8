package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
)

// IssueSource yields tickets from the upstream tracker.
type IssueSource interface {
	// FetchCreatedSince returns tickets created after the given time.
	// The upstream query is date-granular; callers must still filter with
	// a strict timestamp comparison.
	FetchCreatedSince(ctx context.Context, since time.Time) ([]*ticket.Ticket, error)
	// FetchByID returns the current state of one ticket. A ticket deleted
	// upstream yields a not-found error (see shared/errors), which is a
	// semantic signal rather than a failure.
	FetchByID(ctx context.Context, id int) (*ticket.Ticket, error)
}

// MessageRef is an opaque handle to a posted chat message, used later to
// attach reactions or delete the message.
type MessageRef struct {
	Channel   string
	Timestamp string
}

func (r MessageRef) IsZero() bool {
	return r.Channel == "" && r.Timestamp == ""
}

// Encode renders the ref for storage as a single mapping value.
func (r MessageRef) Encode() string {
	return r.Channel + "|" + r.Timestamp
}

// DecodeMessageRef parses a stored mapping value back into a ref.
func DecodeMessageRef(s string) (MessageRef, error) {
	channel, ts, ok := strings.Cut(s, "|")
	if !ok || channel == "" || ts == "" {
		return MessageRef{}, fmt.Errorf("malformed message ref %q", s)
	}
	return MessageRef{Channel: channel, Timestamp: ts}, nil
}

// Message is a channel post. Fields map onto the sink's attachment format.
type Message struct {
	Text          string
	Color         string
	Title         string
	TitleLink     string
	Footer        string
	TimestampHint time.Time
}

// NotificationSink posts messages and reacts to previously posted ones.
type NotificationSink interface {
	Post(ctx context.Context, msg Message) (MessageRef, error)
	React(ctx context.Context, ref MessageRef, emoji string) error
	Delete(ctx context.Context, ref MessageRef) error
}
