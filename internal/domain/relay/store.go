package relay

import (
	"context"
	"time"
)

// Mapping names a persisted per-ticket key/value mapping.
type Mapping string

const (
	// MappingNotified is the set of ticket IDs already relayed to chat.
	MappingNotified Mapping = "notified"
	// MappingCompleted is the set of ticket IDs whose completion was observed.
	MappingCompleted Mapping = "completed"
	// MappingFollowUpSchedule holds the follow-up anchor timestamp per ticket.
	MappingFollowUpSchedule Mapping = "follow_up_schedule"
	// MappingTrackerAtNotify holds the tracker ID recorded at relay time.
	MappingTrackerAtNotify Mapping = "tracker_at_notify"
	// MappingCreatedAt holds the tracker-reported creation timestamp.
	MappingCreatedAt Mapping = "created_at"
	// MappingMessageRef holds the chat message reference of the relay post.
	MappingMessageRef Mapping = "message_ref"
	// MappingFollowUpMessageRef holds the reference of the follow-up post.
	MappingFollowUpMessageRef Mapping = "follow_up_message_ref"
)

// PerTicketMappings lists every mapping keyed by ticket ID. RemoveMany
// purges an ID from all of them.
var PerTicketMappings = []Mapping{
	MappingNotified,
	MappingCompleted,
	MappingFollowUpSchedule,
	MappingTrackerAtNotify,
	MappingCreatedAt,
	MappingMessageRef,
	MappingFollowUpMessageRef,
}

// SetMember is the stored value for set-style mappings where only
// membership matters.
const SetMember = "1"

// StateStore persists the relay's per-ticket mappings and the fetch
// watermark. It holds no policy: callers decide what goes in and when
// entries leave.
type StateStore interface {
	// Load returns the full mapping, empty when nothing was persisted yet.
	Load(ctx context.Context, mapping Mapping) (map[int]string, error)
	// Save replaces the persisted mapping with the given contents atomically.
	Save(ctx context.Context, mapping Mapping, entries map[int]string) error
	// Upsert sets one entry, overwriting any previous value.
	Upsert(ctx context.Context, mapping Mapping, id int, value string) error
	// Remove drops one entry; removing an absent entry is a no-op.
	Remove(ctx context.Context, mapping Mapping, id int) error
	// RemoveMany purges the IDs from every per-ticket mapping in one
	// transaction. Re-running on already-clean IDs is a no-op.
	RemoveMany(ctx context.Context, ids []int) error

	// LoadWatermark returns the persisted fetch watermark. The boolean is
	// false when no watermark was saved yet.
	LoadWatermark(ctx context.Context) (time.Time, bool, error)
	SaveWatermark(ctx context.Context, t time.Time) error
}
