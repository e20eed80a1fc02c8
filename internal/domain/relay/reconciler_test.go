package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
)

func mustTicket(t *testing.T, id, trackerID int, statusName string, createdAt time.Time) *ticket.Ticket {
	t.Helper()
	tk, err := ticket.NewTicket(id, trackerID, "バグ", "subject", "desc", "author", "", "proj", "高", statusName, createdAt)
	require.NoError(t, err)
	return tk
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestReconciler_ClassifyNew(t *testing.T) {
	t.Run("keeps only tickets strictly after the watermark", func(t *testing.T) {
		rec := NewReconciler(nil)
		fetched := []*ticket.Ticket{
			mustTicket(t, 1, 1, "未着手", baseTime.Add(-time.Hour)),
			mustTicket(t, 2, 1, "未着手", baseTime), // boundary: not strictly after
			mustTicket(t, 3, 1, "未着手", baseTime.Add(time.Minute)),
		}

		toRelay := rec.ClassifyNew(fetched, baseTime, map[int]string{})

		require.Len(t, toRelay, 1)
		assert.Equal(t, 3, toRelay[0].ID())
	})

	t.Run("filters by tracker allowlist", func(t *testing.T) {
		rec := NewReconciler([]int{1, 2})
		fetched := []*ticket.Ticket{
			mustTicket(t, 1, 1, "未着手", baseTime.Add(time.Minute)),
			mustTicket(t, 2, 3, "未着手", baseTime.Add(time.Minute)),
			mustTicket(t, 3, 2, "未着手", baseTime.Add(time.Minute)),
		}

		toRelay := rec.ClassifyNew(fetched, baseTime, map[int]string{})

		require.Len(t, toRelay, 2)
		assert.Equal(t, 1, toRelay[0].ID())
		assert.Equal(t, 3, toRelay[1].ID())
	})

	t.Run("empty allowlist relays every tracker", func(t *testing.T) {
		rec := NewReconciler(nil)
		fetched := []*ticket.Ticket{
			mustTicket(t, 1, 7, "未着手", baseTime.Add(time.Minute)),
		}

		toRelay := rec.ClassifyNew(fetched, baseTime, map[int]string{})

		assert.Len(t, toRelay, 1)
	})

	t.Run("drops already notified tickets", func(t *testing.T) {
		rec := NewReconciler(nil)
		fetched := []*ticket.Ticket{
			mustTicket(t, 1, 1, "未着手", baseTime.Add(time.Minute)),
			mustTicket(t, 2, 1, "未着手", baseTime.Add(time.Minute)),
		}
		notified := map[int]string{1: SetMember}

		toRelay := rec.ClassifyNew(fetched, baseTime, notified)

		require.Len(t, toRelay, 1)
		assert.Equal(t, 2, toRelay[0].ID())
	})

	t.Run("classification is idempotent against the notified set", func(t *testing.T) {
		rec := NewReconciler(nil)
		fetched := []*ticket.Ticket{
			mustTicket(t, 1, 1, "未着手", baseTime.Add(time.Minute)),
			mustTicket(t, 2, 1, "未着手", baseTime.Add(2*time.Minute)),
		}

		first := rec.ClassifyNew(fetched, baseTime, map[int]string{})
		require.Len(t, first, 2)

		// Simulate the relay having recorded everything from the first pass.
		notified := map[int]string{}
		for _, tk := range first {
			notified[tk.ID()] = SetMember
		}

		second := rec.ClassifyNew(fetched, baseTime, notified)
		assert.Empty(t, second, "second pass over the same input must relay nothing")
	})

	t.Run("preserves input order", func(t *testing.T) {
		rec := NewReconciler(nil)
		fetched := []*ticket.Ticket{
			mustTicket(t, 9, 1, "未着手", baseTime.Add(3*time.Minute)),
			mustTicket(t, 4, 1, "未着手", baseTime.Add(time.Minute)),
			mustTicket(t, 7, 1, "未着手", baseTime.Add(2*time.Minute)),
		}

		toRelay := rec.ClassifyNew(fetched, baseTime, map[int]string{})

		ids := []int{toRelay[0].ID(), toRelay[1].ID(), toRelay[2].ID()}
		assert.Equal(t, []int{9, 4, 7}, ids)
	})
}

func TestDecideTracked(t *testing.T) {
	tests := []struct {
		name            string
		current         *ticket.Ticket
		notifyTrackerID int
		trackerKnown    bool
		want            TrackedDecision
	}{
		{
			name:    "gone upstream is a deletion",
			current: nil,
			want:    DecisionDeleted,
		},
		{
			name:            "still unstarted keeps tracking",
			current:         mustTicket(t, 1, 1, "未着手", baseTime),
			notifyTrackerID: 1,
			trackerKnown:    true,
			want:            DecisionKeep,
		},
		{
			name:            "in progress keeps tracking",
			current:         mustTicket(t, 1, 1, "進行中", baseTime),
			notifyTrackerID: 1,
			trackerKnown:    true,
			want:            DecisionKeep,
		},
		{
			name:            "completed with unchanged tracker",
			current:         mustTicket(t, 1, 1, "完了", baseTime),
			notifyTrackerID: 1,
			trackerKnown:    true,
			want:            DecisionCompleted,
		},
		{
			name:            "completed in english vocabulary",
			current:         mustTicket(t, 1, 1, "Closed", baseTime),
			notifyTrackerID: 1,
			trackerKnown:    true,
			want:            DecisionCompleted,
		},
		{
			name:            "completed but tracker changed is a correction",
			current:         mustTicket(t, 1, 2, "完了", baseTime),
			notifyTrackerID: 1,
			trackerKnown:    true,
			want:            DecisionCorrected,
		},
		{
			name:            "completed with unknown notify tracker is taken at face value",
			current:         mustTicket(t, 1, 2, "完了", baseTime),
			notifyTrackerID: 0,
			trackerKnown:    false,
			want:            DecisionCompleted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideTracked(tc.current, tc.notifyTrackerID, tc.trackerKnown)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilterQuickCompletions(t *testing.T) {
	t.Run("no overlap passes through", func(t *testing.T) {
		toRelay := []*ticket.Ticket{
			mustTicket(t, 1, 1, "未着手", baseTime),
		}
		completed := []CompletionEvent{
			{ID: 2, Ticket: mustTicket(t, 2, 1, "完了", baseTime)},
		}

		keptRelay, keptCompleted, discarded := FilterQuickCompletions(toRelay, completed)

		assert.Len(t, keptRelay, 1)
		assert.Len(t, keptCompleted, 1)
		assert.Empty(t, discarded)
	})

	t.Run("id present on both sides is discarded from both", func(t *testing.T) {
		toRelay := []*ticket.Ticket{
			mustTicket(t, 1, 1, "未着手", baseTime),
			mustTicket(t, 2, 1, "未着手", baseTime),
		}
		completed := []CompletionEvent{
			{ID: 2, Ticket: mustTicket(t, 2, 1, "完了", baseTime)},
		}

		keptRelay, keptCompleted, discarded := FilterQuickCompletions(toRelay, completed)

		require.Len(t, keptRelay, 1)
		assert.Equal(t, 1, keptRelay[0].ID())
		assert.Empty(t, keptCompleted)
		assert.Equal(t, []int{2}, discarded)
	})

	t.Run("ticket arriving already completed is never relayed", func(t *testing.T) {
		toRelay := []*ticket.Ticket{
			mustTicket(t, 1, 1, "完了", baseTime),
			mustTicket(t, 2, 1, "未着手", baseTime),
		}

		keptRelay, keptCompleted, discarded := FilterQuickCompletions(toRelay, nil)

		require.Len(t, keptRelay, 1)
		assert.Equal(t, 2, keptRelay[0].ID())
		assert.Empty(t, keptCompleted)
		assert.Equal(t, []int{1}, discarded)
	})
}
