package relay

import (
	"sort"
	"time"

	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
)

// Reconciler holds the pure classification rules of the lifecycle engine.
// It performs no I/O; the application service feeds it fetched tickets and
// store contents and applies the side effects it decides on.
type Reconciler struct {
	allowlist map[int]bool
}

// NewReconciler creates a reconciler. An empty allowlist means every
// tracker is relayed.
func NewReconciler(trackerAllowlist []int) *Reconciler {
	allow := make(map[int]bool, len(trackerAllowlist))
	for _, id := range trackerAllowlist {
		allow[id] = true
	}
	return &Reconciler{allowlist: allow}
}

// ClassifyNew filters freshly fetched tickets down to the ones that must be
// relayed this cycle, preserving input order:
//
//  1. creation time strictly after the watermark; the upstream query is
//     date-granular and re-returns boundary tickets;
//  2. tracker membership in the allowlist, when one is configured;
//  3. not already in the notified set, so retried cycles relay nothing twice.
func (r *Reconciler) ClassifyNew(fetched []*ticket.Ticket, watermark time.Time, notified map[int]string) []*ticket.Ticket {
	var toRelay []*ticket.Ticket
	for _, tk := range fetched {
		if !tk.CreatedAt().After(watermark) {
			continue
		}
		if len(r.allowlist) > 0 && !r.allowlist[tk.TrackerID()] {
			continue
		}
		if _, ok := notified[tk.ID()]; ok {
			continue
		}
		toRelay = append(toRelay, tk)
	}
	return toRelay
}

// TrackedDecision is the transition decided for one previously relayed ticket.
type TrackedDecision int

const (
	// DecisionKeep leaves tracking intact for the next cycle.
	DecisionKeep TrackedDecision = iota
	// DecisionCompleted marks the ticket completed: completion reactions,
	// completed-set membership, schedule cleanup.
	DecisionCompleted
	// DecisionCorrected is a completion whose tracker changed since relay.
	// The relay treats it as a correction and applies deletion semantics.
	DecisionCorrected
	// DecisionDeleted removes the ticket from tracking entirely.
	DecisionDeleted
)

// DecideTracked classifies the current upstream state of a tracked ticket.
// current is nil when the upstream lookup reported the ticket gone.
// notifyTrackerID is the tracker recorded at relay time; trackerKnown is
// false when that record is missing, in which case a tracker change cannot
// be detected and completion is taken at face value.
func DecideTracked(current *ticket.Ticket, notifyTrackerID int, trackerKnown bool) TrackedDecision {
	if current == nil {
		return DecisionDeleted
	}
	if !current.StatusClass().IsCompleted() {
		return DecisionKeep
	}
	if trackerKnown && current.TrackerID() != notifyTrackerID {
		return DecisionCorrected
	}
	return DecisionCompleted
}

// CompletionEvent couples a tracked ticket ID with the upstream state that
// triggered its completion.
type CompletionEvent struct {
	ID     int
	Ticket *ticket.Ticket
}

// FilterQuickCompletions resolves the same-cycle creation/completion race
// before any side effect is applied. A ticket that shows up both as "to
// relay" and as "newly completed" within one cycle, or arrives already in a
// completed status, was opened and finished inside a single poll interval:
// it is never relayed and never gets a completion notice. Returns the
// filtered inputs plus the discarded IDs.
func FilterQuickCompletions(toRelay []*ticket.Ticket, completed []CompletionEvent) ([]*ticket.Ticket, []CompletionEvent, []int) {
	quick := make(map[int]bool)
	for _, tk := range toRelay {
		if tk.StatusClass().IsCompleted() {
			quick[tk.ID()] = true
		}
	}

	relayIDs := make(map[int]bool, len(toRelay))
	for _, tk := range toRelay {
		relayIDs[tk.ID()] = true
	}
	for _, ev := range completed {
		if relayIDs[ev.ID] {
			quick[ev.ID] = true
		}
	}

	if len(quick) == 0 {
		return toRelay, completed, nil
	}

	keptRelay := make([]*ticket.Ticket, 0, len(toRelay))
	for _, tk := range toRelay {
		if !quick[tk.ID()] {
			keptRelay = append(keptRelay, tk)
		}
	}
	keptCompleted := make([]CompletionEvent, 0, len(completed))
	for _, ev := range completed {
		if !quick[ev.ID] {
			keptCompleted = append(keptCompleted, ev)
		}
	}
	discarded := make([]int, 0, len(quick))
	for id := range quick {
		discarded = append(discarded, id)
	}
	sort.Ints(discarded)
	return keptRelay, keptCompleted, discarded
}
