package relay

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	relayDomain "github.com/orris-inc/ticketwatch/internal/domain/relay"
	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
	sharedConfig "github.com/orris-inc/ticketwatch/internal/shared/config"
	apperrors "github.com/orris-inc/ticketwatch/internal/shared/errors"
	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

const (
	defaultCompletionReaction = "white_check_mark"
	defaultDeletionReaction   = "wastebasket"
)

// Service runs one poll cycle at a time: fetch new tickets, classify and
// relay them, reconcile previously relayed tickets against their current
// upstream state, sweep the follow-up schedule, then advance the watermark.
// All upstream failures degrade the affected ticket or phase only; a cycle
// never aborts half-way because one call failed.
type Service struct {
	source     relayDomain.IssueSource
	sink       relayDomain.NotificationSink
	store      relayDomain.StateStore
	reconciler *relayDomain.Reconciler
	policy     relayDomain.FollowUpPolicy
	builder    *MessageBuilder
	logger     logger.Interface

	completionReaction string
	deletionReaction   string

	now func() time.Time

	mu          sync.Mutex
	lastCycleAt time.Time
}

func NewService(
	source relayDomain.IssueSource,
	sink relayDomain.NotificationSink,
	store relayDomain.StateStore,
	reconciler *relayDomain.Reconciler,
	policy relayDomain.FollowUpPolicy,
	builder *MessageBuilder,
	cfg sharedConfig.RelayConfig,
	log logger.Interface,
) *Service {
	completionReaction := cfg.CompletionReaction
	if completionReaction == "" {
		completionReaction = defaultCompletionReaction
	}
	deletionReaction := cfg.DeletionReaction
	if deletionReaction == "" {
		deletionReaction = defaultDeletionReaction
	}
	return &Service{
		source:             source,
		sink:               sink,
		store:              store,
		reconciler:         reconciler,
		policy:             policy,
		builder:            builder,
		logger:             log,
		completionReaction: completionReaction,
		deletionReaction:   deletionReaction,
		now:                time.Now,
	}
}

// trackedEvents is the outcome of reconciling the open-tracked set.
type trackedEvents struct {
	completions []relayDomain.CompletionEvent
	corrections []int
	deletions   []int
}

// RunCycle executes one full poll cycle. It returns an error only for
// local store failures; upstream failures are logged and degrade the
// affected tickets.
func (s *Service) RunCycle(ctx context.Context) error {
	now := s.now().UTC()

	watermark, found, err := s.store.LoadWatermark(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}
	if !found {
		// First run: start the window at the current time so history is
		// not replayed into the channel.
		watermark = now
		s.logger.Infow("no watermark found, starting fresh", "watermark", watermark)
	}

	fetched, err := s.source.FetchCreatedSince(ctx, watermark)
	if err != nil {
		s.logger.Errorw("failed to fetch new tickets, skipping discovery this cycle", "error", err)
		fetched = nil
	}

	notified, err := s.store.Load(ctx, relayDomain.MappingNotified)
	if err != nil {
		return fmt.Errorf("failed to load notified set: %w", err)
	}
	completedSet, err := s.store.Load(ctx, relayDomain.MappingCompleted)
	if err != nil {
		return fmt.Errorf("failed to load completed set: %w", err)
	}
	trackerAtNotify, err := s.store.Load(ctx, relayDomain.MappingTrackerAtNotify)
	if err != nil {
		return fmt.Errorf("failed to load tracker records: %w", err)
	}

	toRelay := s.reconciler.ClassifyNew(fetched, watermark, notified)

	events := s.reconcileTracked(ctx, notified, completedSet, trackerAtNotify)

	// Race resolution must run before any notification goes out.
	toRelay, completions, discarded := relayDomain.FilterQuickCompletions(toRelay, events.completions)
	if len(discarded) > 0 {
		s.logger.Infow("discarded quick-completion tickets", "ids", discarded)
	}

	s.relayNew(ctx, toRelay, now)
	s.applyCompletions(ctx, completions)
	s.applyRemovals(ctx, append(events.corrections, events.deletions...))
	s.sweepFollowUps(ctx, now)

	if err := s.store.SaveWatermark(ctx, now); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}

	s.mu.Lock()
	s.lastCycleAt = now
	s.mu.Unlock()

	return nil
}

// reconcileTracked fetches the current upstream state of every open-tracked
// ticket (notified minus completed) and classifies the transition.
func (s *Service) reconcileTracked(ctx context.Context, notified, completedSet, trackerAtNotify map[int]string) trackedEvents {
	var events trackedEvents

	ids := make([]int, 0, len(notified))
	for id := range notified {
		if _, done := completedSet[id]; done {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		current, err := s.source.FetchByID(ctx, id)
		if err != nil && !apperrors.IsNotFoundError(err) {
			s.logger.Warnw("failed to fetch tracked ticket, will retry next cycle", "ticket_id", id, "error", err)
			continue
		}
		if err != nil {
			current = nil // gone upstream
		}

		notifyTrackerID, trackerKnown := 0, false
		if raw, ok := trackerAtNotify[id]; ok {
			if parsed, perr := strconv.Atoi(raw); perr == nil {
				notifyTrackerID = parsed
				trackerKnown = true
			}
		}

		switch relayDomain.DecideTracked(current, notifyTrackerID, trackerKnown) {
		case relayDomain.DecisionCompleted:
			s.logger.Infow("ticket completed", "ticket_id", id, "status", current.StatusName())
			events.completions = append(events.completions, relayDomain.CompletionEvent{ID: id, Ticket: current})
		case relayDomain.DecisionCorrected:
			s.logger.Infow("ticket tracker changed after relay, treating as correction",
				"ticket_id", id, "tracker_at_notify", notifyTrackerID, "tracker_now", current.TrackerID())
			events.corrections = append(events.corrections, id)
		case relayDomain.DecisionDeleted:
			s.logger.Infow("ticket deleted upstream", "ticket_id", id)
			events.deletions = append(events.deletions, id)
		}
	}

	return events
}

// relayNew posts the announcement for each ticket and records tracking
// state only after the post succeeded, so a failed send leaves the ticket
// eligible for relay on the next cycle.
func (s *Service) relayNew(ctx context.Context, toRelay []*ticket.Ticket, now time.Time) {
	for _, tk := range toRelay {
		ref, err := s.sink.Post(ctx, s.builder.NewTicket(tk))
		if err != nil {
			s.logger.Errorw("failed to relay ticket, will retry next cycle", "ticket_id", tk.ID(), "error", err)
			continue
		}

		id := tk.ID()
		anchor := s.policy.AnchorAtRelay(tk, now)
		records := []struct {
			mapping relayDomain.Mapping
			value   string
		}{
			{relayDomain.MappingNotified, relayDomain.SetMember},
			{relayDomain.MappingTrackerAtNotify, strconv.Itoa(tk.TrackerID())},
			{relayDomain.MappingCreatedAt, tk.CreatedAt().Format(time.RFC3339)},
			{relayDomain.MappingMessageRef, ref.Encode()},
			{relayDomain.MappingFollowUpSchedule, anchor.UTC().Format(time.RFC3339)},
		}
		for _, rec := range records {
			if err := s.store.Upsert(ctx, rec.mapping, id, rec.value); err != nil {
				s.logger.Errorw("failed to record relay state", "ticket_id", id, "mapping", rec.mapping, "error", err)
			}
		}

		s.logger.Infow("relayed new ticket",
			"ticket_id", id,
			"tracker", tk.TrackerName(),
			"subject", tk.Subject(),
		)
	}
}

// applyCompletions reacts on the relayed (and follow-up) messages and moves
// the ticket into the completed set, clearing the scheduling state while
// keeping the message refs for history.
func (s *Service) applyCompletions(ctx context.Context, completions []relayDomain.CompletionEvent) {
	for _, ev := range completions {
		if ok := s.reactOnStored(ctx, relayDomain.MappingMessageRef, ev.ID, s.completionReaction); !ok {
			// The reaction is the completion notice; without it the state
			// must not advance or the notice would be lost for good.
			s.logger.Warnw("completion reaction failed, keeping ticket tracked", "ticket_id", ev.ID)
			continue
		}
		s.reactOnStored(ctx, relayDomain.MappingFollowUpMessageRef, ev.ID, s.completionReaction)

		if err := s.store.Upsert(ctx, relayDomain.MappingCompleted, ev.ID, relayDomain.SetMember); err != nil {
			s.logger.Errorw("failed to record completion", "ticket_id", ev.ID, "error", err)
			continue
		}
		for _, mapping := range []relayDomain.Mapping{
			relayDomain.MappingFollowUpSchedule,
			relayDomain.MappingCreatedAt,
			relayDomain.MappingTrackerAtNotify,
		} {
			if err := s.store.Remove(ctx, mapping, ev.ID); err != nil {
				s.logger.Errorw("failed to clear mapping on completion", "ticket_id", ev.ID, "mapping", mapping, "error", err)
			}
		}
	}
}

// applyRemovals handles upstream deletions and tracker-change corrections:
// deletion reactions on both messages, then a full purge of the per-ticket
// mappings. The purge runs regardless of reaction failures since the
// upstream ticket no longer exists to reconcile against.
func (s *Service) applyRemovals(ctx context.Context, ids []int) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		s.reactOnStored(ctx, relayDomain.MappingMessageRef, id, s.deletionReaction)
		s.reactOnStored(ctx, relayDomain.MappingFollowUpMessageRef, id, s.deletionReaction)
	}
	if err := s.store.RemoveMany(ctx, ids); err != nil {
		s.logger.Errorw("failed to purge removed tickets", "ids", ids, "error", err)
		return
	}
	s.logger.Infow("removed tickets from tracking", "ids", ids)
}

// reactOnStored adds a reaction to the message referenced by the given
// mapping entry. Returns true when the reaction landed or when no ref is
// stored, false when the ref exists but the reaction failed.
func (s *Service) reactOnStored(ctx context.Context, mapping relayDomain.Mapping, id int, emoji string) bool {
	entries, err := s.store.Load(ctx, mapping)
	if err != nil {
		s.logger.Errorw("failed to load message refs", "mapping", mapping, "error", err)
		return false
	}
	raw, ok := entries[id]
	if !ok {
		return true
	}
	ref, err := relayDomain.DecodeMessageRef(raw)
	if err != nil {
		s.logger.Warnw("dropping malformed message ref", "ticket_id", id, "mapping", mapping, "error", err)
		return true
	}
	if err := s.sink.React(ctx, ref, emoji); err != nil {
		s.logger.Warnw("failed to react on message", "ticket_id", id, "emoji", emoji, "error", err)
		return false
	}
	return true
}

// sweepFollowUps sends the one "still not started" nudge for tickets whose
// schedule entry has aged past the policy threshold. The status is always
// re-fetched right before acting: a ticket may have moved on or vanished
// between the schedule check and now.
func (s *Service) sweepFollowUps(ctx context.Context, now time.Time) {
	schedule, err := s.store.Load(ctx, relayDomain.MappingFollowUpSchedule)
	if err != nil {
		s.logger.Errorw("failed to load follow-up schedule", "error", err)
		return
	}

	due, malformed := s.policy.Due(schedule, now)
	for _, id := range malformed {
		s.logger.Warnw("dropping malformed follow-up schedule entry", "ticket_id", id, "value", schedule[id])
		if err := s.store.Remove(ctx, relayDomain.MappingFollowUpSchedule, id); err != nil {
			s.logger.Errorw("failed to drop schedule entry", "ticket_id", id, "error", err)
		}
	}

	for _, id := range due {
		current, err := s.source.FetchByID(ctx, id)
		switch {
		case apperrors.IsNotFoundError(err):
			// Gone upstream; the deletion path purges the rest next cycle.
			s.logger.Infow("scheduled ticket deleted upstream, dropping follow-up", "ticket_id", id)
			s.removeScheduleEntry(ctx, id)
			continue
		case err != nil:
			s.logger.Warnw("failed to fetch scheduled ticket, will retry next cycle", "ticket_id", id, "error", err)
			continue
		}

		if !current.StatusClass().IsUnstarted() {
			// The nudge is moot once work started or the ticket closed.
			s.logger.Debugw("scheduled ticket moved on, dropping follow-up",
				"ticket_id", id, "status", current.StatusName())
			s.removeScheduleEntry(ctx, id)
			continue
		}

		ref, err := s.sink.Post(ctx, s.builder.FollowUp(current))
		if err != nil {
			s.logger.Errorw("failed to send follow-up, will retry next cycle", "ticket_id", id, "error", err)
			continue
		}
		if err := s.store.Upsert(ctx, relayDomain.MappingFollowUpMessageRef, id, ref.Encode()); err != nil {
			s.logger.Errorw("failed to record follow-up message ref", "ticket_id", id, "error", err)
		}
		s.removeScheduleEntry(ctx, id)
		s.logger.Infow("sent follow-up for unattended ticket", "ticket_id", id)
	}
}

func (s *Service) removeScheduleEntry(ctx context.Context, id int) {
	if err := s.store.Remove(ctx, relayDomain.MappingFollowUpSchedule, id); err != nil {
		s.logger.Errorw("failed to remove schedule entry", "ticket_id", id, "error", err)
	}
}
