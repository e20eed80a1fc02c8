package relay

import (
	"context"
	"time"

	relayDomain "github.com/orris-inc/ticketwatch/internal/domain/relay"
)

// StatusSnapshot is the read-only operational view served by the HTTP
// status endpoint.
type StatusSnapshot struct {
	Watermark     time.Time `json:"watermark"`
	OpenTracked   int       `json:"open_tracked"`
	Completed     int       `json:"completed"`
	ScheduledFor  int       `json:"scheduled_follow_ups"`
	LastCycleAt   time.Time `json:"last_cycle_at"`
	FollowUpModel string    `json:"follow_up_policy"`
}

// Status assembles a snapshot of the relay's tracking state.
func (s *Service) Status(ctx context.Context) (StatusSnapshot, error) {
	notified, err := s.store.Load(ctx, relayDomain.MappingNotified)
	if err != nil {
		return StatusSnapshot{}, err
	}
	completed, err := s.store.Load(ctx, relayDomain.MappingCompleted)
	if err != nil {
		return StatusSnapshot{}, err
	}
	schedule, err := s.store.Load(ctx, relayDomain.MappingFollowUpSchedule)
	if err != nil {
		return StatusSnapshot{}, err
	}
	watermark, _, err := s.store.LoadWatermark(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}

	open := 0
	for id := range notified {
		if _, done := completed[id]; !done {
			open++
		}
	}

	s.mu.Lock()
	lastCycle := s.lastCycleAt
	s.mu.Unlock()

	return StatusSnapshot{
		Watermark:     watermark,
		OpenTracked:   open,
		Completed:     len(completed),
		ScheduledFor:  len(schedule),
		LastCycleAt:   lastCycle,
		FollowUpModel: s.policy.Name(),
	}, nil
}
