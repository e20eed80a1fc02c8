package relay

import (
	"sort"
	"time"

	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
)

// FollowUpPolicy decides when a relayed-but-unattended ticket is due for
// its one follow-up notification. Two historical variants of the policy
// exist; both run off the follow-up schedule mapping and differ only in
// the anchor timestamp they record at relay time.
//
// A policy never performs I/O: the application service loads the schedule,
// asks the policy which IDs are due, re-fetches the ticket's fresh status
// and sends the notification itself.
type FollowUpPolicy interface {
	// Name identifies the policy in configuration and logs.
	Name() string
	// Threshold is the configured interval a ticket may stay unattended.
	Threshold() time.Duration
	// AnchorAtRelay returns the schedule entry value recorded when the
	// ticket is relayed.
	AnchorAtRelay(tk *ticket.Ticket, now time.Time) time.Time
	// Due returns the IDs whose schedule entry has aged past the
	// threshold, in ascending ID order. Entries that fail to parse are
	// reported separately so the caller can drop them.
	Due(schedule map[int]string, now time.Time) (due []int, malformed []int)
}

// dueFromSchedule is the shared schedule scan of both policies.
func dueFromSchedule(schedule map[int]string, now time.Time, threshold time.Duration) (due []int, malformed []int) {
	for id, value := range schedule {
		anchor, err := time.Parse(time.RFC3339, value)
		if err != nil {
			malformed = append(malformed, id)
			continue
		}
		if !now.Before(anchor.Add(threshold)) {
			due = append(due, id)
		}
	}
	sort.Ints(due)
	sort.Ints(malformed)
	return due, malformed
}

// IntervalPolicy anchors the schedule at relay time: a ticket still
// unstarted a full interval after it was announced gets the follow-up.
type IntervalPolicy struct {
	interval time.Duration
}

func NewIntervalPolicy(interval time.Duration) *IntervalPolicy {
	return &IntervalPolicy{interval: interval}
}

func (p *IntervalPolicy) Name() string {
	return "interval"
}

func (p *IntervalPolicy) Threshold() time.Duration {
	return p.interval
}

func (p *IntervalPolicy) AnchorAtRelay(_ *ticket.Ticket, now time.Time) time.Time {
	return now
}

func (p *IntervalPolicy) Due(schedule map[int]string, now time.Time) ([]int, []int) {
	return dueFromSchedule(schedule, now, p.interval)
}

// ElapsedSinceCreationPolicy anchors the schedule at the tracker-reported
// creation time: the pending threshold counts from when the ticket was
// opened, not from when the relay first saw it.
type ElapsedSinceCreationPolicy struct {
	threshold time.Duration
}

func NewElapsedSinceCreationPolicy(threshold time.Duration) *ElapsedSinceCreationPolicy {
	return &ElapsedSinceCreationPolicy{threshold: threshold}
}

func (p *ElapsedSinceCreationPolicy) Name() string {
	return "once"
}

func (p *ElapsedSinceCreationPolicy) Threshold() time.Duration {
	return p.threshold
}

func (p *ElapsedSinceCreationPolicy) AnchorAtRelay(tk *ticket.Ticket, _ time.Time) time.Time {
	return tk.CreatedAt()
}

func (p *ElapsedSinceCreationPolicy) Due(schedule map[int]string, now time.Time) ([]int, []int) {
	return dueFromSchedule(schedule, now, p.threshold)
}
