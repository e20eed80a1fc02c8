package ticket

import (
	"fmt"
	"time"

	vo "github.com/orris-inc/ticketwatch/internal/domain/ticket/valueobjects"
)

// Ticket is a read model of an upstream tracker issue. It is a snapshot of
// what the tracker reported at fetch time; the relay never mutates it.
type Ticket struct {
	id           int
	trackerID    int
	trackerName  string
	subject      string
	description  string
	authorName   string
	assigneeName string
	projectName  string
	priorityName string
	statusName   string
	createdAt    time.Time
}

func NewTicket(
	id int,
	trackerID int,
	trackerName string,
	subject string,
	description string,
	authorName string,
	assigneeName string,
	projectName string,
	priorityName string,
	statusName string,
	createdAt time.Time,
) (*Ticket, error) {
	if id <= 0 {
		return nil, fmt.Errorf("ticket ID must be positive, got %d", id)
	}
	if createdAt.IsZero() {
		return nil, fmt.Errorf("ticket #%d has no creation time", id)
	}

	return &Ticket{
		id:           id,
		trackerID:    trackerID,
		trackerName:  trackerName,
		subject:      subject,
		description:  description,
		authorName:   authorName,
		assigneeName: assigneeName,
		projectName:  projectName,
		priorityName: priorityName,
		statusName:   statusName,
		createdAt:    createdAt.UTC(),
	}, nil
}

func (t *Ticket) ID() int {
	return t.id
}

func (t *Ticket) TrackerID() int {
	return t.trackerID
}

func (t *Ticket) TrackerName() string {
	return t.trackerName
}

func (t *Ticket) Subject() string {
	return t.subject
}

func (t *Ticket) Description() string {
	return t.description
}

func (t *Ticket) AuthorName() string {
	return t.authorName
}

// AssigneeName returns the assignee display name, empty when unassigned.
func (t *Ticket) AssigneeName() string {
	return t.assigneeName
}

func (t *Ticket) ProjectName() string {
	return t.projectName
}

func (t *Ticket) PriorityName() string {
	return t.priorityName
}

func (t *Ticket) StatusName() string {
	return t.statusName
}

func (t *Ticket) CreatedAt() time.Time {
	return t.createdAt
}

// StatusClass classifies the raw status name into its semantic kind.
func (t *Ticket) StatusClass() vo.StatusClass {
	return vo.Classify(t.statusName)
}
