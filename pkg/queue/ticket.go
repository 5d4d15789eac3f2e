package queue

import (
	"time"

	"github.com/google/uuid"
)

type UserId string

type TicketId string

type State uint8

const (
	Waiting State = iota
	Matched
	Cancelled
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Matched:
		return "matched"
	}
	return "cancelled"
}

// Ticket is a user's standing request to be matched. A user holds at
// most one waiting ticket. Only waiting tickets live in a store, a ticket
// leaves the store on its terminal transition.
type Ticket struct {
	// Identity of this particular request. A re-enqueue of the same user
	// gets a new one, so a claim made against an older ticket fails.
	TicketId TicketId

	UserId UserId

	Criteria Criteria

	Profile Profile

	// The time when ticket is enqueued. Among compatible tickets the
	// oldest is matched first.
	EnqueuedAt time.Time

	State State
}

// NewTicket validates the request and returns a waiting ticket.
func NewTicket(userId UserId, criteria Criteria, profile Profile, now time.Time) (*Ticket, error) {
	if userId == "" {
		return nil, ErrInvalidUser
	}

	criteria, err := criteria.Normalize()
	if err != nil {
		return nil, err
	}
	profile, err = profile.Normalize()
	if err != nil {
		return nil, err
	}

	return &Ticket{
		TicketId:   TicketId(uuid.NewString()),
		UserId:     userId,
		Criteria:   criteria,
		Profile:    profile,
		EnqueuedAt: now,
		State:      Waiting,
	}, nil
}

// IsStale is true for a ticket that outlived any search that could own
// it. Its searcher is gone and it can be removed.
func (t *Ticket) IsStale(now time.Time, stalePeriod time.Duration) bool {
	return t.EnqueuedAt.Before(now.Add(-stalePeriod))
}

func (t *Ticket) clone() *Ticket {
	c := *t
	return &c
}
