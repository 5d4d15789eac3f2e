package match

import "game-soul-technology/joker/joker-match-queue-server/pkg/queue"

type Status string

const (
	StatusSearching Status = "searching"
	StatusMatched   Status = "matched"
	StatusTimedOut  Status = "timeout"
)

// Outcome of a search as seen by its user.
type Outcome struct {
	Status Status `json:"status"`

	// Set if matched.
	Seat *Seat `json:"seat,omitempty"`

	// Match attempts made so far.
	Attempts int `json:"attempts"`
}

type NotificationKind string

const (
	NotifyMatched   NotificationKind = "matched"
	NotifyTimedOut  NotificationKind = "timedOut"
	NotifyRetrying  NotificationKind = "retrying"
	NotifyCallEnded NotificationKind = "callEnded"
)

// Notification is pushed to a user when a search or call of the user
// changes on the server side.
type Notification struct {
	UserId queue.UserId

	Kind NotificationKind

	Seat *Seat

	RoomId RoomId

	Reason string
}
