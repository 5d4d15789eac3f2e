package match

import (
	"errors"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
)

var (
	ErrInvalidUser     = queue.ErrInvalidUser
	ErrInvalidCriteria = queue.ErrInvalidCriteria

	ErrMatchDisabled       = errors.New("match is disabled")
	ErrAlreadyInCall       = errors.New("user is already in a call")
	ErrMatchInProgress     = errors.New("a match of user is being committed")
	ErrInsufficientBalance = errors.New("insufficient balance for one minute of call")
	ErrEnqueueFailed       = errors.New("failed to enqueue ticket")
	ErrNotSearching        = errors.New("user is not searching")
	ErrNotParticipant      = errors.New("user is not a participant of the call")

	// Returned by a Wallet when a debit is refused for lack of coins.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
