package match

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
)

type RoomId string

// Wallet holds the coins of users. Implemented by the main server.
type Wallet interface {
	Balance(ctx context.Context, userId queue.UserId) (int64, error)

	// Debit returns ErrInsufficientFunds if userId can't pay amount.
	// Debits sharing an idempotencyKey are applied once.
	Debit(ctx context.Context, userId queue.UserId, amount int64, idempotencyKey string) error
}

// Room is a two party video room, a side joins it with its own token.
type Room struct {
	RoomId RoomId `json:"roomId"`
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
}

// RoomFactory allocates video rooms. Implemented by the main server.
type RoomFactory interface {
	CreateRoom(ctx context.Context, userA, userB queue.UserId, maxDurationMinutes uint) (*Room, error)

	// CloseRoom of a room already closed is not an error.
	CloseRoom(ctx context.Context, roomId RoomId) error
}

// Seat is one side's handle on a room.
type Seat struct {
	RoomId     RoomId       `json:"roomId"`
	Token      string       `json:"token"`
	PeerUserId queue.UserId `json:"peerUserId"`
	MaxMinutes uint         `json:"maxMinutes"`
}
