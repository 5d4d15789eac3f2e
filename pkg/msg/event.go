package msg

import "game-soul-technology/joker/joker-match-queue-server/pkg/queue"

type EventCode uint

// Client to server.
const (
	StartSearchCode EventCode = 1000
	StopSearchCode  EventCode = 1001
	EndCallCode     EventCode = 1002
)

// Server to client.
const (
	SearchStartedCode EventCode = 2000
	MatchedCode       EventCode = 2001
	TimedOutCode      EventCode = 2002
	RetryingCode      EventCode = 2003
	CallEndedCode     EventCode = 2004
	MatchStatsCode    EventCode = 2005
	ErrorCode         EventCode = 2999
)

type StartSearchClientEvent struct {
	Criteria queue.Criteria `json:"criteria"`
	Profile  queue.Profile  `json:"profile"`
}

type EndCallClientEvent struct {
	RoomId string `json:"roomId"`
}

type SearchStartedServerEvent struct {
	TicketId       string `json:"ticketId"`
	EnqueuedAtMsec int64  `json:"enqueuedAtMsec"`
}

type MatchedServerEvent struct {
	RoomId     string `json:"roomId"`
	Token      string `json:"token"`
	PeerUserId string `json:"peerUserId"`
	MaxMinutes uint   `json:"maxMinutes"`
}

type TimedOutServerEvent struct {
	Reason string `json:"reason"`
}

type RetryingServerEvent struct {
	Reason string `json:"reason"`
}

type CallEndedServerEvent struct {
	RoomId string `json:"roomId"`
	Reason string `json:"reason"`
}

type MatchStatsServerEvent struct {
	WaitingTickets int   `json:"waitingTickets"`
	SearchingUsers int   `json:"searchingUsers"`
	ActiveCalls    int   `json:"activeCalls"`
	MatchesMade    int64 `json:"matchesMade"`
	AvgWaitMsec    int64 `json:"avgWaitMsec"`
}

type ErrorServerEvent struct {
	// Code of the request that failed.
	RequestCode EventCode `json:"requestCode"`
	Message     string    `json:"message"`
}
