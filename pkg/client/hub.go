package client

import (
	"context"
	"encoding/json"
	"errors"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"game-soul-technology/joker/joker-match-queue-server/pkg/match"
	"game-soul-technology/joker/joker-match-queue-server/pkg/msg"
	"game-soul-technology/joker/joker-match-queue-server/pkg/presence"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/hashmap"
	"go.uber.org/zap"
)

// Time allowed for a request of a client to finish.
const requestTimeout = 15 * time.Second

// Hub pushes match results to connected users and takes their search
// requests over websocket.
type Hub struct {
	// Registered clients. Key value: client.userId -> client.
	clients     *hashmap.Map
	clientsLock sync.RWMutex

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	coordinator *match.Coordinator

	config *config.Config

	logger *zap.SugaredLogger
}

func ProvideHub(coordinator *match.Coordinator, config *config.Config, loggerFactory *infra.LoggerFactory) *Hub {
	return &Hub{
		clients: hashmap.New(),

		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),

		coordinator: coordinator,
		config:      config,
		logger:      loggerFactory.Create("Hub").Sugar(),
	}
}

func (h *Hub) Run() {
	go h.handleClient()
	go h.handleCoordinator()
}

func (h *Hub) handleClient() {
	for {
		select {
		case client := <-h.register:
			h.logger.Debugf("register client userId[%v]", client.userId)
			if old := h.putClient(client); old != nil {
				h.logger.Infof("userId[%v] connected again, closing old client", client.userId)
				old.TryClose()
			}

		case client := <-h.unregister:
			h.logger.Debugf("unregister client userId[%v]", client.userId)
			if !h.removeClient(client) {
				continue
			}

			// A user who drops the connection gives up the search. A call
			// is left to the peer or the wallet guard. Every request of the
			// client has finished by now.
			go h.leave(client.userId)
		}
	}
}

func (h *Hub) handleCoordinator() {
	for {
		select {
		case notification := <-h.coordinator.Notify:
			h.logger.Debugf("notification[%+v]", notification)
			wsMessage, err := notificationMessage(notification)
			if err != nil {
				h.logger.Errorf("cannot marshal notification[%+v] %v", notification, err)
				continue
			}

			client := h.getClient(notification.UserId)
			if client == nil {
				h.logger.Debugf("no client for userId[%v], notification left for polling", notification.UserId)
				continue
			}
			client.Send(wsMessage)

		case stats := <-h.coordinator.NotifyStats:
			wsMessage, err := msg.New(msg.MatchStatsCode, &msg.MatchStatsServerEvent{
				WaitingTickets: stats.WaitingTickets,
				SearchingUsers: stats.SearchingUsers,
				ActiveCalls:    stats.ActiveCalls,
				MatchesMade:    stats.MatchesMade,
				AvgWaitMsec:    stats.AvgWaitDuration.Milliseconds(),
			})
			if err != nil {
				h.logger.Errorf("cannot marshal MatchStatsServerEvent %v", err)
				continue
			}

			h.clientsLock.RLock()
			for _, value := range h.clients.Values() {
				value.(*Client).Send(wsMessage)
			}
			h.clientsLock.RUnlock()
		}
	}
}

func notificationMessage(notification *match.Notification) (*msg.WsMessage, error) {
	switch notification.Kind {
	case match.NotifyMatched:
		seat := notification.Seat
		return msg.New(msg.MatchedCode, &msg.MatchedServerEvent{
			RoomId:     string(seat.RoomId),
			Token:      seat.Token,
			PeerUserId: string(seat.PeerUserId),
			MaxMinutes: seat.MaxMinutes,
		})
	case match.NotifyTimedOut:
		return msg.New(msg.TimedOutCode, &msg.TimedOutServerEvent{Reason: notification.Reason})
	case match.NotifyRetrying:
		return msg.New(msg.RetryingCode, &msg.RetryingServerEvent{Reason: notification.Reason})
	case match.NotifyCallEnded:
		return msg.New(msg.CallEndedCode, &msg.CallEndedServerEvent{
			RoomId: string(notification.RoomId),
			Reason: notification.Reason,
		})
	}
	return nil, errors.New("unknown notification kind " + string(notification.Kind))
}

// handleRequest runs on the request pump of client.
func (h *Hub) handleRequest(client *Client, wsMessage *msg.WsMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch wsMessage.EventCode {
	case msg.StartSearchCode:
		event := &msg.StartSearchClientEvent{}
		if err = json.Unmarshal(wsMessage.EventData, event); err != nil {
			err = errors.Join(queue.ErrInvalidCriteria, err)
			break
		}

		var ticket *queue.Ticket
		ticket, err = h.coordinator.StartSearch(ctx, client.userId, event.Criteria, event.Profile)
		if err != nil {
			break
		}

		var started *msg.WsMessage
		started, err = msg.New(msg.SearchStartedCode, &msg.SearchStartedServerEvent{
			TicketId:       string(ticket.TicketId),
			EnqueuedAtMsec: ticket.EnqueuedAt.UnixMilli(),
		})
		if err == nil {
			client.Send(started)
		}

	case msg.StopSearchCode:
		err = h.coordinator.StopSearch(ctx, client.userId)

	case msg.EndCallCode:
		event := &msg.EndCallClientEvent{}
		if err = json.Unmarshal(wsMessage.EventData, event); err != nil {
			break
		}
		err = h.coordinator.EndCall(ctx, client.userId, match.RoomId(event.RoomId))

	default:
		h.logger.Errorf("userId[%v] invalid eventCode[%v]", client.userId, wsMessage.EventCode)
		return
	}

	if err == nil {
		return
	}

	h.logger.Infof("userId[%v] eventCode[%v] failed %v", client.userId, wsMessage.EventCode, err)
	errMessage, marshalErr := msg.New(msg.ErrorCode, &msg.ErrorServerEvent{
		RequestCode: wsMessage.EventCode,
		Message:     err.Error(),
	})
	if marshalErr != nil {
		h.logger.Errorf("cannot marshal ErrorServerEvent %v", marshalErr)
		return
	}
	client.Send(errMessage)
}

func (h *Hub) heartbeat(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := h.coordinator.Heartbeat(ctx, client.userId, presence.Attrs{Online: true}); err != nil {
		h.logger.Errorf("userId[%v] heartbeat failed %v", client.userId, err)
	}
}

func (h *Hub) leave(userId queue.UserId) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := h.coordinator.StopSearch(ctx, userId); err != nil {
		h.logger.Errorf("userId[%v] stop search on leave failed %v", userId, err)
	}
	if err := h.coordinator.Heartbeat(ctx, userId, presence.Attrs{Online: false}); err != nil {
		h.logger.Errorf("userId[%v] offline heartbeat failed %v", userId, err)
	}
}

func (h *Hub) putClient(client *Client) *Client {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	var old *Client
	if value, ok := h.clients.Get(client.userId); ok {
		old = value.(*Client)
	}
	h.clients.Put(client.userId, client)
	return old
}

func (h *Hub) getClient(userId queue.UserId) *Client {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	value, ok := h.clients.Get(userId)
	if !ok {
		return nil
	}
	return value.(*Client)
}

// removeClient removes client unless it was already replaced by a newer
// connection of the same user.
func (h *Hub) removeClient(client *Client) bool {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	value, ok := h.clients.Get(client.userId)
	if !ok || value.(*Client) != client {
		return false
	}
	h.clients.Remove(client.userId)
	client.TryClose()
	return true
}
