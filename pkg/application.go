package main

import (
	"context"
	"errors"
	"game-soul-technology/joker/joker-match-queue-server/pkg/client"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"game-soul-technology/joker/joker-match-queue-server/pkg/match"
	"game-soul-technology/joker/joker-match-queue-server/pkg/msg"
	"game-soul-technology/joker/joker-match-queue-server/pkg/presence"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Header carrying the acting user. Set by the gateway after auth.
const userIdHeader = "userId"

type Application struct {
	matchConfig *config.MatchConfig
	coordinator *match.Coordinator
	hub         *client.Hub
	wsUpgrader  *websocket.Upgrader
	logger      *zap.SugaredLogger
}

func ProvideApplication(matchConfig *config.MatchConfig, coordinator *match.Coordinator, hub *client.Hub, loggerFactory *infra.LoggerFactory) *Application {
	return &Application{
		matchConfig: matchConfig,
		coordinator: coordinator,
		hub:         hub,
		wsUpgrader:  &websocket.Upgrader{},
		logger:      loggerFactory.Create("Application").Sugar(),
	}
}

func (a *Application) Run(ctx context.Context) {
	go a.matchConfig.Run(ctx)
	a.coordinator.Run(ctx)
	a.hub.Run()
}

type startSearchResponse struct {
	TicketId       string `json:"ticketId"`
	EnqueuedAtMsec int64  `json:"enqueuedAtMsec"`
}

func (a *Application) HandleStartSearch(c echo.Context) error {
	request := &msg.StartSearchClientEvent{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ticket, err := a.coordinator.StartSearch(c.Request().Context(), actingUser(c), request.Criteria, request.Profile)
	if err != nil {
		return toHttpError(err)
	}

	return c.JSON(http.StatusCreated, &startSearchResponse{
		TicketId:       string(ticket.TicketId),
		EnqueuedAtMsec: ticket.EnqueuedAt.UnixMilli(),
	})
}

func (a *Application) HandlePollSearch(c echo.Context) error {
	outcome, err := a.coordinator.PollForMatch(c.Request().Context(), actingUser(c))
	if err != nil {
		return toHttpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (a *Application) HandleStopSearch(c echo.Context) error {
	if err := a.coordinator.StopSearch(c.Request().Context(), actingUser(c)); err != nil {
		return toHttpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *Application) HandleEndCall(c echo.Context) error {
	roomId := match.RoomId(c.Param("roomId"))
	if err := a.coordinator.EndCall(c.Request().Context(), actingUser(c), roomId); err != nil {
		return toHttpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *Application) HandleHeartbeat(c echo.Context) error {
	attrs := &presence.Attrs{}
	if err := c.Bind(attrs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := a.coordinator.Heartbeat(c.Request().Context(), actingUser(c), *attrs); err != nil {
		return toHttpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *Application) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, a.coordinator.Stats())
}

func (a *Application) HandleWs(c echo.Context) error {
	userId := actingUser(c)
	if userId == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing userId")
	}

	conn, err := a.wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// Nothing to wait for while matching is off.
	if !a.matchConfig.Settings().IsMatchEnabled {
		wsMessage, err := msg.New(msg.ErrorCode, &msg.ErrorServerEvent{Message: match.ErrMatchDisabled.Error()})
		if err != nil {
			a.logger.Errorf("cannot marshal ErrorServerEvent %v", err)
		} else if err := conn.WriteJSON(wsMessage); err != nil {
			a.logger.Errorf("cannot write json to ws conn %v", err)
		}

		if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Match disabled")); err != nil {
			a.logger.Errorf("cannot write close message to ws conn %v", err)
		}
		conn.Close()
		return nil
	}

	client.NewClient(userId, conn, a.hub).Run()
	return nil
}

func actingUser(c echo.Context) queue.UserId {
	return queue.UserId(c.Request().Header.Get(userIdHeader))
}

func toHttpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, match.ErrInvalidUser), errors.Is(err, match.ErrInvalidCriteria):
		code = http.StatusBadRequest
	case errors.Is(err, match.ErrInsufficientBalance):
		code = http.StatusPaymentRequired
	case errors.Is(err, match.ErrNotParticipant):
		code = http.StatusForbidden
	case errors.Is(err, match.ErrNotSearching):
		code = http.StatusNotFound
	case errors.Is(err, match.ErrAlreadyInCall), errors.Is(err, match.ErrMatchInProgress):
		code = http.StatusConflict
	case errors.Is(err, match.ErrMatchDisabled), errors.Is(err, match.ErrEnqueueFailed):
		code = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(code, err.Error())
}
