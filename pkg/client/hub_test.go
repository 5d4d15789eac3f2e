package client

import (
	"context"
	"encoding/json"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"game-soul-technology/joker/joker-match-queue-server/pkg/match"
	"game-soul-technology/joker/joker-match-queue-server/pkg/msg"
	"game-soul-technology/joker/joker-match-queue-server/pkg/presence"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type richWallet struct{}

func (richWallet) Balance(ctx context.Context, userId queue.UserId) (int64, error) {
	return 1000, nil
}

func (richWallet) Debit(ctx context.Context, userId queue.UserId, amount int64, idempotencyKey string) error {
	return nil
}

type countingRooms struct {
	lock sync.Mutex
	n    int
}

func (r *countingRooms) CreateRoom(ctx context.Context, userA, userB queue.UserId, maxDurationMinutes uint) (*match.Room, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.n++
	return &match.Room{
		RoomId: match.RoomId(fmt.Sprintf("room-%v", r.n)),
		TokenA: "token-a",
		TokenB: "token-b",
	}, nil
}

func (r *countingRooms) CloseRoom(ctx context.Context, roomId match.RoomId) error {
	return nil
}

// slowWallet answers balance checks late, like a main server under load.
type slowWallet struct {
	richWallet
	delay    time.Duration
	answered chan struct{}
}

func newSlowWallet(delay time.Duration) *slowWallet {
	return &slowWallet{delay: delay, answered: make(chan struct{}, 16)}
}

func (w *slowWallet) Balance(ctx context.Context, userId queue.UserId) (int64, error) {
	time.Sleep(w.delay)
	w.answered <- struct{}{}
	return 1000, nil
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub, srv, _ := newTestHubWithWallet(t, richWallet{})
	return hub, srv
}

func newTestHubWithWallet(t *testing.T, wallet match.Wallet) (*Hub, *httptest.Server, queue.Store) {
	t.Helper()

	cfg := &config.Config{
		PollIntervalMillis:         intPtr(2000),
		MaxPollAttempts:            intPtr(15),
		ServerSidePolling:          boolPtr(true),
		TicketStaleSeconds:         intPtr(60),
		PresenceTtlSeconds:         intPtr(30),
		BillingIntervalSecs:        intPtr(60),
		MaxCandidateChecks:         intPtr(5),
		SweepIntervalSeconds:       intPtr(30),
		NotifyStatsIntervalSeconds: intPtr(5),
		AverageWaitWindowSize:      intPtr(50),
		PingIntervalSeconds:        intPtr(30),
	}
	loggerFactory := infra.NewNopLoggerFactory()
	clk := clock.ProvideClock()
	store := queue.NewMemoryStore(clk, cfg.TicketStalePeriod(), loggerFactory)

	coordinator := match.ProvideCoordinator(
		store,
		presence.NewMemoryStore(clk),
		wallet,
		&countingRooms{},
		config.NewStaticMatchConfig(config.DefaultMatchSettings),
		cfg,
		clk,
		match.ProvideTickerFactory(),
		match.ProvideStatsTracker(cfg, loggerFactory),
		loggerFactory,
	)
	hub := ProvideHub(coordinator, cfg, loggerFactory)
	hub.Run()

	upgrader := &websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(queue.UserId(r.URL.Query().Get("userId")), conn, hub).Run()
	}))
	t.Cleanup(srv.Close)

	return hub, srv, store
}

func dial(t *testing.T, srv *httptest.Server, userId string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userId
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, code msg.EventCode, event interface{}) {
	t.Helper()

	wsMessage, err := msg.New(code, event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteJSON(wsMessage); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads messages until one of code arrives, skipping stats.
func expect(t *testing.T, conn *websocket.Conn, code msg.EventCode, event interface{}) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		wsMessage := &msg.WsMessage{}
		if err := conn.ReadJSON(wsMessage); err != nil {
			t.Fatalf("waiting for eventCode[%v]: %v", code, err)
		}
		if wsMessage.EventCode == msg.MatchStatsCode {
			continue
		}
		if wsMessage.EventCode != code {
			t.Fatalf("expected eventCode %v, got %v data %s", code, wsMessage.EventCode, wsMessage.EventData)
		}
		if event != nil {
			if err := json.Unmarshal(wsMessage.EventData, event); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
		}
		return
	}
}

// expectAll reads messages until every code in events arrived, in any
// order.
func expectAll(t *testing.T, conn *websocket.Conn, events map[msg.EventCode]interface{}) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(events) > 0 {
		wsMessage := &msg.WsMessage{}
		if err := conn.ReadJSON(wsMessage); err != nil {
			t.Fatalf("waiting for eventCodes %v: %v", events, err)
		}
		if wsMessage.EventCode == msg.MatchStatsCode {
			continue
		}
		event, ok := events[wsMessage.EventCode]
		if !ok {
			t.Fatalf("unexpected eventCode %v data %s", wsMessage.EventCode, wsMessage.EventData)
		}
		if event != nil {
			if err := json.Unmarshal(wsMessage.EventData, event); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
		}
		delete(events, wsMessage.EventCode)
	}
}

const startSearchJson = `{"criteria":{"language":"en","genderFilter":"any","countryFilter":"any"},"profile":{"gender":"female","country":"TW"}}`

func TestHubMatchesAndEndsCall(t *testing.T) {
	_, srv := newTestHub(t)
	connA := dial(t, srv, "a")
	connB := dial(t, srv, "b")

	send(t, connA, msg.StartSearchCode, json.RawMessage(startSearchJson))
	expect(t, connA, msg.SearchStartedCode, &msg.SearchStartedServerEvent{})

	// The match of b may be pushed before b hears its search started.
	send(t, connB, msg.StartSearchCode, json.RawMessage(startSearchJson))
	matchedB := &msg.MatchedServerEvent{}
	expectAll(t, connB, map[msg.EventCode]interface{}{
		msg.SearchStartedCode: nil,
		msg.MatchedCode:       matchedB,
	})

	matchedA := &msg.MatchedServerEvent{}
	expect(t, connA, msg.MatchedCode, matchedA)

	if matchedA.RoomId == "" || matchedA.RoomId != matchedB.RoomId {
		t.Fatalf("expected same room, got %v and %v", matchedA.RoomId, matchedB.RoomId)
	}
	if matchedA.PeerUserId != "b" || matchedB.PeerUserId != "a" {
		t.Fatalf("expected peers b and a, got %v and %v", matchedA.PeerUserId, matchedB.PeerUserId)
	}

	send(t, connA, msg.EndCallCode, &msg.EndCallClientEvent{RoomId: matchedA.RoomId})
	ended := &msg.CallEndedServerEvent{}
	expect(t, connB, msg.CallEndedCode, ended)
	if ended.RoomId != matchedA.RoomId {
		t.Fatalf("expected room %v ended, got %v", matchedA.RoomId, ended.RoomId)
	}
}

func TestHubReportsRejectedSearch(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv, "a")

	send(t, conn, msg.StartSearchCode, json.RawMessage(`{"criteria":{"language":"en"}}`))

	event := &msg.ErrorServerEvent{}
	expect(t, conn, msg.ErrorCode, event)
	if event.RequestCode != msg.StartSearchCode {
		t.Fatalf("expected error of StartSearchCode, got %v", event.RequestCode)
	}
}

func TestHubStopsSearchOnDisconnect(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "a")

	send(t, conn, msg.StartSearchCode, json.RawMessage(startSearchJson))
	expect(t, conn, msg.SearchStartedCode, nil)
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := hub.coordinator.PollForMatch(context.Background(), "a"); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected search stopped after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// awaitNotSearching polls until the search of userId is gone and checks
// that no ticket of userId is left waiting.
func awaitNotSearching(t *testing.T, hub *Hub, store queue.Store, userId queue.UserId) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		outcome, err := hub.coordinator.PollForMatch(context.Background(), userId)
		if err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected search of %v stopped, got outcome %+v", userId, outcome)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ticket, err := store.Get(context.Background(), userId)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ticket != nil {
		t.Fatalf("expected no waiting ticket, got %+v", ticket)
	}
}

func TestHubStopFollowsSlowStart(t *testing.T) {
	wallet := newSlowWallet(200 * time.Millisecond)
	hub, srv, store := newTestHubWithWallet(t, wallet)
	conn := dial(t, srv, "a")

	send(t, conn, msg.StartSearchCode, json.RawMessage(startSearchJson))
	send(t, conn, msg.StopSearchCode, nil)

	expect(t, conn, msg.SearchStartedCode, nil)
	awaitNotSearching(t, hub, store, "a")
}

func TestHubDisconnectDuringSlowStart(t *testing.T) {
	wallet := newSlowWallet(200 * time.Millisecond)
	hub, srv, store := newTestHubWithWallet(t, wallet)
	conn := dial(t, srv, "a")

	send(t, conn, msg.StartSearchCode, json.RawMessage(startSearchJson))
	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case <-wallet.answered:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected balance check")
	}
	// Let the start finish before looking.
	time.Sleep(100 * time.Millisecond)

	awaitNotSearching(t, hub, store, "a")
}
