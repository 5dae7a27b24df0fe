package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-sniper-bot/autotrader/internal/models"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)

	bus.Publish(models.Event{Type: models.EventSnipeExecuted, UserID: "u1"})
	bus.Publish(models.Event{Type: models.EventSnipeFailed, UserID: "u1"})

	ev := <-ch
	assert.Equal(t, models.EventSnipeExecuted, ev.Type)
	assert.Equal(t, uint64(1), bus.Dropped())

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	bus.Close()
	closedCh, _ := bus.Subscribe(1)
	_, open = <-closedCh
	assert.False(t, open)
}

func TestHub_StreamsOnlyOwnEvents(t *testing.T) {
	bus := NewBus()
	hub := NewHub(nil, []string{"*"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()
	go hub.Run(ctx, events)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(models.Event{Type: models.EventCopyTradeExecuted, UserID: "u2"})
	bus.Publish(models.Event{Type: models.EventSnipeExecuted, UserID: "u1", Payload: map[string]string{"token": "t"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, models.EventSnipeExecuted, ev.Type)
	assert.Equal(t, "u1", ev.UserID)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))
}
