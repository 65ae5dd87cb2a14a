package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/pkg/logger"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// newTestHub runs a hub behind an httptest server that attaches every
// upgraded connection using the user and channel query parameters.
func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	h := New(logger.NewLogger(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Attach(userID, Channel(r.URL.Query().Get("channel")), conn)
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dialHub(t *testing.T, srv *httptest.Server, userID uuid.UUID, channel Channel) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("%s?user=%s&channel=%s",
		strings.Replace(srv.URL, "http", "ws", 1), userID, channel)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration travels through the hub's own channel; give the routing
	// loop a beat to index the connection before events are dispatched.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.DeliveryEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev model.DeliveryEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func assertNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func chatEvent(sender uuid.UUID, key string, recipients ...uuid.UUID) *model.DeliveryEvent {
	return &model.DeliveryEvent{
		Kind:            model.EventMessageDirect,
		ConversationKey: key,
		SenderID:        sender,
		Recipients:      recipients,
		Payload:         json.RawMessage(`{}`),
		SentAt:          time.Now(),
	}
}

func TestRouteDeliversToRecipientsOnly(t *testing.T) {
	h, srv := newTestHub(t)
	alice := uuid.New()
	bob := uuid.New()

	aliceConn := dialHub(t, srv, alice, ChannelChat)
	bobConn := dialHub(t, srv, bob, ChannelChat)

	sender := uuid.New()
	h.Dispatch(chatEvent(sender, "user:"+sender.String(), alice))

	ev := readEvent(t, aliceConn)
	assert.Equal(t, model.EventMessageDirect, ev.Kind)
	assert.Equal(t, "user:"+sender.String(), ev.ConversationKey)
	assertNoEvent(t, bobConn)
}

func TestRouteStripsRecipients(t *testing.T) {
	h, srv := newTestHub(t)
	alice := uuid.New()
	conn := dialHub(t, srv, alice, ChannelChat)

	h.Dispatch(chatEvent(uuid.New(), "group:g1", alice, uuid.New(), uuid.New()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.NotContains(t, wire, "recipients")
}

func TestRouteRespectsChannelBinding(t *testing.T) {
	h, srv := newTestHub(t)
	alice := uuid.New()

	notifConn := dialHub(t, srv, alice, ChannelNotifications)
	chatConn := dialHub(t, srv, alice, ChannelChat)

	h.Dispatch(chatEvent(uuid.New(), "user:peer", alice))
	h.Dispatch(&model.DeliveryEvent{
		Kind:            model.EventNotificationCreated,
		ConversationKey: uuid.NewString(),
		SenderID:        uuid.New(),
		Recipients:      []uuid.UUID{alice},
		Payload:         json.RawMessage(`{}`),
		SentAt:          time.Now(),
	})

	// Each connection sees only its own channel's event.
	assert.Equal(t, model.EventMessageDirect, readEvent(t, chatConn).Kind)
	assert.Equal(t, model.EventNotificationCreated, readEvent(t, notifConn).Kind)
	assertNoEvent(t, chatConn)
	assertNoEvent(t, notifConn)
}

func TestRoutePreservesOrderPerConnection(t *testing.T) {
	h, srv := newTestHub(t)
	alice := uuid.New()
	conn := dialHub(t, srv, alice, ChannelChat)

	sender := uuid.New()
	key := "user:" + sender.String()
	for i := 0; i < 20; i++ {
		ev := chatEvent(sender, key, alice)
		ev.Payload = json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		h.Dispatch(ev)
	}

	for i := 0; i < 20; i++ {
		ev := readEvent(t, conn)
		var payload struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, i, payload.Seq)
	}
}

func TestRouteMultipleConnectionsPerUser(t *testing.T) {
	h, srv := newTestHub(t)
	alice := uuid.New()

	// Two tabs, same user, same channel: both get the event.
	conn1 := dialHub(t, srv, alice, ChannelChat)
	conn2 := dialHub(t, srv, alice, ChannelChat)

	h.Dispatch(chatEvent(uuid.New(), "user:peer", alice))

	assert.Equal(t, model.EventMessageDirect, readEvent(t, conn1).Kind)
	assert.Equal(t, model.EventMessageDirect, readEvent(t, conn2).Kind)
}

func TestRouteIgnoresUnknownKind(t *testing.T) {
	h, srv := newTestHub(t)
	alice := uuid.New()
	conn := dialHub(t, srv, alice, ChannelChat)

	h.Dispatch(&model.DeliveryEvent{
		Kind:       "message.typing",
		Recipients: []uuid.UUID{alice},
	})

	assertNoEvent(t, conn)
}

func TestChannelForKind(t *testing.T) {
	ch, ok := channelForKind(model.EventNotificationCreated)
	assert.True(t, ok)
	assert.Equal(t, ChannelNotifications, ch)

	ch, ok = channelForKind(model.EventMessageDirect)
	assert.True(t, ok)
	assert.Equal(t, ChannelChat, ch)

	ch, ok = channelForKind(model.EventMessageGroup)
	assert.True(t, ok)
	assert.Equal(t, ChannelChat, ch)

	_, ok = channelForKind("message.typing")
	assert.False(t, ok)
}
