package websocket

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

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/events"
)

type wireMessage struct {
	Type  events.MessageType `json:"type"`
	Email string             `json:"email"`
	Data  json.RawMessage    `json:"data"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub(nil, nil)
	hub.Start()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, hub.ServeWS(w, r, r.URL.Query().Get("email")))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, email string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?email=" + email
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := read(t, conn)
	require.Equal(t, events.MessageTypeConnect, msg.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_RoutesByAccount(t *testing.T) {
	hub, srv := startHub(t)
	mine := dial(t, srv, "driver@example.com")
	theirs := dial(t, srv, "other@example.com")

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	hub.PublishSession(ctx, domain.SessionEvent{Email: "other@example.com", Target: "Mod Z", Progress: 10})
	hub.PublishSession(ctx, domain.SessionEvent{Email: "Driver@Example.com", Target: "Mod A", Progress: 40})
	hub.PublishSession(ctx, domain.SessionEvent{Email: "driver@example.com", Target: "Mod A", Phase: domain.PhaseInstalled, Terminal: true})

	msg := read(t, mine)
	assert.Equal(t, events.MessageTypeSessionProgress, msg.Type)
	var event domain.SessionEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "Mod A", event.Target)
	assert.Equal(t, 40, event.Progress)

	msg = read(t, mine)
	assert.Equal(t, events.MessageTypeSessionComplete, msg.Type)

	msg = read(t, theirs)
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "Mod Z", event.Target)
}

func TestHub_PublishRefresh(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "driver@example.com")

	hub.PublishRefresh(context.Background(), "driver@example.com", "install", []domain.ModView{
		{Name: "Mod A", InternalName: "mod_a", Installed: true},
	})

	msg := read(t, conn)
	assert.Equal(t, events.MessageTypeModsRefresh, msg.Type)
	var refresh events.ModsRefresh
	require.NoError(t, json.Unmarshal(msg.Data, &refresh))
	assert.Equal(t, "install", refresh.Reason)
	require.Len(t, refresh.Mods, 1)
	assert.True(t, refresh.Mods[0].Installed)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "driver@example.com")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StartStopIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	hub.Start()
	hub.Stop()
	hub.Stop()

	client := NewClient(hub, nopConn{}, "x@example.com", "", nil)
	assert.False(t, hub.Register(client))
}

func TestSameHostOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://127.0.0.1:5000", true},
		{"http://evil.example", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:5000/api/events", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, sameHostOrigin(r), tt.origin)
	}
}

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error         { return nil }
func (nopConn) ReadMessage() (int, []byte, error)      { return 0, nil, nil }
func (nopConn) Close() error                           { return nil }
func (nopConn) SetReadDeadline(time.Time) error        { return nil }
func (nopConn) SetWriteDeadline(time.Time) error       { return nil }
func (nopConn) SetReadLimit(int64)                     {}
func (nopConn) SetPongHandler(func(string) error)      {}
func (nopConn) RemoteAddr() string                     { return "test" }
