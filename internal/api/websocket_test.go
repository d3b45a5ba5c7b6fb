package api

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/graymere/hublink/internal/hub"
)

// dialWS connects a test client to the server's WebSocket endpoint.
func dialWS(t *testing.T, ts string, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()

	msg := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_SubscribeAndReceiveEvent(t *testing.T) {
	ts, srv := testServerWS(t, "")

	conn := dialWS(t, ts.URL, "")
	subscribe(t, conn, hub.EventTypeStateChanged)

	// A direct broadcast stands in for the engine event pump.
	srv.hub.Broadcast(hub.EventTypeStateChanged, hub.DeviceStateChanged{
		Change: hub.DeviceStateChange{HubID: "hub1", Device: hub.Device{ID: "d1"}},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got WSMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != WSTypeEvent || got.EventType != hub.EventTypeStateChanged {
		t.Errorf("event = %+v", got)
	}
}

func TestWebSocket_WildcardReceivesAllEventTypes(t *testing.T) {
	ts, srv := testServerWS(t, "")

	conn := dialWS(t, ts.URL, "")
	subscribe(t, conn, WSChannelAll)

	srv.hub.Broadcast(hub.EventTypeHubConnected, hub.HubConnected{HubID: "hub1"})
	srv.hub.Broadcast(hub.EventTypePollCompleted, hub.PollCompleted{HubID: "hub1", Success: true})

	var types []string
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got WSMessage
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		types = append(types, got.EventType)
	}
	if types[0] != hub.EventTypeHubConnected || types[1] != hub.EventTypePollCompleted {
		t.Errorf("event types = %v", types)
	}
}

func TestWebSocket_UnsubscribedChannelIsSilent(t *testing.T) {
	ts, srv := testServerWS(t, "")

	conn := dialWS(t, ts.URL, "")
	subscribe(t, conn, hub.EventTypeHubOffline)

	srv.hub.Broadcast(hub.EventTypeHubConnected, hub.HubConnected{HubID: "hub1"})

	conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	var got WSMessage
	if err := conn.ReadJSON(&got); err == nil {
		t.Errorf("received event for unsubscribed channel: %+v", got)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	ts, _ := testServerWS(t, "")
	conn := dialWS(t, ts.URL, "")

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestWebSocket_InvalidJSONGetsError(t *testing.T) {
	ts, _ := testServerWS(t, "")
	conn := dialWS(t, ts.URL, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("response type = %q, want %q", resp.Type, WSTypeError)
	}
}

func TestWebSocket_AuthViaQueryKey(t *testing.T) {
	ts, _ := testServerWS(t, "secret")

	// No key: the upgrade request is rejected before reaching the handler.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without key succeeded")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("dial rejection = %v (resp %v), want 401", err, resp)
	}

	conn := dialWS(t, ts.URL, "?key=secret")
	subscribe(t, conn, WSChannelAll)
}
