package wsxrce

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/agent"
)

type recordingDispatcher struct {
	got chan []byte
}

func (d *recordingDispatcher) OnMessage(_ agent.Endpoint, raw []byte) error {
	d.got <- raw
	return nil
}

// TestUpgradeDeliversMessageToDispatcher drives a real WebSocket
// handshake and binary message through Server.upgrade, bypassing
// Listen's TCP accept loop so the test runs against httptest's own
// listener instead of opening a second real socket.
func TestUpgradeDeliversMessageToDispatcher(t *testing.T) {
	disp := &recordingDispatcher{got: make(chan []byte, 1)}
	s := &Server{
		disp:     disp,
		upgrader: websocket.Upgrader{},
		log:      logrus.NewEntry(logrus.StandardLogger()),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	ts := httptest.NewServer(http.HandlerFunc(s.upgrade))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := []byte{0x01, 0x02, 0x03}
	if err := conn.WriteMessage(websocket.BinaryMessage, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-disp.got:
		if string(got) != string(want) {
			t.Fatalf("dispatched payload = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}
