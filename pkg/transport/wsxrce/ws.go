// Package wsxrce implements a WebSocket transport: every WebSocket
// binary message carries exactly one XRCE message, so unlike tcpxrce
// and quicxrce it needs no length-prefix framing of its own -- the
// WebSocket protocol already delimits messages.
package wsxrce

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/transport"
)

// Server upgrades every incoming HTTP connection on its listener to a
// WebSocket and runs one reader goroutine per accepted connection, in
// the same no-bounded-fan-out shape as udpxrce's per-message dispatch.
type Server struct {
	ln       net.Listener
	httpSrv  *http.Server
	disp     transport.Dispatcher
	upgrader websocket.Upgrader
	log      *logrus.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// Listen opens addr for accepting WebSocket connections on path "/".
func Listen(addr string, disp transport.Dispatcher, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wsxrce: listen %s: %w", addr, err)
	}

	s := &Server{
		ln:       ln,
		disp:     disp,
		upgrader: websocket.Upgrader{},
		log:      log.WithField("transport", "ws"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.upgrade)
	s.httpSrv = &http.Server{Handler: mux}

	return s, nil
}

// Serve runs the HTTP server accepting WebSocket upgrades until Close
// is called.
func (s *Server) Serve() error {
	defer close(s.doneCh)

	err := s.httpSrv.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops accepting new connections and tears down the listener.
func (s *Server) Close() error {
	close(s.stopCh)
	err := s.httpSrv.Close()
	<-s.doneCh
	return err
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	ep := &endpoint{conn: conn}
	go s.handleConn(ep)
}

type endpoint struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *endpoint) Send(raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteMessage(websocket.BinaryMessage, raw)
}

func (e *endpoint) String() string { return "ws:" + e.conn.RemoteAddr().String() }

func (s *Server) handleConn(ep *endpoint) {
	defer ep.conn.Close()

	for {
		msgType, raw, err := ep.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).WithField("peer", ep).Warn("websocket read failed")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(raw) > transport.MaxFrameSize {
			s.log.WithField("peer", ep).Warn("oversized websocket message dropped")
			continue
		}
		if err := s.disp.OnMessage(ep, raw); err != nil {
			s.log.WithError(err).WithField("peer", ep).Warn("message handling failed")
		}
	}
}

var _ agent.Endpoint = (*endpoint)(nil)
