// Package tcpxrce implements the TCP transport: each connection is
// framed with a little-endian uint16 length prefix ahead of one XRCE
// message, and the listener bounds its live connection count with a
// weighted semaphore rather than an unbounded goroutine-per-conn fan-out.
package tcpxrce

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/transport"
)

// MaxConnections bounds how many TCP clients this Server serves
// concurrently; a connection beyond this limit is refused at accept
// time rather than queued indefinitely.
const MaxConnections = 64

// Server listens on a single TCP socket and runs one reader goroutine
// per accepted, semaphore-admitted connection.
type Server struct {
	ln   net.Listener
	disp transport.Dispatcher
	sem  *semaphore.Weighted
	log  *logrus.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// Listen opens addr for accepting TCP connections, admitting at most
// maxConnections concurrently. A maxConnections of 0 falls back to
// MaxConnections.
func Listen(addr string, maxConnections int64, disp transport.Dispatcher, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if maxConnections <= 0 {
		maxConnections = MaxConnections
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpxrce: listen %s: %w", addr, err)
	}

	return &Server{
		ln:     ln,
		disp:   disp,
		sem:    semaphore.NewWeighted(maxConnections),
		log:    log.WithField("transport", "tcp"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Serve runs the accept loop until Close is called.
func (s *Server) Serve() error {
	defer close(s.doneCh)

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}

		if !s.sem.TryAcquire(1) {
			s.log.WithField("peer", conn.RemoteAddr()).Warn("connection refused: pool exhausted")
			_ = conn.Close()
			continue
		}

		go func() {
			defer s.sem.Release(1)
			s.handleConn(conn)
		}()
	}
}

// Close stops the accept loop and the underlying listener.
func (s *Server) Close() error {
	close(s.stopCh)
	err := s.ln.Close()
	<-s.doneCh
	return err
}

type endpoint struct {
	mu   sync.Mutex
	conn net.Conn
}

func (e *endpoint) Send(raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(raw) > 0xFFFF {
		return fmt.Errorf("tcpxrce: message too large for uint16 length prefix: %d bytes", len(raw))
	}
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(raw)))
	if _, err := e.conn.Write(prefix[:]); err != nil {
		return err
	}
	_, err := e.conn.Write(raw)
	return err
}

func (e *endpoint) String() string { return "tcp:" + e.conn.RemoteAddr().String() }

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ep := &endpoint{conn: conn}
	r := bufio.NewReader(conn)

	for {
		raw, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).WithField("peer", conn.RemoteAddr()).Warn("frame read failed")
			}
			return
		}

		if err := s.disp.OnMessage(ep, raw); err != nil {
			s.log.WithError(err).WithField("peer", conn.RemoteAddr()).Warn("message handling failed")
		}
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(prefix[:])
	if int(n) > transport.MaxFrameSize {
		return nil, fmt.Errorf("tcpxrce: frame of %d bytes exceeds MaxFrameSize", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

var _ agent.Endpoint = (*endpoint)(nil)
