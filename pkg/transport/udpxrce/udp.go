// Package udpxrce implements the UDP transport: one datagram carries
// exactly one XRCE message, with no framing of its own.
package udpxrce

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/transport"
)

// Server listens on a single UDP socket and feeds every received
// datagram to a Dispatcher, replying to whichever address last sent a
// datagram for a given client.
type Server struct {
	conn   *net.UDPConn
	disp   transport.Dispatcher
	log    *logrus.Entry
	stopCh chan struct{}
	doneCh chan struct{}
}

// Listen opens addr and returns a Server that has not yet started
// receiving; call Serve to run its accept loop.
func Listen(addr string, disp transport.Dispatcher, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpxrce: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udpxrce: listen %s: %w", addr, err)
	}

	return &Server{
		conn:   conn,
		disp:   disp,
		log:    log.WithField("transport", "udp"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// endpoint is an agent.Endpoint that replies to whichever UDP address it
// was constructed for.
type endpoint struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (e *endpoint) Send(raw []byte) error {
	_, err := e.conn.WriteToUDP(raw, e.addr)
	return err
}

func (e *endpoint) String() string { return "udp:" + e.addr.String() }

// Serve runs the receive loop until Close is called. It is meant to be
// run in its own goroutine.
func (s *Server) Serve() error {
	defer close(s.doneCh)

	buf := make([]byte, transport.MaxFrameSize)
	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				s.log.WithError(err).Warn("udp read failed")
				continue
			}
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		ep := &endpoint{conn: s.conn, addr: addr}
		if err := s.disp.OnMessage(ep, raw); err != nil {
			s.log.WithError(err).WithField("peer", addr).Warn("message handling failed")
		}
	}
}

// Close stops the receive loop and releases the socket.
func (s *Server) Close() error {
	close(s.stopCh)
	err := s.conn.Close()
	<-s.doneCh
	return err
}

var _ agent.Endpoint = (*endpoint)(nil)
