// Package serialxrce implements the Serial transport: one XRCE message
// per frame, framed by whatever byte-stuffing convention the underlying
// modem driver already applies. The driver, not this package, owns the
// framing; serialxrce only reads and writes whole frames and keeps an
// observational corruption counter.
package serialxrce

import (
	"fmt"

	"github.com/dtn7/rf95modem-go/rf95"
	"github.com/howeyc/crc16"
	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/transport"
)

// Server reads framed messages from a single serial-attached modem and
// feeds them to a Dispatcher. Unlike UDP/TCP there is exactly one peer
// per device, so there is exactly one Endpoint for the Server's
// lifetime.
type Server struct {
	modem *rf95.Modem
	disp  transport.Dispatcher
	log   *logrus.Entry

	corrupted uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open attaches to the modem at device (e.g. /dev/ttyUSB0).
func Open(device string, disp transport.Dispatcher, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	modem, err := rf95.OpenSerial(device)
	if err != nil {
		return nil, fmt.Errorf("serialxrce: open %s: %w", device, err)
	}

	return &Server{
		modem:  modem,
		disp:   disp,
		log:    log.WithField("transport", "serial").WithField("device", device),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

type endpoint struct {
	modem *rf95.Modem
}

func (e *endpoint) Send(raw []byte) error {
	_, err := e.modem.Write(raw)
	return err
}

func (e *endpoint) String() string { return "serial" }

// String reports the modem's current frequency and mode when the modem
// answers a status query, degrading to a bare device label otherwise.
func (s *Server) String() string {
	status, err := s.modem.FetchStatus()
	if err != nil {
		return "rf95modem"
	}
	return fmt.Sprintf("rf95modem?frequency=%f&mode=%d", status.Frequency, status.Mode)
}

// Serve runs the receive loop until Close is called. Every frame is
// checked against its own trailing CRC16 (the value the client
// appended); a mismatch increments the corruption counter and drops the
// frame instead of handing a torn message to the dispatcher.
func (s *Server) Serve() error {
	defer close(s.doneCh)

	mtu, err := s.modem.Mtu()
	if err != nil {
		mtu = transport.MaxFrameSize
	}
	buf := make([]byte, mtu)
	ep := &endpoint{modem: s.modem}

	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		n, err := s.modem.Read(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				s.log.WithError(err).Warn("serial read failed")
				continue
			}
		}
		if n < 2 {
			continue
		}

		frame := buf[:n-2]
		want := uint16(buf[n-2]) | uint16(buf[n-1])<<8
		if crc16.ChecksumCCITT(frame) != want {
			s.corrupted++
			s.log.WithField("corrupted_total", s.corrupted).Warn("frame failed CRC16 check, dropped")
			continue
		}

		raw := make([]byte, len(frame))
		copy(raw, frame)
		if err := s.disp.OnMessage(ep, raw); err != nil {
			s.log.WithError(err).Warn("message handling failed")
		}
	}
}

// CorruptedFrames reports how many frames were dropped for failing
// their CRC16 check, for observability only; it never affects retry or
// repair logic, which is driven entirely by HEARTBEAT/ACKNACK at the
// stream layer.
func (s *Server) CorruptedFrames() uint64 { return s.corrupted }

// Close stops the receive loop and the modem connection.
func (s *Server) Close() error {
	close(s.stopCh)
	err := s.modem.Close()
	<-s.doneCh
	return err
}

var _ agent.Endpoint = (*endpoint)(nil)
