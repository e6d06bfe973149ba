// Package quicxrce implements the QUIC transport: each accepted
// connection opens exactly one bidirectional stream, framed with the
// same little-endian uint16 length prefix tcpxrce uses, so the two
// transports share a wire convention and differ only in how the
// underlying connection is established.
package quicxrce

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/transport"
)

// Server listens on a single QUIC endpoint and runs one handling
// goroutine per accepted connection.
type Server struct {
	listener *quic.Listener
	disp     transport.Dispatcher
	log      *logrus.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// Listen opens addr for accepting QUIC connections, using a self-signed
// certificate since an XRCE Agent has no external PKI requirement.
func Listen(addr string, disp transport.Dispatcher, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	tlsConf, err := generateListenerTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("quicxrce: tls config: %w", err)
	}

	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quicxrce: listen %s: %w", addr, err)
	}

	return &Server{
		listener: ln,
		disp:     disp,
		log:      log.WithField("transport", "quic"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Serve runs the accept loop until Close is called.
func (s *Server) Serve() error {
	defer close(s.doneCh)

	for {
		conn, err := s.listener.Accept(context.Background())
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// Close stops the accept loop and the underlying listener.
func (s *Server) Close() error {
	close(s.stopCh)
	err := s.listener.Close()
	<-s.doneCh
	return err
}

type endpoint struct {
	stream quic.Stream
}

func (e *endpoint) Send(raw []byte) error {
	if len(raw) > 0xFFFF {
		return fmt.Errorf("quicxrce: message too large for uint16 length prefix: %d bytes", len(raw))
	}
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(raw)))
	if _, err := e.stream.Write(prefix[:]); err != nil {
		return err
	}
	_, err := e.stream.Write(raw)
	return err
}

func (e *endpoint) String() string { return "quic" }

func (s *Server) handleConnection(conn quic.Connection) {
	stream, err := conn.AcceptStream(context.Background())
	if err != nil {
		s.log.WithError(err).WithField("peer", conn.RemoteAddr()).Warn("stream accept failed")
		return
	}
	defer stream.Close()

	ep := &endpoint{stream: stream}
	r := bufio.NewReader(stream)

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
		return nil, fmt.Errorf("quicxrce: frame of %d bytes exceeds MaxFrameSize", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 1 * time.Second,
		MaxIdleTimeout:  5 * time.Second,
	}
}

func generateListenerTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{"xrce-dds"},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

var _ agent.Endpoint = (*endpoint)(nil)
