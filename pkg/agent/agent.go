// Package agent implements C5, the Dispatcher: handshake validation,
// session lifecycle and the single reply-pump worker that serializes
// outbound writes across every session an Agent owns.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xrce-go/agent/pkg/registry"
	"github.com/xrce-go/agent/pkg/session"
	"github.com/xrce-go/agent/pkg/wire"
)

// Endpoint is the transport-agnostic destination a session's replies are
// written to. Concrete transports (udpxrce, tcpxrce, serialxrce,
// quicxrce, wsxrce) each provide one per connected client.
type Endpoint interface {
	Send(raw []byte) error
	String() string
}

type outboundMessage struct {
	endpoint Endpoint
	raw      []byte
}

// Agent is the top-level Dispatcher: one per running xrce-agentd
// process, owning every client session regardless of which transport it
// arrived on.
type Agent struct {
	mu       sync.Mutex
	sessions map[wire.ClientKey]*clientSession
	// byEndpoint routes every post-handshake message by the endpoint it
	// arrived on, per §4.6's endpoint<->session binding. Established
	// session messages never carry a header-level client_key on the wire
	// (§6), so the endpoint is the only thing left to route on.
	byEndpoint map[string]*clientSession
	facade     registry.Facade
	outbound   chan outboundMessage
	group      *errgroup.Group
	cancel     context.CancelFunc
	log        *logrus.Entry
}

type clientSession struct {
	session  *session.Session
	endpoint Endpoint
}

// New creates an Agent bound to facade and starts its reply-pump worker.
// facade is shared by every session's ObjectRegistry; the DDS middleware
// itself tracks per-participant isolation, not this package.
func New(facade registry.Facade, log *logrus.Entry) *Agent {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	a := &Agent{
		sessions:   make(map[wire.ClientKey]*clientSession),
		byEndpoint: make(map[string]*clientSession),
		facade:     facade,
		outbound:   make(chan outboundMessage, 256),
		group:      group,
		cancel:     cancel,
		log:        log,
	}

	group.Go(func() error {
		return a.replyPump(ctx)
	})

	return a
}

// replyPump is the single long-lived worker that serializes every
// outbound write, so two sessions replying concurrently never interleave
// partial writes on a shared connection-oriented transport.
func (a *Agent) replyPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-a.outbound:
			if err := msg.endpoint.Send(msg.raw); err != nil {
				a.log.WithError(err).WithField("endpoint", msg.endpoint).Warn("reply send failed")
			}
		}
	}
}

// Stop signals every worker to exit and tears down every live session,
// aggregating any teardown errors with multierror rather than stopping
// at the first one.
func (a *Agent) Stop() error {
	a.cancel()

	a.mu.Lock()
	sessions := make([]*clientSession, 0, len(a.sessions))
	for _, cs := range a.sessions {
		sessions = append(sessions, cs)
	}
	a.sessions = make(map[wire.ClientKey]*clientSession)
	a.byEndpoint = make(map[string]*clientSession)
	a.mu.Unlock()

	var result *multierror.Error
	for _, cs := range sessions {
		if err := cs.session.Teardown(); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", cs.session.ClientKey, err))
		}
	}

	if err := a.group.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// OnMessage is the single entry point every transport calls with a
// decoded session-id header still attached to raw. A handshake
// (CREATE_CLIENT on a none-session) is routed to the handshake path;
// every established-session message carries no header-level client_key
// at all (§6), so it is routed by the endpoint it arrived on instead
// (§4.6's endpoint<->session binding).
func (a *Agent) OnMessage(endpoint Endpoint, raw []byte) error {
	header, err := peekHeader(raw)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	if header.SessionID.IsNone() {
		return a.handleHandshake(endpoint, header, raw)
	}

	a.mu.Lock()
	cs, ok := a.byEndpoint[endpoint.String()]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent: message for unbound endpoint %s", endpoint)
	}

	return cs.session.HandleMessage(raw)
}

func peekHeader(raw []byte) (wire.MessageHeader, error) {
	msg, err := wire.DecodeMessage(raw)
	if err != nil {
		return wire.MessageHeader{}, err
	}
	return msg.Header, nil
}

// handleHandshake implements §4.5/P5: a CREATE_CLIENT for a client key
// with no existing session creates one; for a client key that already
// has one, the requested SessionID decides reuse (same id: refresh the
// existing session in place) or replace (different id: tear down the
// old session, including its whole ObjectRegistry, before creating the
// new one).
func (a *Agent) handleHandshake(endpoint Endpoint, header wire.MessageHeader, raw []byte) error {
	msg, err := wire.DecodeMessage(raw)
	if err != nil {
		return fmt.Errorf("agent: handshake: %w", err)
	}
	if len(msg.Submessages) == 0 || msg.Submessages[0].Header.ID != wire.SubCreateClient {
		return fmt.Errorf("agent: handshake: expected CREATE_CLIENT, got %v", msg.Submessages)
	}

	create, err := wire.DecodeCreateClientPayload(msg.Submessages[0].Payload)
	if err != nil {
		return a.replyHandshakeError(endpoint, header, wire.StatusErrInvalidData)
	}
	if create.Cookie != wire.XRCECookie || create.VersionMajor != wire.XRCEVersionMajor {
		return a.replyHandshakeError(endpoint, header, wire.StatusErrInvalidData)
	}

	clientKey := wire.ClientKey(create.ClientKey)
	newSessionID := wire.SessionID(create.SessionID)

	a.mu.Lock()
	existing, hadSession := a.sessions[clientKey]
	if hadSession && existing.session.SessionID != newSessionID {
		delete(a.sessions, clientKey)
		delete(a.byEndpoint, existing.endpoint.String())
	} else if hadSession {
		// Reuse: the session stays put, but a reconnect may have arrived
		// on a different endpoint (e.g. a fresh TCP connection, or a UDP
		// client behind a remapped NAT binding), so the endpoint->session
		// binding has to move with it.
		if existing.endpoint.String() != endpoint.String() {
			delete(a.byEndpoint, existing.endpoint.String())
			existing.endpoint = endpoint
			a.byEndpoint[endpoint.String()] = existing
		}
		a.mu.Unlock()
		return a.replyCreateClientOK(endpoint, clientKey, newSessionID)
	}
	a.mu.Unlock()

	if hadSession {
		if err := existing.session.Teardown(); err != nil {
			a.log.WithError(err).Warn("teardown of replaced session failed")
		}
	}

	sess := session.New(clientKey, newSessionID, a.facade, a.senderFor(endpoint), a.log)

	a.mu.Lock()
	cs := &clientSession{session: sess, endpoint: endpoint}
	a.sessions[clientKey] = cs
	a.byEndpoint[endpoint.String()] = cs
	a.mu.Unlock()

	return a.replyCreateClientOK(endpoint, clientKey, newSessionID)
}

// senderFor implements §4.5/§5's two back-pressure regimes over the
// single shared outbound queue. Best-effort traffic (control replies,
// best-effort data) never blocks the session goroutine: a full queue is
// a drop, logged as a warning. Reliable-stream traffic (reader pushes
// and ACKNACK retransmits) blocks until the queue has room instead of
// silently losing a sample the client is relying on repair to recover.
func (a *Agent) senderFor(endpoint Endpoint) session.Sender {
	return func(raw []byte, reliable bool) error {
		msg := outboundMessage{endpoint: endpoint, raw: raw}
		if reliable {
			a.outbound <- msg
			return nil
		}
		select {
		case a.outbound <- msg:
			return nil
		default:
			a.log.WithField("endpoint", endpoint).Warn("outbound queue full, dropping best-effort reply")
			return fmt.Errorf("agent: outbound queue full for %s", endpoint)
		}
	}
}

func (a *Agent) replyCreateClientOK(endpoint Endpoint, clientKey wire.ClientKey, sessionID wire.SessionID) error {
	status := wire.StatusPayload{ObjectID: wire.ObjectIDClient, Result: wire.StatusOK}
	enc := wire.NewEncoder(make([]byte, 0, 16), 0)
	if err := status.Encode(enc); err != nil {
		return err
	}
	raw, err := wire.EncodeMessage(wire.MessageHeader{SessionID: sessionID, StreamID: 0, SequenceNr: 0, ClientKey: clientKey},
		wire.EncodedSubmessage{ID: wire.SubStatus, Flags: wire.FlagLittleEndian, Payload: enc.Bytes()})
	if err != nil {
		return err
	}
	return a.senderFor(endpoint)(raw, false)
}

func (a *Agent) replyHandshakeError(endpoint Endpoint, header wire.MessageHeader, status wire.StatusCode) error {
	payload := wire.StatusPayload{ObjectID: wire.ObjectIDClient, Result: status}
	enc := wire.NewEncoder(make([]byte, 0, 16), 0)
	if err := payload.Encode(enc); err != nil {
		return err
	}
	raw, err := wire.EncodeMessage(wire.MessageHeader{SessionID: wire.SessionNoneWithoutKey, StreamID: 0, SequenceNr: 0},
		wire.EncodedSubmessage{ID: wire.SubStatus, Flags: wire.FlagLittleEndian, Payload: enc.Bytes()})
	if err != nil {
		return err
	}
	return a.senderFor(endpoint)(raw, false)
}
