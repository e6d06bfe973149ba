// Package session implements C4, the per-client Session: submessage
// dispatch over a client's StreamSet and ObjectRegistry once a
// CREATE_CLIENT handshake has been accepted by the dispatcher.
package session

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/registry"
	"github.com/xrce-go/agent/pkg/stream"
	"github.com/xrce-go/agent/pkg/wire"
)

// Sender delivers an encoded message back to the client that owns a
// Session. The dispatcher supplies one bound to the client's transport
// endpoint when it constructs the Session (§4.4). reliable distinguishes
// the two back-pressure regimes of §4.5/§5: false is a non-blocking,
// drop-with-warning push (control replies, best-effort data); true
// blocks the caller until the outbound queue has room, which is what a
// reliable-stream retransmit or reader push requires instead of
// silently losing the sample.
type Sender func(raw []byte, reliable bool) error

// Session bundles the StreamSet and ObjectRegistry for one client
// together with the means to reply to it.
type Session struct {
	ClientKey wire.ClientKey
	SessionID wire.SessionID

	streams *stream.Set
	objects *registry.Registry
	send    Sender
	log     *logrus.Entry
}

// New creates a Session for an already-accepted client.
func New(clientKey wire.ClientKey, sessionID wire.SessionID, facade registry.Facade, send Sender, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("client_key", clientKey)

	return &Session{
		ClientKey: clientKey,
		SessionID: sessionID,
		streams:   stream.NewSet(),
		objects:   registry.New(facade, log),
		send:      send,
		log:       log,
	}
}

// Teardown destroys every object the session owns, mirroring what a
// client-initiated DELETE(OBJECTID_CLIENT) would do; the dispatcher
// calls this when a session is replaced or the agent shuts down.
func (s *Session) Teardown() error {
	status := s.objects.Delete(registry.ClientObjectID)
	if !status.IsOK() {
		return fmt.Errorf("session: teardown: registry delete returned %s", status)
	}
	return nil
}

// HandleMessage decodes an inbound message and routes its submessages.
// Control-stream submessages (CREATE/DELETE/GET_INFO/WRITE_DATA/READ_DATA)
// are processed as soon as the StreamSet admits them in order; data
// carried on a reliable stream that arrives out of order is buffered by
// the StreamSet and drained transparently.
func (s *Session) HandleMessage(raw []byte) error {
	msg, err := wire.DecodeMessage(raw)
	if err != nil {
		return fmt.Errorf("session: decode message: %w", err)
	}

	for _, sub := range msg.Submessages {
		err := s.routeSubmessage(msg.Header, sub)
		if errors.Is(err, wire.ErrTruncated) {
			// A malformed payload is answered with ERR_INVALID_DATA on
			// the control stream.
			err = s.replyStatus(msg.Header, 0, wire.StatusErrInvalidData)
		}
		if err != nil {
			s.log.WithError(err).WithField("submessage", sub.Header.ID).Warn("submessage handling failed")
		}
	}
	return nil
}

// routeSubmessage applies the StreamSet's ordering/repair gate for
// HEARTBEAT and ACKNACK (control submessages that are not themselves
// sequenced data) and otherwise runs the inbound message through
// AcceptInbound before dispatching each delivery in order (§4.2, §4.4).
func (s *Session) routeSubmessage(header wire.MessageHeader, sub wire.RawSubmessage) error {
	switch sub.Header.ID {
	case wire.SubHeartbeat:
		return s.handleHeartbeat(header, sub)
	case wire.SubAcknack:
		return s.handleAcknack(header, sub)
	}

	deliveries := s.streams.AcceptInbound(stream.ID(header.StreamID), stream.SequenceNumber(header.SequenceNr), packEnvelope(sub.Header.ID, sub.Header.Flags, sub.Payload))
	for _, d := range deliveries {
		id, flags, payload, err := unpackEnvelope(d.Payload)
		if err != nil {
			return err
		}
		if err := s.dispatchPayload(header, id, flags, payload); err != nil {
			return err
		}
	}
	return nil
}

// packEnvelope and unpackEnvelope tag a submessage's payload with its
// own ID and flags before handing it to the StreamSet's reorder buffer,
// so a submessage drained later than it arrived is still dispatched as
// itself (with its own CREATE REUSE/REPLACE flags) rather than as
// whatever submessage happened to trigger the drain.
func packEnvelope(id wire.SubmessageID, flags wire.SubmessageFlags, payload []byte) []byte {
	return append([]byte{byte(id), byte(flags)}, payload...)
}

func unpackEnvelope(buf []byte) (wire.SubmessageID, wire.SubmessageFlags, []byte, error) {
	if len(buf) < 2 {
		return 0, 0, nil, fmt.Errorf("session: truncated buffered submessage envelope")
	}
	return wire.SubmessageID(buf[0]), wire.SubmessageFlags(buf[1]), buf[2:], nil
}

func (s *Session) dispatchPayload(header wire.MessageHeader, id wire.SubmessageID, flags wire.SubmessageFlags, payload []byte) error {
	switch id {
	case wire.SubCreate:
		return s.handleCreate(header, flags, payload)
	case wire.SubDelete:
		return s.handleDelete(header, payload)
	case wire.SubGetInfo:
		return s.handleGetInfo(header, payload)
	case wire.SubWriteData:
		return s.handleWriteData(header, payload)
	case wire.SubReadData:
		return s.handleReadData(header, payload)
	default:
		return fmt.Errorf("session: unexpected submessage %s on stream %#x", id, header.StreamID)
	}
}

func (s *Session) handleCreate(header wire.MessageHeader, flags wire.SubmessageFlags, payload []byte) error {
	create, err := wire.DecodeCreatePayload(payload)
	if err != nil {
		return err
	}

	mode := registry.CreationMode{Reuse: flags.Reuse(), Replace: flags.Replace()}
	status := s.objects.Create(registry.ObjectID(create.ObjectID), registry.ObjectID(create.ParentID),
		registry.Kind(create.Kind), create.Representation, mode, s.sampleCallback(registry.ObjectID(create.ObjectID)))

	return s.replyStatus(header, create.ObjectID, status)
}

func (s *Session) handleDelete(header wire.MessageHeader, payload []byte) error {
	del, err := wire.DecodeDeletePayload(payload)
	if err != nil {
		return err
	}
	status := s.objects.Delete(registry.ObjectID(del.ObjectID))
	return s.replyStatus(header, del.ObjectID, status)
}

func (s *Session) handleGetInfo(header wire.MessageHeader, payload []byte) error {
	req, err := wire.DecodeGetInfoPayload(payload)
	if err != nil {
		return err
	}

	obj, ok := s.objects.Lookup(registry.ObjectID(req.ObjectID))
	if !ok {
		return s.replyStatus(header, req.ObjectID, wire.StatusErrUnknownReference)
	}

	info := wire.ObjectInfoPayload{
		ObjectID:          req.ObjectID,
		Kind:              uint8(obj.Kind),
		ParentID:          uint16(obj.Parent),
		ConfigChangeCount: obj.ConfigChangeCount,
	}
	return s.replyObjectInfo(header, info)
}

func (s *Session) handleWriteData(header wire.MessageHeader, payload []byte) error {
	wd, err := wire.DecodeWriteDataPayload(payload)
	if err != nil {
		return err
	}
	status := s.objects.Write(registry.ObjectID(wd.ObjectID), wd.Data)
	// The original implementation discards the result of processing
	// WRITE_DATA; a STATUS reply is sent here so the client can detect a
	// failed write instead of silently losing data (§9).
	return s.replyStatus(header, wd.ObjectID, status)
}

func (s *Session) handleReadData(header wire.MessageHeader, payload []byte) error {
	rd, err := wire.DecodeReadDataPayload(payload)
	if err != nil {
		return err
	}
	status := s.objects.Read(registry.ObjectID(rd.ObjectID), rd.MaxSamples)
	if !status.IsOK() {
		return s.replyStatus(header, rd.ObjectID, status)
	}
	return nil
}

// sampleCallback returns the function a DataReader's facade binding
// invokes for every sample it receives, routing it onward as a DATA
// submessage on the reader's associated data stream.
func (s *Session) sampleCallback(readerID registry.ObjectID) registry.SampleCallback {
	return func(objectID registry.ObjectID, requestID uint32, data []byte) {
		payload := wire.DataPayload{ObjectID: uint16(objectID), RequestID: requestID, Data: data}
		if err := s.sendDataSubmessage(readerID, payload); err != nil {
			s.log.WithError(err).WithField("object", objectID).Warn("failed to deliver sample")
		}
	}
}

func (s *Session) sendDataSubmessage(streamTarget registry.ObjectID, payload wire.DataPayload) error {
	enc := wire.NewEncoder(make([]byte, 0, 64), 0)
	if err := payload.Encode(enc); err != nil {
		return err
	}

	dataStream := stream.ID(uint8(streamTarget) % 0x80)
	if dataStream == stream.Control {
		dataStream = 0x80
	}
	reliable := dataStream.Reliable()

	seq := s.streams.EnqueueOutbound(dataStream, enc.Bytes())
	raw, err := wire.EncodeMessage(wire.MessageHeader{
		SessionID:  s.SessionID,
		StreamID:   uint8(dataStream),
		SequenceNr: uint16(seq),
		ClientKey:  s.ClientKey,
	}, wire.EncodedSubmessage{ID: wire.SubData, Flags: wire.FlagLittleEndian, Payload: enc.Bytes()})
	if err != nil {
		return err
	}
	if err := s.send(raw, reliable); err != nil {
		return err
	}

	// A DataReader push on a reliable stream needs a HEARTBEAT behind
	// it so the client's ACKNACK repair cycle has a (first, last) range
	// to run against; best-effort streams are never repaired (§4.4).
	if reliable {
		return s.emitHeartbeat(dataStream)
	}
	return nil
}

func (s *Session) emitHeartbeat(target stream.ID) error {
	first, last := s.streams.OutputRange(target)
	raw, err := wire.EncodeHeartbeatMessage(s.SessionID, s.ClientKey, uint8(target), wire.HeartbeatPayload{
		FirstUnackedSeq: uint16(first),
		LastUnackedSeq:  uint16(last),
	})
	if err != nil {
		return err
	}
	return s.send(raw, true)
}

func (s *Session) replyStatus(header wire.MessageHeader, objectID uint16, status wire.StatusCode) error {
	enc := wire.NewEncoder(make([]byte, 0, 16), 0)
	if err := (wire.StatusPayload{ObjectID: objectID, Result: status}).Encode(enc); err != nil {
		return err
	}
	return s.replyOnControlStream(header, wire.SubStatus, enc.Bytes())
}

func (s *Session) replyObjectInfo(header wire.MessageHeader, info wire.ObjectInfoPayload) error {
	enc := wire.NewEncoder(make([]byte, 0, 16), 0)
	if err := (wire.StatusPayload{ObjectID: info.ObjectID, Result: wire.StatusOK}).Encode(enc); err != nil {
		return err
	}
	if err := info.Encode(enc); err != nil {
		return err
	}
	return s.replyOnControlStream(header, wire.SubStatus, enc.Bytes())
}

// replyOnControlStream sends a CREATE/DELETE/GET_INFO reply on the
// control stream. Per §3/§4.4, stream 0x00 is the "none" class: it is
// never sequence-tracked, so every reply on it carries sequence_nr 0
// rather than the StreamSet's incrementing next_seq.
func (s *Session) replyOnControlStream(header wire.MessageHeader, id wire.SubmessageID, payload []byte) error {
	raw, err := wire.EncodeMessage(wire.MessageHeader{
		SessionID:  s.SessionID,
		StreamID:   uint8(stream.Control),
		SequenceNr: 0,
		ClientKey:  s.ClientKey,
	}, wire.EncodedSubmessage{ID: id, Flags: wire.FlagLittleEndian, Payload: payload})
	if err != nil {
		return err
	}
	return s.send(raw, false)
}

func (s *Session) handleHeartbeat(header wire.MessageHeader, sub wire.RawSubmessage) error {
	targetStream, payload, err := wire.DecodeHeartbeatMessage(sub, header)
	if err != nil {
		return err
	}

	reply := s.streams.OnHeartbeat(stream.ID(targetStream), stream.SequenceNumber(payload.FirstUnackedSeq), stream.SequenceNumber(payload.LastUnackedSeq))

	raw, err := wire.EncodeAcknackMessage(header.SessionID, header.ClientKey, targetStream, wire.AcknackPayload{
		FirstUnackedSeq: uint16(reply.FirstUnacked),
		NackBitmap:      reply.NackBitmap,
	})
	if err != nil {
		return err
	}
	return s.send(raw, false)
}

// handleAcknack replays every gap the client's ACKNACK reports.
// Retransmits are only ever generated for reliable streams (§4.2), so
// each resend blocks the caller on a full outbound queue rather than
// being dropped the way a first-time best-effort push would be (§4.5).
func (s *Session) handleAcknack(header wire.MessageHeader, sub wire.RawSubmessage) error {
	targetStream, payload, err := wire.DecodeAcknackMessage(sub, header)
	if err != nil {
		return err
	}

	retx := s.streams.OnAcknack(stream.ID(targetStream), stream.SequenceNumber(payload.FirstUnackedSeq), payload.NackBitmap)
	for _, r := range retx {
		if err := s.send(r.Msg, true); err != nil {
			return err
		}
	}
	return nil
}
