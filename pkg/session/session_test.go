package session

import (
	"testing"

	"github.com/xrce-go/agent/pkg/dds"
	"github.com/xrce-go/agent/pkg/registry"
	"github.com/xrce-go/agent/pkg/wire"
)

// collectSender records every message a Session sends back, so tests
// can inspect replies without a real transport.
type collectSender struct {
	sent [][]byte
}

func (c *collectSender) send(raw []byte, reliable bool) error {
	c.sent = append(c.sent, raw)
	return nil
}

func newTestSession() (*Session, *collectSender) {
	c := &collectSender{}
	s := New(wire.ClientKey(0xAABBCCDD), wire.SessionID(0x80), dds.NullFacade{}, c.send, nil)
	return s, c
}

func encodeMessage(t *testing.T, header wire.MessageHeader, id wire.SubmessageID, flags wire.SubmessageFlags, payload []byte) []byte {
	raw, err := wire.EncodeMessage(header, wire.EncodedSubmessage{ID: id, Flags: flags, Payload: payload})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return raw
}

func controlHeader(seq uint16) wire.MessageHeader {
	return wire.MessageHeader{SessionID: 0x80, StreamID: uint8(0), SequenceNr: seq, ClientKey: 0xAABBCCDD}
}

func decodeStatus(t *testing.T, raw []byte) wire.StatusPayload {
	msg, err := wire.DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if len(msg.Submessages) != 1 {
		t.Fatalf("expected exactly one reply submessage, got %d", len(msg.Submessages))
	}
	status, err := wire.DecodeStatusPayload(msg.Submessages[0].Payload)
	if err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	return status
}

// TestCreateParticipantReplyOK exercises a CREATE for a Participant
// (no parent needed) through the full decode -> dispatch -> encode path.
func TestCreateParticipantReplyOK(t *testing.T) {
	s, sent := newTestSession()

	enc := wire.NewEncoder(make([]byte, 0, 32), 0)
	if err := (wire.CreatePayload{ObjectID: 0x0011, ParentID: 0, Kind: uint8(registry.KindParticipant), Representation: []byte("p")}).Encode(enc); err != nil {
		t.Fatalf("encode create payload: %v", err)
	}

	raw := encodeMessage(t, controlHeader(0), wire.SubCreate, wire.FlagLittleEndian, enc.Bytes())
	if err := s.HandleMessage(raw); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sent.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sent.sent))
	}
	status := decodeStatus(t, sent.sent[0])
	if !status.Result.IsOK() {
		t.Fatalf("status = %v, want OK", status.Result)
	}
}

// TestCreateUnknownParentReturnsUnknownReference covers a Topic created
// under a Participant that was never created.
func TestCreateUnknownParentReturnsUnknownReference(t *testing.T) {
	s, sent := newTestSession()

	enc := wire.NewEncoder(make([]byte, 0, 32), 0)
	if err := (wire.CreatePayload{ObjectID: 0x0012, ParentID: 0x9999, Kind: uint8(registry.KindTopic)}).Encode(enc); err != nil {
		t.Fatalf("encode create payload: %v", err)
	}

	raw := encodeMessage(t, controlHeader(0), wire.SubCreate, wire.FlagLittleEndian, enc.Bytes())
	if err := s.HandleMessage(raw); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	status := decodeStatus(t, sent.sent[0])
	if status.Result != wire.StatusErrUnknownReference {
		t.Fatalf("status = %v, want UNKNOWN_REFERENCE", status.Result)
	}
}

// TestWriteDataRepliesWithStatus covers the §9 fix: WRITE_DATA always
// gets a STATUS reply, where the original silently discarded the
// process_write_data result.
func TestWriteDataRepliesWithStatus(t *testing.T) {
	s, sent := newTestSession()

	createEnc := wire.NewEncoder(make([]byte, 0, 32), 0)
	(wire.CreatePayload{ObjectID: 0x0011, Kind: uint8(registry.KindParticipant)}).Encode(createEnc)
	raw := encodeMessage(t, controlHeader(0), wire.SubCreate, wire.FlagLittleEndian, createEnc.Bytes())
	s.HandleMessage(raw)
	sent.sent = nil

	writeEnc := wire.NewEncoder(make([]byte, 0, 32), 0)
	if err := (wire.WriteDataPayload{ObjectID: 0x0011, RequestID: 1, Data: []byte("x")}).Encode(writeEnc); err != nil {
		t.Fatalf("encode write payload: %v", err)
	}
	raw = encodeMessage(t, controlHeader(1), wire.SubWriteData, wire.FlagLittleEndian, writeEnc.Bytes())
	if err := s.HandleMessage(raw); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sent.sent) != 1 {
		t.Fatalf("expected a STATUS reply for WRITE_DATA against a non-writer object, got %d replies", len(sent.sent))
	}
	status := decodeStatus(t, sent.sent[0])
	if status.Result != wire.StatusErrUnknownReference {
		t.Fatalf("status = %v, want UNKNOWN_REFERENCE (participant is not a DataWriter)", status.Result)
	}
}

// TestDeleteClientCascadesThroughSession covers DELETE(OBJECTID_CLIENT)
// reaching the registry through the session layer.
func TestDeleteClientCascadesThroughSession(t *testing.T) {
	s, sent := newTestSession()

	createEnc := wire.NewEncoder(make([]byte, 0, 32), 0)
	(wire.CreatePayload{ObjectID: 0x0011, Kind: uint8(registry.KindParticipant)}).Encode(createEnc)
	s.HandleMessage(encodeMessage(t, controlHeader(0), wire.SubCreate, wire.FlagLittleEndian, createEnc.Bytes()))
	sent.sent = nil

	delEnc := wire.NewEncoder(make([]byte, 0, 8), 0)
	if err := (wire.DeletePayload{ObjectID: wire.ObjectIDClient}).Encode(delEnc); err != nil {
		t.Fatalf("encode delete payload: %v", err)
	}
	if err := s.HandleMessage(encodeMessage(t, controlHeader(1), wire.SubDelete, wire.FlagLittleEndian, delEnc.Bytes())); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	status := decodeStatus(t, sent.sent[0])
	if !status.Result.IsOK() {
		t.Fatalf("status = %v, want OK", status.Result)
	}
	if _, ok := s.objects.Lookup(registry.ObjectID(0x0011)); ok {
		t.Fatal("participant should have been destroyed by DELETE(OBJECTID_CLIENT)")
	}
}

// TestHeartbeatProducesAcknackReply covers HEARTBEAT handling at the
// session level end to end.
func TestHeartbeatProducesAcknackReply(t *testing.T) {
	s, sent := newTestSession()

	dataHeader := wire.MessageHeader{SessionID: 0x80, StreamID: 0x80, SequenceNr: 0, ClientKey: 0xAABBCCDD}
	if err := s.HandleMessage(encodeMessage(t, dataHeader, wire.SubWriteData, wire.FlagLittleEndian, mustEncode(t, wire.WriteDataPayload{ObjectID: 0x0011, Data: []byte("x")}))); err != nil {
		t.Fatalf("HandleMessage seq 0: %v", err)
	}
	sent.sent = nil

	raw, err := wire.EncodeHeartbeatMessage(0x80, 0xAABBCCDD, 0x80, wire.HeartbeatPayload{FirstUnackedSeq: 1, LastUnackedSeq: 1})
	if err != nil {
		t.Fatalf("encode heartbeat: %v", err)
	}
	if err := s.HandleMessage(raw); err != nil {
		t.Fatalf("HandleMessage heartbeat: %v", err)
	}

	if len(sent.sent) != 1 {
		t.Fatalf("expected exactly one ACKNACK reply, got %d", len(sent.sent))
	}
	msg, err := wire.DecodeMessage(sent.sent[0])
	if err != nil {
		t.Fatalf("decode acknack message: %v", err)
	}
	if len(msg.Submessages) != 1 || msg.Submessages[0].Header.ID != wire.SubAcknack {
		t.Fatalf("expected an ACKNACK submessage, got %v", msg.Submessages)
	}
}

func mustEncode(t *testing.T, p interface{ Encode(*wire.Encoder) error }) []byte {
	enc := wire.NewEncoder(make([]byte, 0, 64), 0)
	if err := p.Encode(enc); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return enc.Bytes()
}
