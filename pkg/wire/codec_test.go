package wire

import (
	"bytes"
	"testing"
)

// TestMessageHeaderRoundTrip covers P7 for every SessionID class named
// in §6: with and without a ClientKey field.
func TestMessageHeaderRoundTrip(t *testing.T) {
	cases := []MessageHeader{
		{SessionID: SessionNoneWithoutKey, StreamID: 0x00, SequenceNr: 0},
		{SessionID: SessionNoneWithKey, StreamID: 0x00, SequenceNr: 7, ClientKey: 0xAABBCCDD},
		// Established sessions carry no header-level ClientKey (§6), so
		// the field is set here only to confirm it is NOT round-tripped.
		{SessionID: SessionEstablishedMin, StreamID: 0x80, SequenceNr: 42, ClientKey: 0x11223344},
		{SessionID: SessionEstablishedMax, StreamID: 0x01, SequenceNr: 65535, ClientKey: 0xFFFFFFFF},
	}

	for _, want := range cases {
		buf := make([]byte, 0, 16)
		e := NewEncoder(buf, 0)
		if err := want.Encode(e); err != nil {
			t.Fatalf("encode: %v", err)
		}

		got, err := DecodeMessageHeader(NewDecoder(e.Bytes(), 0))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if got.SessionID != want.SessionID || got.StreamID != want.StreamID || got.SequenceNr != want.SequenceNr {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
		if want.SessionID.HasKey() && got.ClientKey != want.ClientKey {
			t.Fatalf("client key mismatch: got %v want %v", got.ClientKey, want.ClientKey)
		}
		if !want.SessionID.HasKey() && got.ClientKey != 0 {
			t.Fatalf("client key %v round-tripped for a session class without one", got.ClientKey)
		}
	}
}

// TestSubmessageRoundTrip covers P7 for every submessage kind named in
// §6.
func TestSubmessageRoundTrip(t *testing.T) {
	type trip struct {
		name    string
		payload []byte
		decode  func([]byte) (any, error)
	}

	encodeOf := func(e encodable) []byte {
		enc := NewEncoder(make([]byte, 0, 256), 0)
		if err := e.Encode(enc); err != nil {
			t.Fatalf("encode %T: %v", e, err)
		}
		return enc.Bytes()
	}

	trips := []trip{
		{
			"CREATE_CLIENT",
			encodeOf(CreateClientPayload{
				Cookie: XRCECookie, VersionMajor: 1, VersionMinor: 0,
				ClientKey: 0xAABBCCDD, SessionID: SessionEstablishedMin,
				Properties: map[string]string{"client.version": "1.0"},
			}),
			func(b []byte) (any, error) { return DecodeCreateClientPayload(b) },
		},
		{
			"CREATE",
			encodeOf(CreatePayload{ObjectID: 1, ParentID: 0, Kind: 1, Representation: []byte("xml")}),
			func(b []byte) (any, error) { return DecodeCreatePayload(b) },
		},
		{
			"DELETE",
			encodeOf(DeletePayload{ObjectID: 5}),
			func(b []byte) (any, error) { return DecodeDeletePayload(b) },
		},
		{
			"STATUS",
			encodeOf(StatusPayload{ObjectID: 5, Result: StatusOK}),
			func(b []byte) (any, error) { return DecodeStatusPayload(b) },
		},
		{
			"WRITE_DATA",
			encodeOf(WriteDataPayload{ObjectID: 9, RequestID: 3, Data: []byte{1, 2, 3}}),
			func(b []byte) (any, error) { return DecodeWriteDataPayload(b) },
		},
		{
			"READ_DATA",
			encodeOf(ReadDataPayload{ObjectID: 9, RequestID: 3, MaxSamples: 10}),
			func(b []byte) (any, error) { return DecodeReadDataPayload(b) },
		},
		{
			"DATA",
			encodeOf(DataPayload{ObjectID: 9, RequestID: 3, Data: []byte("sample")}),
			func(b []byte) (any, error) { return DecodeDataPayload(b) },
		},
		{
			"HEARTBEAT",
			encodeOf(HeartbeatPayload{FirstUnackedSeq: 2, LastUnackedSeq: 9}),
			func(b []byte) (any, error) { return DecodeHeartbeatPayload(b) },
		},
		{
			"ACKNACK",
			encodeOf(AcknackPayload{FirstUnackedSeq: 2, NackBitmap: [2]byte{0, 1}}),
			func(b []byte) (any, error) { return DecodeAcknackPayload(b) },
		},
		{
			"GET_INFO",
			encodeOf(GetInfoPayload{ObjectID: 4}),
			func(b []byte) (any, error) { return DecodeGetInfoPayload(b) },
		},
	}

	for _, tr := range trips {
		got, err := tr.decode(tr.payload)
		if err != nil {
			t.Errorf("%s: decode failed: %v", tr.name, err)
			continue
		}
		if again := encodeOf(got.(encodable)); !bytes.Equal(again, tr.payload) {
			t.Errorf("%s: re-encoded %v, want %v", tr.name, again, tr.payload)
		}
	}
}

// encodable is satisfied by every payload type's value receiver Encode
// method; used only to let the test table share one encodeOf helper.
type encodable interface {
	Encode(*Encoder) error
}

func TestTruncatedBufferNeverPanics(t *testing.T) {
	full, err := EncodeMessage(
		MessageHeader{SessionID: SessionEstablishedMin, StreamID: 0x80, SequenceNr: 1, ClientKey: 1},
		EncodedSubmessage{ID: SubDelete, Flags: FlagLittleEndian, Payload: []byte{1, 0}},
	)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for n := 0; n < len(full); n++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("decode panicked on truncated buffer of length %d: %v", n, r)
				}
			}()
			_, _ = DecodeMessage(full[:n])
		}()
	}
}

func TestEncodeOverflowFailsCleanly(t *testing.T) {
	buf := make([]byte, 0, 4)
	e := NewEncoder(buf, 0)
	// SessionNoneWithKey carries a ClientKey field (§6), so its header is
	// 8 bytes wide; a 4-byte buffer must overflow writing it.
	h := MessageHeader{SessionID: SessionNoneWithKey, StreamID: 0x80, SequenceNr: 1, ClientKey: 1}
	if err := h.Encode(e); err == nil {
		t.Fatal("expected overflow error, got nil")
	}
}

func TestHeartbeatStreamIDRoundTrip(t *testing.T) {
	buf, err := EncodeHeartbeatMessage(SessionEstablishedMin, 0xAABBCCDD, 0x80, HeartbeatPayload{FirstUnackedSeq: 2, LastUnackedSeq: 9})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Submessages) != 1 {
		t.Fatalf("expected 1 submessage, got %d", len(msg.Submessages))
	}

	stream, payload, err := DecodeHeartbeatMessage(msg.Submessages[0], msg.Header)
	if err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if stream != 0x80 {
		t.Fatalf("stream id: got 0x%02X want 0x80", stream)
	}
	if payload.FirstUnackedSeq != 2 || payload.LastUnackedSeq != 9 {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}
