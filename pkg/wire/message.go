package wire

import "fmt"

// MaxMessageSize is the fixed-capacity buffer size used for outgoing
// messages; encoding that would overflow this fails with ErrOverflow
// rather than growing the buffer, matching the embedded-friendly fixed
// buffer the original Agent used.
const MaxMessageSize = 1024

// Message is a decoded header plus its raw, not-yet-interpreted
// submessages.
type Message struct {
	Header      MessageHeader
	Submessages []RawSubmessage
}

// DecodeMessage decodes a header and every well-formed submessage that
// follows it. A malformed header is a hard failure (the whole message is
// dropped); a malformed trailing submessage is not — DecodeSubmessages
// already truncates cleanly in that case.
func DecodeMessage(buf []byte) (Message, error) {
	var m Message

	d := NewDecoder(buf, 0)
	hdr, err := DecodeMessageHeader(d)
	if err != nil {
		return m, fmt.Errorf("wire: decode message: %w", err)
	}
	m.Header = hdr
	m.Submessages = DecodeSubmessages(buf[d.Offset():])

	return m, nil
}

// EncodeMessage encodes a header followed by submessages, each given as
// an (id, flags, payload) triple, into a MaxMessageSize buffer.
func EncodeMessage(header MessageHeader, subs ...EncodedSubmessage) ([]byte, error) {
	buf := make([]byte, 0, MaxMessageSize)
	e := NewEncoder(buf, 0)

	if err := header.Encode(e); err != nil {
		return nil, fmt.Errorf("wire: encode message: %w", err)
	}

	for _, s := range subs {
		if err := EncodeSubmessage(e, s.ID, s.Flags, s.Payload); err != nil {
			return nil, fmt.Errorf("wire: encode message: %w", err)
		}
	}

	return e.Bytes(), nil
}

// EncodedSubmessage is a submessage ready to be appended to a message by
// EncodeMessage.
type EncodedSubmessage struct {
	ID      SubmessageID
	Flags   SubmessageFlags
	Payload []byte
}

// EncodeHeartbeatMessage builds a HEARTBEAT message. Per the design
// note in §9, HEARTBEAT packs its target stream id into the message
// header's sequence_nr field at encode time only; everywhere else in
// this module the stream id travels as an explicit typed parameter.
func EncodeHeartbeatMessage(sessionID SessionID, clientKey ClientKey, targetStream uint8, payload HeartbeatPayload) ([]byte, error) {
	e := NewEncoder(make([]byte, 0, 64), 0)
	if err := payload.Encode(e); err != nil {
		return nil, fmt.Errorf("wire: encode HEARTBEAT payload: %w", err)
	}
	header := MessageHeader{
		SessionID:  sessionID,
		StreamID:   0x00,
		SequenceNr: uint16(targetStream),
		ClientKey:  clientKey,
	}
	return EncodeMessage(header, EncodedSubmessage{ID: SubHeartbeat, Flags: FlagLittleEndian, Payload: e.Bytes()})
}

// DecodeHeartbeatMessage reverses EncodeHeartbeatMessage, recovering the
// target stream id from the header's sequence_nr field.
func DecodeHeartbeatMessage(raw RawSubmessage, header MessageHeader) (targetStream uint8, payload HeartbeatPayload, err error) {
	payload, err = DecodeHeartbeatPayload(raw.Payload)
	if err != nil {
		return 0, payload, err
	}
	return uint8(header.SequenceNr), payload, nil
}

// EncodeAcknackMessage mirrors EncodeHeartbeatMessage for ACKNACK.
func EncodeAcknackMessage(sessionID SessionID, clientKey ClientKey, targetStream uint8, payload AcknackPayload) ([]byte, error) {
	e := NewEncoder(make([]byte, 0, 64), 0)
	if err := payload.Encode(e); err != nil {
		return nil, fmt.Errorf("wire: encode ACKNACK payload: %w", err)
	}
	header := MessageHeader{
		SessionID:  sessionID,
		StreamID:   0x00,
		SequenceNr: uint16(targetStream),
		ClientKey:  clientKey,
	}
	return EncodeMessage(header, EncodedSubmessage{ID: SubAcknack, Flags: FlagLittleEndian, Payload: e.Bytes()})
}

// DecodeAcknackMessage mirrors DecodeHeartbeatMessage for ACKNACK.
func DecodeAcknackMessage(raw RawSubmessage, header MessageHeader) (targetStream uint8, payload AcknackPayload, err error) {
	payload, err = DecodeAcknackPayload(raw.Payload)
	if err != nil {
		return 0, payload, err
	}
	return uint8(header.SequenceNr), payload, nil
}
