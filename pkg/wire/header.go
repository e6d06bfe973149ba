package wire

import "fmt"

// SessionID classifies the owning session per §3 of the specification.
type SessionID uint8

const (
	// SessionNoneWithoutKey is used only for the initial handshake before
	// a ClientKey is known to the peer.
	SessionNoneWithoutKey SessionID = 0x00

	// SessionNoneWithKey is used only for the initial handshake once a
	// ClientKey is already known.
	SessionNoneWithKey SessionID = 0x01

	// SessionEstablishedMin is the first value of an established
	// session id.
	SessionEstablishedMin SessionID = 0x80

	// SessionEstablishedMax is the last value of an established session
	// id.
	SessionEstablishedMax SessionID = 0xFE
)

// IsNone reports whether id belongs to one of the two handshake-only
// "none" classes.
func (id SessionID) IsNone() bool {
	return id == SessionNoneWithoutKey || id == SessionNoneWithKey
}

// HasKey reports whether a message header in this session class carries
// a ClientKey field. Per §6's wire table, client_key is present iff
// session_id is one of the two "none" handshake classes; an established
// session (0x80-0xFE) carries no header-level client_key at all, since
// by then the transport's endpoint is already bound to a session.
func (id SessionID) HasKey() bool {
	return id == SessionNoneWithoutKey || id == SessionNoneWithKey
}

// ClientKey is the 32-bit opaque identifier the client chooses for
// itself; unique within an Agent.
type ClientKey uint32

func (k ClientKey) String() string {
	return fmt.Sprintf("%08X", uint32(k))
}

// MessageHeader is the 4-byte (or 8-byte, with ClientKey) header that
// precedes every XRCE message.
type MessageHeader struct {
	SessionID  SessionID
	StreamID   uint8
	SequenceNr uint16
	ClientKey  ClientKey
}

// Encode writes the header, including the ClientKey field iff
// SessionID.HasKey().
func (h MessageHeader) Encode(e *Encoder) error {
	if err := e.PutUint8(uint8(h.SessionID)); err != nil {
		return err
	}
	if err := e.PutUint8(h.StreamID); err != nil {
		return err
	}
	if err := e.PutUint16(h.SequenceNr); err != nil {
		return err
	}
	if h.SessionID.HasKey() {
		if err := e.PutUint32(uint32(h.ClientKey)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMessageHeader reads a MessageHeader from d.
func DecodeMessageHeader(d *Decoder) (MessageHeader, error) {
	var h MessageHeader

	sid, err := d.Uint8()
	if err != nil {
		return h, fmt.Errorf("wire: decode header: %w", err)
	}
	h.SessionID = SessionID(sid)

	if h.StreamID, err = d.Uint8(); err != nil {
		return h, fmt.Errorf("wire: decode header: %w", err)
	}
	if h.SequenceNr, err = d.Uint16(); err != nil {
		return h, fmt.Errorf("wire: decode header: %w", err)
	}

	if h.SessionID.HasKey() {
		key, err := d.Uint32()
		if err != nil {
			return h, fmt.Errorf("wire: decode header: %w", err)
		}
		h.ClientKey = ClientKey(key)
	}

	return h, nil
}
