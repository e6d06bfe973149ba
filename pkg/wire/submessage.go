package wire

import "fmt"

// SubmessageID identifies the kind of a submessage payload.
type SubmessageID uint8

const (
	SubCreateClient SubmessageID = 0x01
	SubCreate       SubmessageID = 0x03
	SubGetInfo      SubmessageID = 0x04
	SubDelete       SubmessageID = 0x05
	SubStatus       SubmessageID = 0x06
	SubWriteData    SubmessageID = 0x07
	SubReadData     SubmessageID = 0x08
	SubData         SubmessageID = 0x09
	SubAcknack      SubmessageID = 0x0A
	SubHeartbeat    SubmessageID = 0x0B
)

func (id SubmessageID) String() string {
	switch id {
	case SubCreateClient:
		return "CREATE_CLIENT"
	case SubCreate:
		return "CREATE"
	case SubGetInfo:
		return "GET_INFO"
	case SubDelete:
		return "DELETE"
	case SubStatus:
		return "STATUS"
	case SubWriteData:
		return "WRITE_DATA"
	case SubReadData:
		return "READ_DATA"
	case SubData:
		return "DATA"
	case SubAcknack:
		return "ACKNACK"
	case SubHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(id))
	}
}

// SubmessageFlags holds the 8 flag bits of a submessage header.
type SubmessageFlags uint8

const (
	FlagLittleEndian SubmessageFlags = 1 << 0
	FlagReuse        SubmessageFlags = 1 << 1
	FlagReplace      SubmessageFlags = 1 << 2
)

// WriteDataFormat is the 3-bit format enum packed into WRITE_DATA's
// flags bits 1..3.
type WriteDataFormat uint8

const (
	FormatData          WriteDataFormat = 0
	FormatSample        WriteDataFormat = 2
	FormatDataSeq       WriteDataFormat = 8
	FormatSampleSeq     WriteDataFormat = 10
	FormatPackedSamples WriteDataFormat = 12
)

// Format extracts the WRITE_DATA format enum from flags.
func (f SubmessageFlags) Format() WriteDataFormat {
	return WriteDataFormat(f >> 1 & 0x7 << 1)
}

// LittleEndian reports whether bit0 indicates little-endian encoding.
func (f SubmessageFlags) LittleEndian() bool { return f&FlagLittleEndian != 0 }

// Reuse reports the CREATE-only REUSE bit.
func (f SubmessageFlags) Reuse() bool { return f&FlagReuse != 0 }

// Replace reports the CREATE-only REPLACE bit.
func (f SubmessageFlags) Replace() bool { return f&FlagReplace != 0 }

// SubmessageHeader precedes every submessage payload, 4-byte aligned
// relative to the start of the enclosing message.
type SubmessageHeader struct {
	ID     SubmessageID
	Flags  SubmessageFlags
	Length uint16 // payload length in bytes
}

// Encode aligns the encoder, then writes the 4-byte header.
func (h SubmessageHeader) Encode(e *Encoder) error {
	if err := e.Align(); err != nil {
		return err
	}
	if err := e.PutUint8(uint8(h.ID)); err != nil {
		return err
	}
	if err := e.PutUint8(uint8(h.Flags)); err != nil {
		return err
	}
	return e.PutUint16(h.Length)
}

// DecodeSubmessageHeader aligns the decoder, then reads the 4-byte
// header.
func DecodeSubmessageHeader(d *Decoder) (SubmessageHeader, error) {
	var h SubmessageHeader

	if err := d.Align(); err != nil {
		return h, fmt.Errorf("wire: decode submessage header: %w", err)
	}

	id, err := d.Uint8()
	if err != nil {
		return h, fmt.Errorf("wire: decode submessage header: %w", err)
	}
	h.ID = SubmessageID(id)

	flags, err := d.Uint8()
	if err != nil {
		return h, fmt.Errorf("wire: decode submessage header: %w", err)
	}
	h.Flags = SubmessageFlags(flags)

	if h.Length, err = d.Uint16(); err != nil {
		return h, fmt.Errorf("wire: decode submessage header: %w", err)
	}

	return h, nil
}

// RawSubmessage is a decoded-but-not-yet-typed submessage: its header
// plus the payload bytes (already sliced out and 4-byte aligned at the
// end).
type RawSubmessage struct {
	Header  SubmessageHeader
	Payload []byte
}

// DecodeSubmessages walks every 4-byte-aligned submessage in buf,
// starting at offset 0. A malformed trailing submessage truncates the
// result and is not itself returned as an error — callers treat a short
// final submessage as "drop and continue" per the category-1 decode
// error policy.
func DecodeSubmessages(buf []byte) []RawSubmessage {
	var out []RawSubmessage

	d := NewDecoder(buf, 0)
	for d.Remaining() > 0 {
		if d.Remaining() < 4 && d.Offset()%4 == 0 {
			break
		}

		hdr, err := DecodeSubmessageHeader(d)
		if err != nil {
			break
		}

		payload, err := d.Bytes(int(hdr.Length))
		if err != nil {
			break
		}

		out = append(out, RawSubmessage{Header: hdr, Payload: payload})

		if err := d.Align(); err != nil {
			break
		}
	}

	return out
}

// EncodeSubmessage aligns e, writes hdr with Length set to len(payload),
// then writes payload and its trailing alignment padding.
func EncodeSubmessage(e *Encoder, id SubmessageID, flags SubmessageFlags, payload []byte) error {
	hdr := SubmessageHeader{ID: id, Flags: flags, Length: uint16(len(payload))}
	if err := hdr.Encode(e); err != nil {
		return err
	}
	if err := e.PutBytes(payload); err != nil {
		return err
	}
	return e.Align()
}
