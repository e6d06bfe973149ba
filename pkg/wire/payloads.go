package wire

import "fmt"

// CreateClientPayload is the CREATE_CLIENT submessage payload: the
// client's self-introduction, cookie, protocol version and the session
// it wants to establish.
type CreateClientPayload struct {
	Cookie       [4]byte
	VersionMajor uint8
	VersionMinor uint8
	ClientKey    ClientKey
	SessionID    SessionID
	Properties   map[string]string
}

// Encode serializes the payload.
func (p CreateClientPayload) Encode(e *Encoder) error {
	if err := e.PutBytes(p.Cookie[:]); err != nil {
		return err
	}
	if err := e.PutUint8(p.VersionMajor); err != nil {
		return err
	}
	if err := e.PutUint8(p.VersionMinor); err != nil {
		return err
	}
	if err := e.PutUint32(uint32(p.ClientKey)); err != nil {
		return err
	}
	if err := e.PutUint8(uint8(p.SessionID)); err != nil {
		return err
	}
	if err := e.PutUint32(uint32(len(p.Properties))); err != nil {
		return err
	}
	for k, v := range p.Properties {
		if err := e.PutString(k); err != nil {
			return err
		}
		if err := e.PutString(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeCreateClientPayload parses a CreateClientPayload.
func DecodeCreateClientPayload(buf []byte) (CreateClientPayload, error) {
	var p CreateClientPayload
	d := NewDecoder(buf, 0)

	cookie, err := d.Bytes(4)
	if err != nil {
		return p, fmt.Errorf("wire: CREATE_CLIENT: %w", err)
	}
	copy(p.Cookie[:], cookie)

	if p.VersionMajor, err = d.Uint8(); err != nil {
		return p, fmt.Errorf("wire: CREATE_CLIENT: %w", err)
	}
	if p.VersionMinor, err = d.Uint8(); err != nil {
		return p, fmt.Errorf("wire: CREATE_CLIENT: %w", err)
	}

	key, err := d.Uint32()
	if err != nil {
		return p, fmt.Errorf("wire: CREATE_CLIENT: %w", err)
	}
	p.ClientKey = ClientKey(key)

	sid, err := d.Uint8()
	if err != nil {
		return p, fmt.Errorf("wire: CREATE_CLIENT: %w", err)
	}
	p.SessionID = SessionID(sid)

	if d.Remaining() == 0 {
		return p, nil
	}

	n, err := d.Uint32()
	if err != nil {
		return p, fmt.Errorf("wire: CREATE_CLIENT: %w", err)
	}
	if n > 0 {
		p.Properties = make(map[string]string, n)
		for i := uint32(0); i < n; i++ {
			k, err := d.String()
			if err != nil {
				return p, fmt.Errorf("wire: CREATE_CLIENT: property key: %w", err)
			}
			v, err := d.String()
			if err != nil {
				return p, fmt.Errorf("wire: CREATE_CLIENT: property value: %w", err)
			}
			p.Properties[k] = v
		}
	}

	return p, nil
}

// CreatePayload is the CREATE submessage payload: the object id being
// created or referenced, its parent (0 if none), its kind, and an
// opaque representation blob that the registry/DDS facade interpret.
type CreatePayload struct {
	ObjectID       uint16
	ParentID       uint16
	Kind           uint8
	Representation []byte
}

func (p CreatePayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.ObjectID); err != nil {
		return err
	}
	if err := e.PutUint16(p.ParentID); err != nil {
		return err
	}
	if err := e.PutUint8(p.Kind); err != nil {
		return err
	}
	if err := e.PutUint32(uint32(len(p.Representation))); err != nil {
		return err
	}
	return e.PutBytes(p.Representation)
}

func DecodeCreatePayload(buf []byte) (CreatePayload, error) {
	var p CreatePayload
	d := NewDecoder(buf, 0)

	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: CREATE: %w", err)
	}
	if p.ParentID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: CREATE: %w", err)
	}
	if p.Kind, err = d.Uint8(); err != nil {
		return p, fmt.Errorf("wire: CREATE: %w", err)
	}
	n, err := d.Uint32()
	if err != nil {
		return p, fmt.Errorf("wire: CREATE: %w", err)
	}
	if p.Representation, err = d.Bytes(int(n)); err != nil {
		return p, fmt.Errorf("wire: CREATE: %w", err)
	}

	return p, nil
}

// DeletePayload is the DELETE submessage payload.
type DeletePayload struct {
	ObjectID uint16
}

func (p DeletePayload) Encode(e *Encoder) error {
	return e.PutUint16(p.ObjectID)
}

func DecodeDeletePayload(buf []byte) (DeletePayload, error) {
	var p DeletePayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: DELETE: %w", err)
	}
	return p, nil
}

// StatusPayload is the STATUS submessage payload.
type StatusPayload struct {
	ObjectID uint16
	Result   StatusCode
}

func (p StatusPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.ObjectID); err != nil {
		return err
	}
	return e.PutUint8(uint8(p.Result))
}

func DecodeStatusPayload(buf []byte) (StatusPayload, error) {
	var p StatusPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: STATUS: %w", err)
	}
	result, err := d.Uint8()
	if err != nil {
		return p, fmt.Errorf("wire: STATUS: %w", err)
	}
	p.Result = StatusCode(result)
	return p, nil
}

// WriteDataPayload is the WRITE_DATA submessage payload, DATA format
// only (§6: SAMPLE/DATASEQ/SAMPLESEQ/PACKEDSAMPLES MAY be rejected with
// ERR_UNSUPPORTED).
type WriteDataPayload struct {
	ObjectID  uint16
	RequestID uint32
	Data      []byte
}

func (p WriteDataPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.ObjectID); err != nil {
		return err
	}
	if err := e.PutUint32(p.RequestID); err != nil {
		return err
	}
	if err := e.PutUint32(uint32(len(p.Data))); err != nil {
		return err
	}
	return e.PutBytes(p.Data)
}

func DecodeWriteDataPayload(buf []byte) (WriteDataPayload, error) {
	var p WriteDataPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: WRITE_DATA: %w", err)
	}
	if p.RequestID, err = d.Uint32(); err != nil {
		return p, fmt.Errorf("wire: WRITE_DATA: %w", err)
	}
	n, err := d.Uint32()
	if err != nil {
		return p, fmt.Errorf("wire: WRITE_DATA: %w", err)
	}
	if p.Data, err = d.Bytes(int(n)); err != nil {
		return p, fmt.Errorf("wire: WRITE_DATA: %w", err)
	}
	return p, nil
}

// ReadDataPayload is the READ_DATA submessage payload.
type ReadDataPayload struct {
	ObjectID   uint16
	RequestID  uint32
	MaxSamples uint16
}

func (p ReadDataPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.ObjectID); err != nil {
		return err
	}
	if err := e.PutUint32(p.RequestID); err != nil {
		return err
	}
	return e.PutUint16(p.MaxSamples)
}

func DecodeReadDataPayload(buf []byte) (ReadDataPayload, error) {
	var p ReadDataPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: READ_DATA: %w", err)
	}
	if p.RequestID, err = d.Uint32(); err != nil {
		return p, fmt.Errorf("wire: READ_DATA: %w", err)
	}
	if p.MaxSamples, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: READ_DATA: %w", err)
	}
	return p, nil
}

// DataPayload is the DATA submessage payload carrying a single sample.
type DataPayload struct {
	ObjectID  uint16
	RequestID uint32
	Data      []byte
}

func (p DataPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.ObjectID); err != nil {
		return err
	}
	if err := e.PutUint32(p.RequestID); err != nil {
		return err
	}
	if err := e.PutUint32(uint32(len(p.Data))); err != nil {
		return err
	}
	return e.PutBytes(p.Data)
}

func DecodeDataPayload(buf []byte) (DataPayload, error) {
	var p DataPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: DATA: %w", err)
	}
	if p.RequestID, err = d.Uint32(); err != nil {
		return p, fmt.Errorf("wire: DATA: %w", err)
	}
	n, err := d.Uint32()
	if err != nil {
		return p, fmt.Errorf("wire: DATA: %w", err)
	}
	if p.Data, err = d.Bytes(int(n)); err != nil {
		return p, fmt.Errorf("wire: DATA: %w", err)
	}
	return p, nil
}

// HeartbeatPayload is the HEARTBEAT submessage payload. The stream it
// applies to is not part of this payload: per §9's design note, it
// travels in the message header's sequence_nr field and is packed in
// only at encode time by EncodeHeartbeatMessage.
type HeartbeatPayload struct {
	FirstUnackedSeq uint16
	LastUnackedSeq  uint16
}

func (p HeartbeatPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.FirstUnackedSeq); err != nil {
		return err
	}
	return e.PutUint16(p.LastUnackedSeq)
}

func DecodeHeartbeatPayload(buf []byte) (HeartbeatPayload, error) {
	var p HeartbeatPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.FirstUnackedSeq, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: HEARTBEAT: %w", err)
	}
	if p.LastUnackedSeq, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: HEARTBEAT: %w", err)
	}
	return p, nil
}

// AcknackPayload is the ACKNACK submessage payload. Like HEARTBEAT, the
// stream it applies to travels in the header's sequence_nr field.
type AcknackPayload struct {
	FirstUnackedSeq uint16
	NackBitmap      [2]byte
}

func (p AcknackPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.FirstUnackedSeq); err != nil {
		return err
	}
	return e.PutBytes(p.NackBitmap[:])
}

func DecodeAcknackPayload(buf []byte) (AcknackPayload, error) {
	var p AcknackPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.FirstUnackedSeq, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: ACKNACK: %w", err)
	}
	raw, err := d.Bytes(2)
	if err != nil {
		return p, fmt.Errorf("wire: ACKNACK: %w", err)
	}
	copy(p.NackBitmap[:], raw)
	return p, nil
}

// GetInfoPayload is the GET_INFO submessage payload.
type GetInfoPayload struct {
	ObjectID uint16
}

func (p GetInfoPayload) Encode(e *Encoder) error {
	return e.PutUint16(p.ObjectID)
}

func DecodeGetInfoPayload(buf []byte) (GetInfoPayload, error) {
	var p GetInfoPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: GET_INFO: %w", err)
	}
	return p, nil
}

// ObjectInfoPayload answers a GET_INFO request. It is carried inside a
// STATUS reply's trailing bytes when Result is OK; callers that only
// care about the status code may ignore it.
type ObjectInfoPayload struct {
	ObjectID          uint16
	Kind              uint8
	ParentID          uint16
	ConfigChangeCount uint32
}

func (p ObjectInfoPayload) Encode(e *Encoder) error {
	if err := e.PutUint16(p.ObjectID); err != nil {
		return err
	}
	if err := e.PutUint8(p.Kind); err != nil {
		return err
	}
	if err := e.PutUint16(p.ParentID); err != nil {
		return err
	}
	return e.PutUint32(p.ConfigChangeCount)
}

func DecodeObjectInfoPayload(buf []byte) (ObjectInfoPayload, error) {
	var p ObjectInfoPayload
	d := NewDecoder(buf, 0)
	var err error
	if p.ObjectID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: OBJECT_INFO: %w", err)
	}
	if p.Kind, err = d.Uint8(); err != nil {
		return p, fmt.Errorf("wire: OBJECT_INFO: %w", err)
	}
	if p.ParentID, err = d.Uint16(); err != nil {
		return p, fmt.Errorf("wire: OBJECT_INFO: %w", err)
	}
	if p.ConfigChangeCount, err = d.Uint32(); err != nil {
		return p, fmt.Errorf("wire: OBJECT_INFO: %w", err)
	}
	return p, nil
}
