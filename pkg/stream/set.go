package stream

import "sync"

// stream bundles one StreamID's input and output state behind its own
// mutex, so distinct streams of the same session never contend with
// each other (§5).
type stream struct {
	mu  sync.Mutex
	in  *inputState
	out *outputState
}

// Set is the per-client collection of inbound and outbound streams with
// their sequence state, reorder buffers and output history, per §4.2.
// StreamID is a full byte, so streams are held in a fixed-size array
// rather than a map.
type Set struct {
	streams [256]*stream
	mu      sync.RWMutex
}

// NewSet creates an empty Set; streams are created lazily on first use
// so a session that never touches stream 0x42 never allocates state for
// it.
func NewSet() *Set {
	return &Set{}
}

func (s *Set) get(id ID) *stream {
	s.mu.RLock()
	st := s.streams[id]
	s.mu.RUnlock()
	if st != nil {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[id] == nil {
		reliable := id.Reliable()
		s.streams[id] = &stream{in: newInputState(reliable), out: newOutputState(reliable)}
	}
	return s.streams[id]
}

// AcceptInbound implements §4.2's input-side operation: for reliable
// streams it returns the triggering delivery (if any) followed by
// anything newly contiguous in the reorder buffer; for best-effort/none
// streams it returns at most the triggering delivery.
func (s *Set) AcceptInbound(id ID, seq SequenceNumber, payload []byte) []Delivery {
	st := s.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.in.acceptInbound(seq, payload)
}

// OnHeartbeat implements §4.2's heartbeat-driven repair for stream id.
//
// Tie-break: callers must route inbound DATA submessages for a stream
// through AcceptInbound before any concurrently-received HEARTBEAT is
// passed to OnHeartbeat for that same stream, so the resulting bitmap
// reflects the freshest state (§4.2); both calls take the same
// per-stream lock so this is a matter of call ordering in the
// dispatcher, not locking here.
func (s *Set) OnHeartbeat(id ID, first, last SequenceNumber) AckNackReply {
	st := s.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.in.onHeartbeat(first, last)
}

// EnqueueOutbound implements §4.2's output-side operation.
func (s *Set) EnqueueOutbound(id ID, msg []byte) SequenceNumber {
	st := s.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.out.enqueueOutbound(msg)
}

// Retransmission is re-exported for callers outside the package.
type Retransmission = retransmission

// OnAcknack implements §4.2's ACKNACK handling.
func (s *Set) OnAcknack(id ID, firstUnacked SequenceNumber, bitmap [2]byte) []Retransmission {
	st := s.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.out.onAcknack(firstUnacked, bitmap)
}

// OutputRange reports the current (firstUnacked, lastSent) window for a
// reliable output stream, as advertised by a HEARTBEAT per §4.4.
func (s *Set) OutputRange(id ID) (first, last SequenceNumber) {
	st := s.get(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.out.firstUnackedSeq, st.out.lastSentSeq
}
