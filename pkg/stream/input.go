package stream

// inputState is the receiving side of one stream: the next sequence
// number expected in order, plus a bounded reorder buffer of payloads
// that arrived early.
type inputState struct {
	reliable    bool
	expectedSeq SequenceNumber
	buffer      map[SequenceNumber][]byte
}

func newInputState(reliable bool) *inputState {
	return &inputState{reliable: reliable, buffer: make(map[SequenceNumber][]byte)}
}

// acceptInbound implements §4.2's input-side case table. It returns the
// submessages that become deliverable as a result of this arrival: the
// triggering payload first (if any), followed by anything drained
// contiguously out of the reorder buffer.
func (s *inputState) acceptInbound(seq SequenceNumber, payload []byte) []Delivery {
	if !s.reliable {
		return s.acceptBestEffort(seq, payload)
	}
	return s.acceptReliable(seq, payload)
}

// acceptBestEffort implements the none/best-effort rule: deliver if
// seq >= expected, silently drop otherwise (duplicate or reordered).
func (s *inputState) acceptBestEffort(seq SequenceNumber, payload []byte) []Delivery {
	if Equal(seq, s.expectedSeq) || Less(s.expectedSeq, seq) {
		s.expectedSeq = seq + 1
		return []Delivery{{Seq: seq, Payload: payload}}
	}
	return nil
}

// acceptReliable implements the four-case reliable rule: duplicate
// drop, in-order deliver-plus-drain, in-capacity buffer, or
// over-capacity drop.
func (s *inputState) acceptReliable(seq SequenceNumber, payload []byte) []Delivery {
	switch {
	case Less(seq, s.expectedSeq):
		// Duplicate: already delivered.
		return nil

	case Equal(seq, s.expectedSeq):
		delivered := []Delivery{{Seq: seq, Payload: payload}}
		s.expectedSeq++
		delivered = append(delivered, s.drain()...)
		return delivered

	case len(s.buffer) < ReorderBufferCapacity:
		s.buffer[seq] = payload
		return nil

	default:
		// Over capacity: drop. A subsequent HEARTBEAT re-triggers repair.
		return nil
	}
}

// drain delivers every contiguous payload waiting in the reorder buffer
// starting at expectedSeq, advancing expectedSeq past each one.
func (s *inputState) drain() []Delivery {
	var delivered []Delivery
	for {
		payload, ok := s.buffer[s.expectedSeq]
		if !ok {
			break
		}
		delete(s.buffer, s.expectedSeq)
		delivered = append(delivered, Delivery{Seq: s.expectedSeq, Payload: payload})
		s.expectedSeq++
	}
	return delivered
}

// missing reports whether seq has neither been delivered (seq is still
// >= expectedSeq) nor is currently staged in the reorder buffer.
func (s *inputState) missing(seq SequenceNumber) bool {
	if Less(seq, s.expectedSeq) {
		return false
	}
	_, buffered := s.buffer[seq]
	return !buffered
}

// advanceExpected implements the HEARTBEAT rule of advancing past a
// sender-acknowledged gap: expected_seq := max(expected_seq, first).
func (s *inputState) advanceExpected(first SequenceNumber) {
	if !Less(s.expectedSeq, first) {
		return
	}
	s.expectedSeq = first
	for seq := range s.buffer {
		if Less(seq, s.expectedSeq) {
			delete(s.buffer, seq)
		}
	}
}
