package stream

// AckNackReply is the repair response produced by onHeartbeat, ready to
// be carried by an ACKNACK submessage.
type AckNackReply struct {
	FirstUnacked SequenceNumber
	NackBitmap   [2]byte
}

// onHeartbeat implements §4.2's heartbeat-driven repair: the receiver
// advances past any sender-acknowledged gap, then reports which of the
// next 16 sequence numbers the sender claims to have sent (i.e. not
// past last) are still missing. Anything beyond last was never sent in
// the first place, so it is not a gap and must not be NACKed.
func (s *inputState) onHeartbeat(first, last SequenceNumber) AckNackReply {
	s.advanceExpected(first)

	reply := AckNackReply{FirstUnacked: s.expectedSeq}
	for i := 0; i < 16; i++ {
		seq := reply.FirstUnacked + SequenceNumber(i)
		if Less(last, seq) {
			break
		}
		if s.missing(seq) {
			setNackBit(&reply.NackBitmap, i)
		}
	}

	return reply
}
