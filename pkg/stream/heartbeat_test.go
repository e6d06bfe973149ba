package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScenarioS4GapHeartbeat is the literal scenario from §8: deliver
// [0,1], drop [2], deliver [3,4], then HEARTBEAT(first=0, last=4).
// Expect ACKNACK first_unacked=2, bitmap[1]=0b00000001 (bit0 set, seq 2
// missing), all other bits 0.
func TestScenarioS4GapHeartbeat(t *testing.T) {
	set := NewSet()
	set.AcceptInbound(0x80, 0, []byte{0})
	set.AcceptInbound(0x80, 1, []byte{1})
	// seq 2 dropped on the wire, never arrives.
	set.AcceptInbound(0x80, 3, []byte{3})
	set.AcceptInbound(0x80, 4, []byte{4})

	reply := set.OnHeartbeat(0x80, 0, 4)

	require.EqualValues(t, 2, reply.FirstUnacked)
	require.Equal(t, byte(0b00000001), reply.NackBitmap[1])
	require.Equal(t, byte(0), reply.NackBitmap[0])
}

// TestHeartbeatAdvancesPastAckedGap covers P4's advance-past-gap rule:
// first moves expected_seq forward even when the gap was never filled.
func TestHeartbeatAdvancesPastAckedGap(t *testing.T) {
	set := NewSet()
	set.AcceptInbound(0x80, 0, []byte{0})
	// seq 1 never arrives; sender reports it already knows the receiver
	// doesn't need it (e.g. it was superseded). seq 2 is inside the
	// advertised [2, 2] range and has not arrived either, so it is NACKed.
	reply := set.OnHeartbeat(0x80, 2, 2)

	require.EqualValues(t, 2, reply.FirstUnacked)
	require.Equal(t, [2]byte{0, 0b00000001}, reply.NackBitmap)
}

// TestDataBeforeHeartbeatTieBreak covers §4.2's tie-break: data
// processed before a concurrently-arriving HEARTBEAT is reflected in
// the resulting ACKNACK.
func TestDataBeforeHeartbeatTieBreak(t *testing.T) {
	set := NewSet()
	set.AcceptInbound(0x80, 0, []byte{0})
	// seq 1 "arrives" (is processed) before the heartbeat that asks
	// about it.
	set.AcceptInbound(0x80, 1, []byte{1})

	reply := set.OnHeartbeat(0x80, 0, 1)
	require.EqualValues(t, 2, reply.FirstUnacked, "seq 1 already delivered")
}

// TestScenarioS5WriteThenAck is the literal scenario from §8: after 3
// samples on stream 0x80, history holds 3 entries; ACKNACK(first=2,
// bitmap all zero) evicts seqs 0 and 1, leaving only seq 2.
func TestScenarioS5WriteThenAck(t *testing.T) {
	set := NewSet()
	for i := 0; i < 3; i++ {
		set.EnqueueOutbound(0x80, []byte{byte(i)})
	}

	set.OnAcknack(0x80, 2, [2]byte{0, 0})

	st := set.get(0x80)
	_, ok := st.out.history[0]
	require.False(t, ok, "seq 0 should have been evicted")
	_, ok = st.out.history[1]
	require.False(t, ok, "seq 1 should have been evicted")
	_, ok = st.out.history[2]
	require.True(t, ok, "seq 2 should still be in history")
}

// TestScenarioS6Retransmit is the literal scenario from §8: history
// holds seqs 10..13; ACKNACK(first=10, bitmap[1]=0b00000101) retransmits
// 10 and 12 exactly once, in that order; first_unacked_seq becomes 10.
func TestScenarioS6Retransmit(t *testing.T) {
	set := NewSet()
	st := set.get(0x80)
	st.out.nextSeq = 10
	for i := 10; i <= 13; i++ {
		set.EnqueueOutbound(0x80, []byte{byte(i)})
	}

	retx := set.OnAcknack(0x80, 10, [2]byte{0, 0b00000101})

	require.Len(t, retx, 2)
	require.Equal(t, SequenceNumber(10), retx[0].Seq)
	require.Equal(t, SequenceNumber(12), retx[1].Seq)

	first, _ := set.OutputRange(0x80)
	require.EqualValues(t, 10, first)
}

// TestAcknackSkipsOutOfRangeSeq covers P3's "skip silently" rule for
// bits referring to sequence numbers no longer in history.
func TestAcknackSkipsOutOfRangeSeq(t *testing.T) {
	set := NewSet()
	set.EnqueueOutbound(0x80, []byte{0})

	// Ask for a retransmission far outside anything ever sent.
	retx := set.OnAcknack(0x80, 100, [2]byte{0, 1})
	require.Empty(t, retx, "expected no retransmissions for out-of-range seq")
}

// TestRetransmitCompleteness covers P3 generally: every bit set in the
// bitmap whose seq is still in history triggers exactly one
// retransmission.
func TestRetransmitCompleteness(t *testing.T) {
	set := NewSet()
	for i := 0; i < 16; i++ {
		set.EnqueueOutbound(0x80, []byte{byte(i)})
	}

	bitmap := [2]byte{0b10101010, 0b01010101}
	retx := set.OnAcknack(0x80, 0, bitmap)

	want := 0
	for i := 0; i < 16; i++ {
		if nackBitSet(bitmap, i) {
			want++
		}
	}
	require.Len(t, retx, want)

	seen := map[SequenceNumber]int{}
	for _, r := range retx {
		seen[r.Seq]++
	}
	for seq, count := range seen {
		require.Equal(t, 1, count, "seq %d retransmitted %d times, want 1", seq, count)
	}
}
