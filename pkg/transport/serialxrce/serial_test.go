package serialxrce

import (
	"testing"

	"github.com/howeyc/crc16"
)

// TestCorruptedFrameDetection exercises the same CRC16 check Serve
// applies to every modem read, without opening a real serial device.
func TestCorruptedFrameDetection(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	sum := crc16.ChecksumCCITT(payload)

	frame := append(append([]byte{}, payload...), byte(sum), byte(sum>>8))
	got := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	if got != sum {
		t.Fatalf("trailing CRC bytes decode to %04x, want %04x", got, sum)
	}

	frame[0] ^= 0xFF // corrupt the payload without touching the trailer
	corrupted := crc16.ChecksumCCITT(frame[:len(frame)-2]) != got
	if !corrupted {
		t.Fatal("expected corrupted payload to fail its CRC16 check")
	}
}
