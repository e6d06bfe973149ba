package tcpxrce

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xrce-go/agent/pkg/transport"
)

func encodeFrame(payload []byte) []byte {
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(payload)))
	return append(prefix[:], payload...)
}

func TestReadFrameRoundTrip(t *testing.T) {
	want := []byte{1, 2, 3, 4, 5}
	r := bufio.NewReader(bytes.NewReader(encodeFrame(want)))

	got, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("readFrame = %v, want %v", got, want)
	}
}

func TestReadFrameOversizedRejected(t *testing.T) {
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(transport.MaxFrameSize+1))
	r := bufio.NewReader(bytes.NewReader(prefix[:]))

	if _, err := readFrame(r); err == nil {
		t.Fatal("expected an error for a frame exceeding MaxFrameSize")
	}
}

func TestReadFrameShortHeaderIsError(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0x01}))
	if _, err := readFrame(r); err == nil {
		t.Fatal("expected an error for a truncated length prefix")
	}
}

func TestEndpointSendRejectsOversizedMessage(t *testing.T) {
	ep := &endpoint{}
	big := make([]byte, 0x10000)
	if err := ep.Send(big); err == nil {
		t.Fatal("expected an error for a message too large for the uint16 length prefix")
	}
}
