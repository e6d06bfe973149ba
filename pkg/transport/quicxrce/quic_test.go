package quicxrce

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

func TestReadFrameRoundTrip(t *testing.T) {
	want := []byte{9, 8, 7}
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(want)))
	r := bufio.NewReader(bytes.NewReader(append(prefix[:], want...)))

	got, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("readFrame = %v, want %v", got, want)
	}
}

func TestGenerateListenerTLSConfigProducesUsableCert(t *testing.T) {
	conf, err := generateListenerTLSConfig()
	if err != nil {
		t.Fatalf("generateListenerTLSConfig: %v", err)
	}
	if len(conf.Certificates) != 1 {
		t.Fatalf("expected exactly one certificate, got %d", len(conf.Certificates))
	}
	if conf.NextProtos[0] != "xrce-dds" {
		t.Fatalf("NextProtos[0] = %q, want %q", conf.NextProtos[0], "xrce-dds")
	}
}
