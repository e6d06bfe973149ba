package udpxrce

import (
	"net"
	"testing"
)

func TestEndpointStringIncludesAddress(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 2019}
	ep := &endpoint{addr: addr}

	got := ep.String()
	want := "udp:192.0.2.1:2019"
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
