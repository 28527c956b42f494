package util

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"1.2.3.4", 7462, "1.2.3.4:7462"},
		{"::1", 7462, "[::1]:7462"},
		{"localhost", 22, "localhost:22"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q,%d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}

func TestRemoteIP(t *testing.T) {
	tcp := &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4000}
	if got := RemoteIP(tcp); !got.Equal(net.ParseIP("10.0.0.5")) {
		t.Errorf("RemoteIP(tcp) = %v", got)
	}

	unix := &net.UnixAddr{Name: "/tmp/sock", Net: "unix"}
	if got := RemoteIP(unix); got != nil {
		t.Errorf("RemoteIP(unix) = %v, want nil", got)
	}

	if got := RemoteIP(nil); got != nil {
		t.Errorf("RemoteIP(nil) = %v, want nil", got)
	}
}

func TestIsHarmless(t *testing.T) {
	if !IsHarmless(nil) {
		t.Error("nil should be harmless")
	}
	if !IsHarmless(io.EOF) {
		t.Error("io.EOF should be harmless")
	}
	if !IsHarmless(fmt.Errorf("read: %w", net.ErrClosed)) {
		t.Error("wrapped net.ErrClosed should be harmless")
	}
	if IsHarmless(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT be harmless")
	}
}
