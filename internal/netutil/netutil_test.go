package netutil

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/raft"
)

func TestFindAvailableTCPPortRespectsFloor(t *testing.T) {
	port, err := FindAvailableTCPPort("127.0.0.1", 20000)
	if err != nil {
		t.Fatalf("FindAvailableTCPPort() error = %v", err)
	}
	if port < 20000 {
		t.Fatalf("port %d below floor 20000", port)
	}

	// the probe must have released the port
	l, err := NewPortBinder().BindTCP("127.0.0.1", port)
	if err != nil {
		t.Fatalf("port %d not released: %v", port, err)
	}
	defer l.Close()
}

func TestFindAvailableTCPPortSkipsHeldPort(t *testing.T) {
	first, err := FindAvailableTCPPort("127.0.0.1", 21000)
	if err != nil {
		t.Fatalf("FindAvailableTCPPort() error = %v", err)
	}

	held, err := NewPortBinder().BindTCP("127.0.0.1", first)
	if err != nil {
		t.Fatalf("BindTCP(%d) error = %v", first, err)
	}
	defer held.Close()

	second, err := FindAvailableTCPPort("127.0.0.1", 21000)
	if err != nil {
		t.Fatalf("FindAvailableTCPPort() error = %v", err)
	}
	if second == first {
		t.Fatalf("expected a different port while %d is held", first)
	}
}

func TestBindTCPAddressInUse(t *testing.T) {
	pb := NewPortBinder()
	l, err := pb.BindTCP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("BindTCP() error = %v", err)
	}
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port

	_, err = pb.BindTCP("127.0.0.1", port)
	var inUse *AddressInUseError
	if !errors.As(err, &inUse) {
		t.Fatalf("expected AddressInUseError, got %v", err)
	}
	if inUse.Port != port {
		t.Errorf("AddressInUseError.Port = %d, want %d", inUse.Port, port)
	}
	if !IsAddressInUseError(err) {
		t.Error("IsAddressInUseError() = false, want true")
	}
}

func TestBindTCPWithFallbackInvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		if _, _, err := NewPortBinder().BindTCPWithFallback("127.0.0.1", port); err == nil {
			t.Errorf("BindTCPWithFallback(%d) expected error", port)
		}
	}
}

func TestIsConnectionRefusedError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	_, err = net.DialTimeout("tcp", addr, time.Second)
	if err == nil {
		t.Skip("port was reused before dial")
	}
	if !IsConnectionRefusedError(err) {
		t.Errorf("IsConnectionRefusedError(%v) = false, want true", err)
	}
	if IsConnectionRefusedError(errors.New("other")) {
		t.Error("IsConnectionRefusedError(plain error) = true, want false")
	}
}

func TestRaftStreamLayerAdvertise(t *testing.T) {
	l, err := NewPortBinder().BindTCP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("BindTCP() error = %v", err)
	}
	advertise := &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 2888}

	sl := NewRaftStreamLayer(l, advertise)
	defer sl.Close()
	if sl.Addr().String() != "10.0.0.5:2888" {
		t.Errorf("Addr() = %s, want 10.0.0.5:2888", sl.Addr())
	}

	plain := NewRaftStreamLayer(l, nil)
	if plain.Addr().String() != l.Addr().String() {
		t.Errorf("Addr() = %s, want listener address %s", plain.Addr(), l.Addr())
	}
}

func TestRaftStreamLayerDialAccept(t *testing.T) {
	l, err := NewPortBinder().BindTCP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("BindTCP() error = %v", err)
	}
	sl := NewRaftStreamLayer(l, nil)
	defer sl.Close()

	accepted := make(chan error, 1)
	go func() {
		c, err := sl.Accept()
		if err == nil {
			c.Close()
		}
		accepted <- err
	}()

	c, err := sl.Dial(raft.ServerAddress("127.0.0.1:"+portOf(t, l)), time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	c.Close()
	if err := <-accepted; err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
}

func portOf(t *testing.T, l net.Listener) string {
	t.Helper()
	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	return port
}
