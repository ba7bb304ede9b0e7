package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// MaxPort is the highest valid TCP port number.
const MaxPort = 65535

// AddressInUseError reports a bind on an occupied port. It unwraps to the
// original socket error.
type AddressInUseError struct {
	Port    int
	Address string
	Err     error
}

func (e *AddressInUseError) Error() string {
	return fmt.Sprintf("port %d is already in use on %s", e.Port, e.Address)
}

func (e *AddressInUseError) Unwrap() error {
	return e.Err
}

// PortBinder binds listeners up front so that a port is reserved from the
// moment it is chosen until the service using it shuts down. The quorum
// transport and the client connection factories both bind through it.
type PortBinder struct{}

// NewPortBinder returns a PortBinder.
func NewPortBinder() *PortBinder {
	return &PortBinder{}
}

// BindTCP listens on address:port. An empty address binds every interface and
// IPv6 literals are bracketed. An occupied port yields *AddressInUseError.
func (pb *PortBinder) BindTCP(address string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(address, strconv.Itoa(port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if IsAddressInUseError(err) {
			return nil, &AddressInUseError{
				Port:    port,
				Address: address,
				Err:     err,
			}
		}
		return nil, fmt.Errorf("failed to bind TCP to %s: %w", addr, err)
	}

	return listener, nil
}

// BindTCPWithFallback binds the first free port in [preferredPort, MaxPort]
// and returns the listener with the port it holds. Errors other than an
// occupied port end the walk.
func (pb *PortBinder) BindTCPWithFallback(address string, preferredPort int) (net.Listener, int, error) {
	if preferredPort < 1 || preferredPort > MaxPort {
		return nil, 0, fmt.Errorf("invalid starting port %d", preferredPort)
	}

	for port := preferredPort; port <= MaxPort; port++ {
		listener, err := pb.BindTCP(address, port)
		if err != nil {
			var addrInUseErr *AddressInUseError
			if errors.As(err, &addrInUseErr) {
				continue
			}
			return nil, 0, fmt.Errorf("failed to bind TCP starting from port %d: %w", preferredPort, err)
		}
		return listener, port, nil
	}

	return nil, 0, fmt.Errorf("no available TCP port found in range %d-%d on %s",
		preferredPort, MaxPort, address)
}

// FindAvailableTCPPort returns the lowest port at or above floor that can be
// bound on address. The probe listener is released before returning, so the
// port is only known to be free at the time of the call; the caller binds it
// again later.
func FindAvailableTCPPort(address string, floor int) (int, error) {
	listener, port, err := NewPortBinder().BindTCPWithFallback(address, floor)
	if err != nil {
		return 0, err
	}
	if err := listener.Close(); err != nil {
		return 0, fmt.Errorf("failed to release probe listener on port %d: %w", port, err)
	}
	return port, nil
}
