package netutil

import (
	"net"
	"time"

	"github.com/hashicorp/raft"
)

// RaftStreamLayer implements raft.StreamLayer over a pre-bound listener.
//
// The listener may be bound to 0.0.0.0 when the peer listens on all
// interfaces, so the stream layer carries a separate advertise address that
// raft hands out to the rest of the ensemble.
type RaftStreamLayer struct {
	listener  net.Listener
	advertise net.Addr
	dialer    func(address string, timeout time.Duration) (net.Conn, error)
}

// NewRaftStreamLayer creates a stream layer over listener. A nil advertise
// address falls back to the listener's own address.
func NewRaftStreamLayer(listener net.Listener, advertise net.Addr) *RaftStreamLayer {
	return &RaftStreamLayer{
		listener:  listener,
		advertise: advertise,
		dialer: func(address string, timeout time.Duration) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: timeout}
			return dialer.Dial("tcp", address)
		},
	}
}

// Dial establishes an outbound connection to a peer's quorum address.
func (r *RaftStreamLayer) Dial(address raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	return r.dialer(string(address), timeout)
}

// Accept waits for and returns the next incoming peer connection.
func (r *RaftStreamLayer) Accept() (net.Conn, error) {
	return r.listener.Accept()
}

// Close shuts down the stream layer and releases the underlying listener.
func (r *RaftStreamLayer) Close() error {
	if r.listener != nil {
		return r.listener.Close()
	}
	return nil
}

// Addr returns the address advertised to other ensemble members.
func (r *RaftStreamLayer) Addr() net.Addr {
	if r.advertise != nil {
		return r.advertise
	}
	if r.listener != nil {
		return r.listener.Addr()
	}
	return nil
}
