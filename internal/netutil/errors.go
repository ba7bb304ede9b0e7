// Package netutil provides the network helpers shared by the reconciler, the
// connection factories and the quorum transport of ensemble.
//
// This file classifies socket errors by type rather than by message so that
// port probing and client retries behave the same on every platform.
package netutil

import (
	"errors"
	"net"
	"syscall"
)

// IsAddressInUseError checks if an error indicates "address already in use"
// using proper error type checking rather than string matching.
//
// Used by the secure port allocator to skip occupied ports and by the
// connection factories to report a readable bind failure.
func IsAddressInUseError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}

// IsConnectionRefusedError checks if an error indicates "connection refused".
// The status command uses it to tell an absent node apart from a broken one.
func IsConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}
	return false
}
