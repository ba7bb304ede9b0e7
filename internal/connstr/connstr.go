// Package connstr parses client connection strings of the form
// "host:port[,host:port...][/chroot]" into endpoints.
//
// The parser is pure: it performs no name resolution and touches no sockets.
// It backs the secure client port resolution in the reconciler, where the
// first endpoint of the host's connect string decides the port.
package connstr

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/concave-dev/ensemble/internal/validate"
)

// ErrMalformedConnectionString is returned, wrapped in a *MalformedError, for
// any connection string that cannot be parsed.
var ErrMalformedConnectionString = errors.New("malformed connection string")

// MalformedError describes which segment of a connection string was rejected.
type MalformedError struct {
	Input   string
	Segment string
	Reason  string
}

func (e *MalformedError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("%s %q: %s", ErrMalformedConnectionString, e.Input, e.Reason)
	}
	return fmt.Sprintf("%s %q: segment %q: %s", ErrMalformedConnectionString, e.Input, e.Segment, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedConnectionString
}

// Endpoint is one "host:port" entry of a connection string.
type Endpoint struct {
	Host string
	Port uint16
}

// String returns the endpoint as "host:port", bracketing IPv6 hosts.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Parse returns the endpoints of s in order. A trailing chroot path is accepted
// and ignored; use ParseWithChroot to get it.
func Parse(s string) ([]Endpoint, error) {
	endpoints, _, err := ParseWithChroot(s)
	return endpoints, err
}

// ParseWithChroot returns the endpoints of s and its chroot suffix. The chroot
// starts at the first '/' and is returned verbatim, or "" when absent. A bare
// "/" chroot is normalised to "".
func ParseWithChroot(s string) ([]Endpoint, string, error) {
	input := s
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", &MalformedError{Input: input, Reason: "empty"}
	}

	var chroot string
	if i := strings.IndexByte(s, '/'); i >= 0 {
		chroot = s[i:]
		s = s[:i]
		if chroot == "/" {
			chroot = ""
		}
		if strings.HasSuffix(chroot, "/") || strings.Contains(chroot, "//") {
			return nil, "", &MalformedError{Input: input, Segment: chroot, Reason: "invalid chroot path"}
		}
	}

	segments := strings.Split(s, ",")
	endpoints := make([]Endpoint, 0, len(segments))
	for _, seg := range segments {
		ep, err := parseSegment(input, strings.TrimSpace(seg))
		if err != nil {
			return nil, "", err
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, chroot, nil
}

func parseSegment(input, seg string) (Endpoint, error) {
	if seg == "" {
		return Endpoint{}, &MalformedError{Input: input, Reason: "empty segment"}
	}

	host, portStr, err := net.SplitHostPort(seg)
	if err != nil {
		return Endpoint{}, &MalformedError{Input: input, Segment: seg, Reason: "expected host:port"}
	}
	if host == "" {
		return Endpoint{}, &MalformedError{Input: input, Segment: seg, Reason: "empty host"}
	}
	if err := validate.ValidateHost(host); err != nil {
		return Endpoint{}, &MalformedError{Input: input, Segment: seg, Reason: err.Error()}
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, &MalformedError{Input: input, Segment: seg, Reason: fmt.Sprintf("invalid port %q", portStr)}
	}

	return Endpoint{Host: host, Port: uint16(port)}, nil
}
