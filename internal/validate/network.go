// Package validate provides the input validation shared by the native
// configuration parser, the connection endpoint parser and the daemon's host
// configuration. All rules are expressed as go-playground/validator tags.
package validate

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Global validator instance using built-in validations
	validate *validator.Validate
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report property-style names (name:"tickTime") instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("name"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// NetworkAddress represents a validated "host:port" pair. The host is either
// an IP literal or an RFC 1123 host name, since ensemble members are usually
// listed by name in property files.
type NetworkAddress struct {
	Host string `validate:"required,ip|hostname_rfc1123"`
	Port int    `validate:"min=0,max=65535"`
}

// String returns the address in "host:port" form, bracketing IPv6 hosts.
func (na NetworkAddress) String() string {
	return net.JoinHostPort(na.Host, strconv.Itoa(na.Port))
}

// ParseHostPort parses and validates a "host:port" address. Port 0 is allowed
// so callers can ask the OS for a port.
func ParseHostPort(addr string) (*NetworkAddress, error) {
	if addr == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address format '%s': %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port '%s': %w", portStr, err)
	}

	netAddr := &NetworkAddress{Host: host, Port: port}
	if err := validate.Struct(netAddr); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return netAddr, nil
}

// ParseBindAddress is ParseHostPort restricted to IP literals, for addresses a
// listener binds to directly.
func ParseBindAddress(addr string) (*NetworkAddress, error) {
	na, err := ParseHostPort(addr)
	if err != nil {
		return nil, err
	}
	if err := ValidateField(na.Host, "ip"); err != nil {
		return nil, fmt.Errorf("bind host '%s' must be an IP address", na.Host)
	}
	return na, nil
}

// ValidateHost checks that host is an IP literal or a valid host name.
func ValidateHost(host string) error {
	if err := ValidateField(host, "required,ip|hostname_rfc1123"); err != nil {
		return fmt.Errorf("invalid host '%s'", host)
	}
	return nil
}

// ValidateField validates a single value against validator tags.
//
// Example: ValidateField("192.168.1.1", "required,ip")
func ValidateField(value any, tag string) error {
	return validate.Var(value, tag)
}

// ValidateAddressList validates every "host:port" entry of a list.
func ValidateAddressList(addresses []string) error {
	if len(addresses) == 0 {
		return fmt.Errorf("address list cannot be empty")
	}

	for i, addr := range addresses {
		if _, err := ParseHostPort(addr); err != nil {
			return fmt.Errorf("invalid address at index %d: %w", i, err)
		}
	}

	return nil
}
