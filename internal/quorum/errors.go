package quorum

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidNativeConfig is the sentinel for every native configuration
// failure: unreadable file, undecodable value or rule violation.
var ErrInvalidNativeConfig = errors.New("invalid native configuration")

// maskedValue replaces secret values in logs and error messages.
const maskedValue = "********"

// ConfigError names the offending property so the operator can fix the file.
// Key is empty for file level failures, in which case Value holds the path.
type ConfigError struct {
	Key    string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidNativeConfig.Error())
	if e.Key != "" {
		fmt.Fprintf(&b, ": %s=%q", e.Key, MaskValue(e.Key, e.Value))
	} else if e.Value != "" {
		fmt.Fprintf(&b, ": %s", e.Value)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidNativeConfig}
	}
	return []error{ErrInvalidNativeConfig, e.Err}
}

// IsSecretKey reports whether the property holds a password.
func IsSecretKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "password")
}

// MaskValue returns value, or a fixed mask when key holds a secret.
func MaskValue(key, value string) string {
	if IsSecretKey(key) && value != "" {
		return maskedValue
	}
	return value
}

func invalid(key, value, reason string) error {
	return &ConfigError{Key: key, Value: value, Reason: reason}
}
