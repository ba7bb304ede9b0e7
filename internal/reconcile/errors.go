package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInconsistentTLS is returned, wrapped in an *InconsistentTLSError, when
// only some of the native TLS properties are set.
var ErrInconsistentTLS = errors.New("inconsistent TLS configuration")

// InconsistentTLSError lists which of the four TLS properties are present.
type InconsistentTLSError struct {
	Present []string
	Missing []string
}

func (e *InconsistentTLSError) Error() string {
	return fmt.Sprintf("%s: either all or none of the TLS properties must be set (present: %s; missing: %s)",
		ErrInconsistentTLS, strings.Join(e.Present, ", "), strings.Join(e.Missing, ", "))
}

func (e *InconsistentTLSError) Unwrap() error {
	return ErrInconsistentTLS
}
