package txnlog

import (
	"errors"
	"fmt"
	"io/fs"
)

// DatadirError reports a failure preparing a data or log directory.
type DatadirError struct {
	Path string
	Err  error
}

func (e *DatadirError) Error() string {
	return fmt.Sprintf("failed to prepare directory %s: %v", e.Path, e.Err)
}

func (e *DatadirError) Unwrap() error {
	return e.Err
}

// IsDatadirRace reports whether err is a directory that appeared between the
// existence check and its creation. Retrying Open resolves it.
func IsDatadirRace(err error) bool {
	var derr *DatadirError
	return errors.As(err, &derr) && errors.Is(derr.Err, fs.ErrExist)
}
