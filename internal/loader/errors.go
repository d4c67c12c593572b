package loader

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat means no loader is registered for the file. Terminal;
// the orchestrator fails the document without retry.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ExtractionError wraps a content-level failure (corrupt or unreadable
// file). Terminal for the file, not retried.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsTerminal reports whether the error is a content-level failure that
// retrying cannot fix.
func IsTerminal(err error) bool {
	var ee *ExtractionError
	return errors.Is(err, ErrUnsupportedFormat) || errors.As(err, &ee)
}
