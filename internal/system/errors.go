package system

import "errors"

var (
	// ErrSourceUnavailable marks a counter source that cannot be read at all
	// (device missing, mapping refused, proc file absent). Callers fall back
	// or skip the metric family; it is never fatal.
	ErrSourceUnavailable = errors.New("counter source unavailable")
	// ErrMalformedRecord marks a record or text line that does not have the
	// expected shape. Only the affected metric is skipped.
	ErrMalformedRecord = errors.New("malformed counter record")
)
