// Package apperr defines the cache error taxonomy.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference means a user reference could not be resolved
	// to a video identifier. Recoverable by prompting again.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrUnresolvableID means a record could not be assigned a stable
	// identifier from either its stated id or its embedded URL.
	ErrUnresolvableID = errors.New("unresolvable identifier")

	// ErrInvalidArgument flags caller mistakes such as a negative
	// retention count.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCorruptRecord means an on-disk record exists but cannot be
	// decoded. The file is left in place for inspection.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrProvider wraps any failure from the external metadata source.
	ErrProvider = errors.New("provider failure")
)

// CorruptRecordError carries the path of an unreadable record file.
type CorruptRecordError struct {
	Path string
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record %s: %v", e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorruptRecord) match.
func (e *CorruptRecordError) Is(target error) bool { return target == ErrCorruptRecord }

// ProviderError wraps a metadata-provider failure for one reference.
type ProviderError struct {
	Reference string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failure for %q: %v", e.Reference, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) match.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
