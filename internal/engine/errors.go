package engine

import "github.com/pkg/errors"

// Error categories. Every error the engine originates wraps exactly one
// of these; callers test with errors.Is.
var (
	// ErrConfig marks unusable configuration: malformed URIs, an open-file
	// limit too low, an unsupported on-disk version. Raised synchronously
	// on Open; the store is not left partially initialized.
	ErrConfig = errors.New("configuration error")

	// ErrState marks operations invalid in the store's current state:
	// double-open, use after close, layered writes without frames,
	// deleting a non-leaf frame. The store remains usable.
	ErrState = errors.New("invalid state")

	// ErrInternal marks inconsistencies that indicate a bug or on-disk
	// corruption: a referenced sid with no atom record, a sid missing
	// from a list that must contain it, a malformed frame encoding.
	ErrInternal = errors.New("internal inconsistency")
)

func configErrf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

func stateErrf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrState, format, args...)
}

func internalErrf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInternal, format, args...)
}

// internalErr attaches a cause to an internal-category error.
func internalErr(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(errors.WithMessage(ErrInternal, cause.Error()), format, args...)
}
