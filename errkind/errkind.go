// Package errkind defines the error taxonomy shared by every component.
//
// Kinds are sentinel errors attached with errors.Mark, so call sites keep
// their own wrapped causes while consumers classify with errors.Is:
//
//	if errors.Is(err, errkind.ResourceLimit) { ... }
package errkind

import "github.com/cockroachdb/errors"

var (
	// InvalidArgument means the caller violated a precondition.
	InvalidArgument = errors.New("invalid argument")
	// Crypto covers signature, MAC, AEAD and key verification failures.
	Crypto = errors.New("crypto failure")
	// Protocol covers malformed frames, unknown messages and schema violations.
	Protocol = errors.New("protocol violation")
	// ResourceLimit covers size, rate and count cap violations.
	ResourceLimit = errors.New("resource limit exceeded")
	// Transport covers connection, TLS, DNS and timeout failures.
	Transport = errors.New("transport failure")
	// Cancelled means the subscription or channel closed while an operation was pending.
	Cancelled = errors.New("cancelled")
	// Internal marks invariant violations; should be unreachable.
	Internal = errors.New("internal invariant violation")
)

// Wrap marks err with the given kind and a message.
func Wrap(err error, kind error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), kind)
}

// New creates a fresh error of the given kind.
func New(kind error, msg string) error {
	return errors.Mark(errors.New(msg), kind)
}

// Newf creates a fresh formatted error of the given kind.
func Newf(kind error, format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), kind)
}
