// Package pdu implements per-function-code Protocol Data Unit build and
// parse operations with exhaustive bounds and semantic validation, per
// spec.md §4.1.
package pdu

import "fmt"

// Kind distinguishes caller misuse from on-wire protocol violations, per
// spec.md §4.1 "Failure taxonomy".
type Kind int

const (
	// InvalidArgument means the caller passed a bad argument: a nil/too
	// small buffer, an out-of-range quantity before any wire bytes were
	// produced.
	InvalidArgument Kind = iota
	// Malformed means the on-wire bytes violate the spec: a byte-count
	// field that disagrees with the payload, trailing bytes, an
	// out-of-domain exception code.
	Malformed
)

func (k Kind) String() string {
	if k == InvalidArgument {
		return "invalid argument"
	}
	return "malformed"
}

// Error reports a PDU codec failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pdu: %s: %s", e.Kind, e.Msg)
}

func errInvalid(format string, args ...any) error {
	return &Error{Kind: InvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func errMalformed(format string, args ...any) error {
	return &Error{Kind: Malformed, Msg: fmt.Sprintf(format, args...)}
}
