// Package hwlocerr implements the error taxonomy shared by every
// component of the topology core: bitmap, object, topology,
// discovery, cpukinds, distances, memattrs, binding, and distrib all
// return errors built with this package instead of ad hoc
// fmt.Errorf/errors.New values, so a caller can classify a failure
// with a single switch over Kind regardless of which package raised
// it.
package hwlocerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure the way spec §7 does.
type Kind int

const (
	// KindInvalidArgument marks malformed input: an empty cpuset where
	// one is required, an unknown type, an unknown flag bit.
	KindInvalidArgument Kind = iota
	// KindNotFound marks a lookup for a named object/attribute/kind
	// that does not exist.
	KindNotFound
	// KindUnsupported marks an operation not implemented on this
	// platform or by this topology's registered backends.
	KindUnsupported
	// KindDenied marks an OS refusal of a binding request.
	KindDenied
	// KindBusy marks a mutation attempted while the topology is being
	// iterated in a way that forbids it.
	KindBusy
	// KindNoMem marks an allocation failure.
	KindNoMem
	// KindPartial marks an operation that completed, but not exactly
	// as requested (a restrict that dropped a less-preferred object; a
	// binding that landed on a superset of the requested set because
	// Strict was not requested).
	KindPartial
	// KindBackendFailure marks a discovery backend returning an error;
	// recovered by skipping that backend and never surfaced to the
	// caller unless every backend in a phase failed.
	KindBackendFailure
	// KindEXDEV marks a cpukinds query whose cpuset straddles more
	// than one registered kind (hwloc's EXDEV).
	KindEXDEV
)

var kindNames = map[Kind]string{
	KindInvalidArgument: "invalid argument",
	KindNotFound:        "not found",
	KindUnsupported:     "unsupported",
	KindDenied:          "denied",
	KindBusy:            "busy",
	KindNoMem:           "no memory",
	KindPartial:         "partial",
	KindBackendFailure:  "backend failure",
	KindEXDEV:           "crosses kind boundary",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown error kind"
}

// Error is a taxonomy-tagged error with an optional wrapped cause.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

// New creates an Error with the given kind and a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given kind, wrapping cause for
// unwrapping and %+v stack traces via github.com/pkg/errors.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:  kind,
		msg:   fmt.Sprintf(format, args...),
		cause: errors.Wrap(cause, fmt.Sprintf(format, args...)),
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
