package gpmf

import "fmt"

// Kind classifies a parse or query failure. It mirrors GPMF_LIB_ERROR from
// the original implementation, collapsed into a single Go error kind
// queried with errors.As instead of a C-style status enum.
type Kind int

const (
	// KindMemory covers allocation failures and invalid query indices.
	KindMemory Kind = iota + 1
	// KindBadStructure means a KLV header was malformed beyond what the
	// tolerant flag allows.
	KindBadStructure
	// KindBufferEnd means the walker reached the end of a payload.
	KindBufferEnd
	// KindFind means the requested key is not present at this level.
	KindFind
	// KindTypeNotSupported means an unknown type tag was encountered.
	KindTypeNotSupported
	// KindScaleNotSupported means a SCAL descriptor is invalid for the
	// target numeric type.
	KindScaleNotSupported
	// KindScaleCount means a SCAL descriptor's element count does not
	// broadcast or match the struct's element count.
	KindScaleCount
	// KindNotImplemented covers writer operations that are stubs.
	KindNotImplemented
	// KindNotValidForType means the operation doesn't apply to this
	// provider variant (e.g. video frame rate on a raw buffer).
	KindNotValidForType
	// KindFileOpenFailed means a provider failed to open its source.
	KindFileOpenFailed
	// KindTimeRangeNotFound means a time-range iterator is exhausted.
	KindTimeRangeNotFound
	// KindTypeNotFound means no samples matched a key during a parse pass.
	KindTypeNotFound
)

func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindBadStructure:
		return "bad structure"
	case KindBufferEnd:
		return "buffer end"
	case KindFind:
		return "not found"
	case KindTypeNotSupported:
		return "type not supported"
	case KindScaleNotSupported:
		return "scale not supported"
	case KindScaleCount:
		return "scale count mismatch"
	case KindNotImplemented:
		return "not implemented"
	case KindNotValidForType:
		return "not valid for type"
	case KindFileOpenFailed:
		return "file open failed"
	case KindTimeRangeNotFound:
		return "time range not found"
	case KindTypeNotFound:
		return "type not found"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every parser (L1), provider (L2)
// and timeline (L3) operation that can fail; the stabilize package
// reports its outcomes as a Status instead. Failures are returned as
// values; the only panics are Reader.Enter and Reader.Exit misuse, as
// documented on those methods.
type Error struct {
	Kind Kind
	Key  FourCC
	msg  string
}

func (e *Error) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("gpmf: %s: %s", e.Kind, e.msg)
	}
	if e.Key != (FourCC{}) {
		return fmt.Sprintf("gpmf: %s: %s", e.Kind, e.Key)
	}
	return fmt.Sprintf("gpmf: %s", e.Kind)
}

func errKind(k Kind) error {
	return &Error{Kind: k}
}

func errKeyf(k Kind, key FourCC) error {
	return &Error{Kind: k, Key: key}
}

func errMsg(k Kind, msg string) error {
	return &Error{Kind: k, msg: msg}
}

// NewError builds an Error of the given Kind with a free-form message,
// for use by Provider implementations outside this package (e.g.
// gpmf/provider) that need to report KindFileOpenFailed or similar
// without constructing the unexported msg field directly.
func NewError(k Kind, msg string) error {
	return errMsg(k, msg)
}
