package volume

import "github.com/pkg/errors"

// Kind classifies why an operation failed. Every exported Manager method
// either succeeds or fails with exactly one Kind.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindNotFound
	KindAlreadyExists
	KindNoSpace
	KindCorrupt
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNoSpace:
		return "NoSpace"
	case KindCorrupt:
		return "Corrupt"
	case KindIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by Manager methods.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.msg }

func newErr(k Kind, msg string) error {
	return &Error{Kind: k, msg: msg}
}

func newErrf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, msg: errors.Errorf(format, args...).Error()}
}

// Is lets errors.Is(err, ErrNotFound) style checks work against Kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, msg: "invalid argument"}
	ErrNotFound        = &Error{Kind: KindNotFound, msg: "not found"}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists, msg: "already exists"}
	ErrNoSpace         = &Error{Kind: KindNoSpace, msg: "no space"}
	ErrCorrupt         = &Error{Kind: KindCorrupt, msg: "corrupt"}
	ErrIO              = &Error{Kind: KindIO, msg: "io error"}
)

// wrapIO tags an underlying I/O failure with KindIO. The message carries the
// context and the underlying error's text; the original error value itself
// is not retained, so it cannot be unwrapped.
func wrapIO(err error, context string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, msg: errors.Wrap(err, context).Error()}
}
