package eventstream

import (
	"fmt"

	"github.com/pkg/errors"
)

// Host error categories. Host shims wrap these so the adapter can classify failures with errors.Is.
var (
	ErrSecurity      = errors.New("security error")
	ErrSyntax        = errors.New("syntax error")
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidAccess = errors.New("invalid access")
	ErrNotSupported  = errors.New("operation not supported")
)

var (
	ErrCanceled         = errors.New("task canceled")
	ErrClosedBeforeOpen = errors.New("connection closed before it opened")
	ErrHostPanic        = errors.New("host connection panicked")
)

type OpenErrorKind byte

const (
	// OpenBadSecurity means the environment refused the connection for policy reasons.
	OpenBadSecurity OpenErrorKind = iota + 1
	// OpenBadArgs means the url or options were rejected.
	OpenBadArgs
)

func (k OpenErrorKind) String() string {
	switch k {
	case OpenBadSecurity:
		return "BadSecurity"
	case OpenBadArgs:
		return "BadArgs"
	default:
		return "Unknown"
	}
}

// OpenError is the failure of an Open task when the host could not construct the connection.
type OpenError struct {
	Kind    OpenErrorKind
	Message string
	err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open failed (%s): %s", e.Kind, e.Message)
}

func (e *OpenError) Unwrap() error { return e.err }

func newOpenError(err error) *OpenError {
	kind := OpenBadArgs
	if errors.Is(err, ErrSecurity) {
		kind = OpenBadSecurity
	}
	return &OpenError{Kind: kind, Message: err.Error(), err: err}
}

type CloseErrorKind byte

const (
	// CloseBadCode means the close status code is outside the permitted range.
	CloseBadCode CloseErrorKind = iota + 1
	// CloseBadReason means the close reason is too long or malformed.
	CloseBadReason
)

func (k CloseErrorKind) String() string {
	switch k {
	case CloseBadCode:
		return "BadCode"
	case CloseBadReason:
		return "BadReason"
	default:
		return "Unknown"
	}
}

// CloseError is the failure of a Close task when the host rejected the close call.
type CloseError struct {
	Kind CloseErrorKind
	err  error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close failed (%s): %s", e.Kind, e.err)
}

func (e *CloseError) Unwrap() error { return e.err }

func newCloseError(err error) *CloseError {
	kind := CloseBadCode
	if errors.Is(err, ErrSyntax) {
		kind = CloseBadReason
	}
	return &CloseError{Kind: kind, err: err}
}

type SendErrorKind byte

const (
	// SendNotOpen means the connection was not open when the send was attempted.
	SendNotOpen SendErrorKind = iota + 1
	// SendBadString means the host refused the payload.
	SendBadString
)

func (k SendErrorKind) String() string {
	switch k {
	case SendNotOpen:
		return "NotOpen"
	case SendBadString:
		return "BadString"
	default:
		return "Unknown"
	}
}

// SendError is the value carried by a Send task when the send did not go through.
// It is reported as a value, never as the task's failure.
type SendError struct {
	Kind SendErrorKind
	err  error
}

func (e *SendError) Error() string {
	if e.err == nil {
		return "send failed: " + e.Kind.String()
	}
	return fmt.Sprintf("send failed (%s): %s", e.Kind, e.err)
}

func (e *SendError) Unwrap() error { return e.err }

// guardHost runs a call into the host and turns a panic into an ErrHostPanic error.
func guardHost(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrHostPanic, "%v", r)
		}
	}()
	return fn()
}
