package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed capture by the stage that caused it.
type Kind int

const (
	KindUnexpected Kind = iota
	KindLaunch
	KindNavigationTimeout
	KindReadinessTimeout
	KindCapture
	KindOutputValidation
)

func (k Kind) String() string {
	switch k {
	case KindLaunch:
		return "LaunchError"
	case KindNavigationTimeout:
		return "NavigationTimeoutError"
	case KindReadinessTimeout:
		return "ReadinessTimeoutError"
	case KindCapture:
		return "CaptureError"
	case KindOutputValidation:
		return "OutputValidationError"
	default:
		return "UnexpectedError"
	}
}

// Stage names a step of a capture run.
type Stage string

const (
	StagePreflight Stage = "validate request"
	StageAcquire   Stage = "acquire session"
	StageConfigure Stage = "configure context"
	StageNavigate  Stage = "navigate"
	StageReadiness Stage = "await readiness"
	StageSettle    Stage = "settle"
	StageCapture   Stage = "capture"
	StageValidate  Stage = "validate output"
	StageUnknown   Stage = "capture run"
)

// Error is the failure of a capture run.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (%s)", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// KindOf returns the Kind of err, or KindUnexpected when err is not a capture error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnexpected
}

// ErrElementNotFound is returned by sessions when a selector matches nothing.
var ErrElementNotFound = errors.New("element not found")

func newError(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// IsDNSError reports whether err comes from an unresolvable host.
func IsDNSError(err error) bool {
	if err == nil {
		return false
	}

	msg := FullErrorMessage(err)
	return strings.Contains(msg, "net::ERR_NAME_NOT_RESOLVED") ||
		strings.Contains(msg, "no such host")
}

// IsTimeoutError reports whether err is a deadline expiry.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := FullErrorMessage(err)
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout")
}

// FullErrorMessage joins the messages of the whole error chain.
func FullErrorMessage(err error) string {
	var sb strings.Builder
	for err != nil {
		sb.WriteString(err.Error())
		err = errors.Unwrap(err)
		if err != nil {
			sb.WriteString(" | ")
		}
	}
	return sb.String()
}

// RootCause returns the message of the innermost error in the chain.
func RootCause(err error) string {
	if err == nil {
		return "unknown error"
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return root.Error()
}
