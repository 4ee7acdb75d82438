package sitecapture

import (
	"errors"
	"fmt"
)

// Kind classifies a capture failure.
type Kind int

const (
	// KindInvalidInput means the source URL or a job setting is malformed.
	KindInvalidInput Kind = iota + 1
	// KindInvalidOutput means the output path cannot be written.
	KindInvalidOutput
	// KindLoad means the engine failed to start, fetch or render the page.
	KindLoad
	// KindExport means encoding or writing the output failed.
	KindExport
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindInvalidOutput:
		return "invalid output"
	case KindLoad:
		return "load"
	case KindExport:
		return "export"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel errors returned by the library. The kind sentinels match any
// [*Error] of the same kind under [errors.Is].
var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrInvalidOutput = &Error{Kind: KindInvalidOutput}
	ErrLoad          = &Error{Kind: KindLoad}
	ErrExport        = &Error{Kind: KindExport}

	// ErrAlreadyStarted is returned when configuring or starting an
	// [Orchestrator] that has already been started.
	ErrAlreadyStarted = errors.New("sitecapture: capture already started")

	// ErrClosed is returned when using an [Engine] after Close.
	ErrClosed = errors.New("sitecapture: engine is closed")
)

// Error is the structured failure delivered to observers and returned by
// [Capture].
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "load" or "write"
	Err  error
}

func (e *Error) Error() string {
	msg := "sitecapture: " + e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first [*Error] in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
