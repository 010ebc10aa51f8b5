package wire

import "fmt"

// ErrCode classifies a request outcome in a reply.
type ErrCode uint32

const (
	ErrNone ErrCode = iota
	ErrGeneric
	ErrNotFound
	ErrAlreadyBound
	ErrInvalidArgs
	ErrNoResources
	ErrNotSupported
	ErrIO
)

// String implements fmt.Stringer.
func (c ErrCode) String() string {
	switch c {
	case ErrNone:
		return "ok"
	case ErrGeneric:
		return "generic"
	case ErrNotFound:
		return "not found"
	case ErrAlreadyBound:
		return "already bound"
	case ErrInvalidArgs:
		return "invalid arguments"
	case ErrNoResources:
		return "no resources"
	case ErrNotSupported:
		return "not supported"
	case ErrIO:
		return "io"
	}
	return "unknown"
}

// Status reports a request outcome. The zero value means success.
type Status struct {
	Code    ErrCode `cbor:"1,keyasint"`
	Message string  `cbor:"2,keyasint,omitempty"`
}

// Ok reports whether the status is a success.
func (s Status) Ok() bool { return s.Code == ErrNone }

// String implements fmt.Stringer.
func (s Status) String() string {
	if s.Ok() {
		return "ok"
	}
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// OkStatus returns a success status.
func OkStatus() Status { return Status{} }

// NewStatus builds a failure status with a formatted message.
func NewStatus(code ErrCode, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}
