package rcon

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of an exchange.
type ErrorKind int

const (
	// KindConnection covers opening the stream, writing the request and
	// reading the fixed header fields.
	KindConnection ErrorKind = iota + 1
	// KindDecode covers a reply body that is not valid UTF-8 or whose
	// declared length is unusable.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindDecode:
		return "decode error"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is checks against *Error values.
var (
	ErrConnection = errors.New("rcon: connection error")
	ErrDecode     = errors.New("rcon: decode error")
)

// Error is returned by every failing Client operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rcon: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrConnection and ErrDecode by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

func connectionError(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

func decodeError(op string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

// IsConnectionError reports whether err is a connection error.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsDecodeError reports whether err is a decode error.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}
