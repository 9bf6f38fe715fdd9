// Package pva implements the client and server sides of a channel-oriented
// network protocol for publishing, reading, writing, monitoring and
// RPC-invoking strongly typed structured values identified by string names.
package pva

import "errors"

var (
	ErrIllegalArgument   = errors.New("error in function arguments")
	ErrInvalidDataStream = errors.New("invalid data stream")
	ErrBufferOverflow    = errors.New("buffer overflow")
	ErrBufferUnderflow   = errors.New("buffer underflow")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTimeout           = errors.New("timeout")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotOpen           = errors.New("shared PV is not open")
	ErrAlreadyOpen       = errors.New("shared PV is already open")
	ErrUnsupported       = errors.New("operation not supported")
	ErrCanceled          = errors.New("operation canceled")
)
