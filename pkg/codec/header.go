// Package codec implements the framing layer described in spec.md section
// 4.B: the 8-byte message header, control messages, and the NORMAL /
// SEGMENTED / SPLIT read states that let a logical application message span
// more than one framed wire message. It is grounded on virtual.go's
// serializeFrame/deserializeFrame length-prefixed framing and on the
// segmented-transfer state machines in pkg/sdo/download_segmented.go and
// upload_segmented.go.
package codec

import pva "github.com/go-pvaccess/pva"

// Header is the decoded form of the 8-byte wire header.
type Header struct {
	Version     byte
	Flags       byte
	Command     byte
	PayloadSize uint32
}

func (h Header) isControl() bool    { return h.Flags&pva.FlagControl != 0 }
func (h Header) isFirstSeg() bool   { return h.Flags&pva.FlagFirstSegment != 0 }
func (h Header) isNotFirst() bool   { return h.Flags&pva.FlagNotFirst != 0 }
func (h Header) fromServer() bool   { return h.Flags&pva.FlagFromServer != 0 }
func (h Header) bigEndian() bool    { return h.Flags&pva.FlagBigEndian != 0 }

// Middle reports whether this header marks a middle segment of a segmented
// application message: both FIRST and NOT_FIRST set (spec.md section 3,
// "A first+last segment combination denotes a middle segment").
func (h Header) Middle() bool { return h.isFirstSeg() && h.isNotFirst() }

// Last reports whether this header is the final segment of a segmented
// message (NOT_FIRST set, FIRST clear).
func (h Header) Last() bool { return !h.isFirstSeg() && h.isNotFirst() }

// First reports whether this header opens a segmented message (FIRST set,
// NOT_FIRST clear).
func (h Header) First() bool { return h.isFirstSeg() && !h.isNotFirst() }

// ReadState names the three states of the receive-side state machine
// (spec.md section 4.B).
type ReadState int

const (
	StateNormal ReadState = iota
	StateSegmented
	StateSplit
)

func (s ReadState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateSegmented:
		return "SEGMENTED"
	case StateSplit:
		return "SPLIT"
	default:
		return "UNKNOWN"
	}
}
