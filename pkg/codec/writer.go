package codec

import (
	"encoding/binary"
	"io"

	"github.com/go-pvaccess/pva/pkg/buffer"

	pva "github.com/go-pvaccess/pva"
)

// Writer is the send-side half of the framing codec. It owns a single
// fixed-capacity send buffer; only the transport's send worker goroutine
// touches a given Writer, so it needs no internal locking.
type Writer struct {
	buf        *buffer.Buffer
	conn       io.Writer
	fromServer bool

	lastMessageStartPosition int
	pendingCommand           byte
	segmenting               bool
}

// NewWriter wraps conn with a send buffer of the given capacity.
// fromServer stamps every header's FROM_SERVER bit, matching which side of
// the connection this Writer serializes for.
func NewWriter(conn io.Writer, capacity int, fromServer bool) *Writer {
	return &Writer{
		buf:        buffer.New(capacity),
		conn:       conn,
		fromServer: fromServer,
	}
}

func (w *Writer) order() binary.ByteOrder {
	if w.buf.BigEndian() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// SetBigEndian switches the byte order used for every subsequent header and
// scalar this Writer serializes.
func (w *Writer) SetBigEndian(v bool) { w.buf.SetBigEndian(v) }

// Remaining reports how many bytes of the send buffer are still free.
func (w *Writer) Remaining() int { return w.buf.Remaining() }

func (w *Writer) openHeader(command byte, continuation bool) error {
	if err := w.buf.EnsureCapacity(pva.HeaderSize); err != nil {
		return err
	}
	w.lastMessageStartPosition = w.buf.Position()
	flags := byte(0)
	if w.fromServer {
		flags |= pva.FlagFromServer
	}
	if w.buf.BigEndian() {
		flags |= pva.FlagBigEndian
	}
	if continuation {
		flags |= pva.FlagNotFirst
	}
	if err := w.buf.PutByte(pva.Magic); err != nil {
		return err
	}
	if err := w.buf.PutByte(pva.DefaultProtocolVersion); err != nil {
		return err
	}
	if err := w.buf.PutByte(flags); err != nil {
		return err
	}
	if err := w.buf.PutByte(command); err != nil {
		return err
	}
	return w.buf.PutUint32(0)
}

// StartMessage opens a new logical application message. Automatic
// continuation across buffer-full flushes is handled by EnsureBuffer and is
// invisible to the caller.
func (w *Writer) StartMessage(command byte) error {
	w.pendingCommand = command
	w.segmenting = false
	return w.openHeader(command, false)
}

// closeSegment back-patches the payload-size field of the segment currently
// open at lastMessageStartPosition, and sets the FIRST flag when hasMore is
// true. Combined with the NOT_FIRST bit an in-progress continuation already
// carries, this naturally produces the first/middle/last flag combinations
// spec.md section 3 describes.
func (w *Writer) closeSegment(hasMore bool) error {
	payloadSize := uint32(w.buf.Position() - (w.lastMessageStartPosition + pva.HeaderSize))
	data := w.buf.Bytes()
	if hasMore {
		data[w.lastMessageStartPosition+2] |= pva.FlagFirstSegment
	}
	w.order().PutUint32(data[w.lastMessageStartPosition+4:], payloadSize)
	return nil
}

// EnsureBuffer guarantees n bytes of room in the send buffer before the
// caller writes them. When the buffer is too small it closes the current
// segment as non-final, flushes it to the socket, and transparently opens a
// continuation segment with the same command — the implicit mid-message
// split described in spec.md section 4.B.
func (w *Writer) EnsureBuffer(n int) error {
	if n > w.buf.Capacity()-pva.HeaderSize {
		return pva.ErrIllegalArgument
	}
	if w.buf.Remaining() >= n {
		return nil
	}
	if err := w.closeSegment(true); err != nil {
		return err
	}
	if err := w.Flush(false); err != nil {
		return err
	}
	w.segmenting = true
	return w.openHeader(w.pendingCommand, true)
}

// AlignBuffer pads the send buffer to the next multiple of n, ensuring room
// first.
func (w *Writer) AlignBuffer(n int) error {
	if n <= 1 {
		return nil
	}
	if err := w.EnsureBuffer(n); err != nil {
		return err
	}
	return w.buf.Align(n, true)
}

// EndMessage finalizes the current logical message. hasMoreSegments forces
// an explicit segment boundary for callers (e.g. a streaming PUT) that know
// more data is coming on a later call.
func (w *Writer) EndMessage(hasMoreSegments bool) error {
	if err := w.closeSegment(hasMoreSegments); err != nil {
		return err
	}
	if !hasMoreSegments {
		w.segmenting = false
	}
	return nil
}

// Flush writes the buffered bytes to the socket and resets the buffer.
// lastMessageCompleted is informational only; callers that are mid-segment
// still get a clean buffer back and reopen their own continuation header.
func (w *Writer) Flush(lastMessageCompleted bool) error {
	n := w.buf.Position()
	if n == 0 {
		return nil
	}
	if _, err := w.conn.Write(w.buf.Bytes()[:n]); err != nil {
		return err
	}
	w.buf.Clear()
	_ = lastMessageCompleted
	return nil
}

// DirectSerialize bypasses the send buffer for a large payload that is not
// worth copying: it closes the current segment, flushes a dedicated header
// whose payload size equals len(src), writes src straight to the socket,
// then reopens a continuation segment so buffered writes can resume.
func (w *Writer) DirectSerialize(src []byte) error {
	if err := w.closeSegment(true); err != nil {
		return err
	}
	if err := w.Flush(false); err != nil {
		return err
	}
	w.segmenting = true
	if err := w.openHeader(w.pendingCommand, true); err != nil {
		return err
	}
	data := w.buf.Bytes()
	w.order().PutUint32(data[w.lastMessageStartPosition+4:], uint32(len(src)))
	if err := w.Flush(false); err != nil {
		return err
	}
	if _, err := w.conn.Write(src); err != nil {
		return err
	}
	return w.openHeader(w.pendingCommand, true)
}

// PutControlMessage writes a complete 8-byte control frame directly;
// control messages are never segmented.
func (w *Writer) PutControlMessage(code byte, data uint32) error {
	if w.buf.Remaining() < pva.HeaderSize {
		if err := w.Flush(false); err != nil {
			return err
		}
	}
	flags := pva.FlagControl
	if w.fromServer {
		flags |= pva.FlagFromServer
	}
	if w.buf.BigEndian() {
		flags |= pva.FlagBigEndian
	}
	if err := w.buf.PutByte(pva.Magic); err != nil {
		return err
	}
	if err := w.buf.PutByte(pva.DefaultProtocolVersion); err != nil {
		return err
	}
	if err := w.buf.PutByte(flags); err != nil {
		return err
	}
	if err := w.buf.PutByte(code); err != nil {
		return err
	}
	return w.buf.PutUint32(data)
}

// SendSetEndianess tells the peer which byte order to use when decoding
// every message this Writer sends from now on, and switches this Writer's
// own send buffer to match. It does not affect how this side interprets
// messages coming from the peer (spec.md section 3, scenario 6).
func (w *Writer) SendSetEndianess(bigEndian bool) error {
	if err := w.PutControlMessage(pva.CtrlSetEndianess, 0); err != nil {
		return err
	}
	// PutControlMessage above stamped the flags byte with the buffer's
	// *current* endian mode; patch it to the target mode before switching.
	flagsPos := w.buf.Position() - pva.HeaderSize + 2
	if bigEndian {
		w.buf.Bytes()[flagsPos] |= pva.FlagBigEndian
	} else {
		w.buf.Bytes()[flagsPos] &^= pva.FlagBigEndian
	}
	w.buf.SetBigEndian(bigEndian)
	return nil
}

func (w *Writer) PutByte(v byte) error {
	if err := w.EnsureBuffer(1); err != nil {
		return err
	}
	return w.buf.PutByte(v)
}

func (w *Writer) PutUint16(v uint16) error {
	if err := w.EnsureBuffer(2); err != nil {
		return err
	}
	return w.buf.PutUint16(v)
}

func (w *Writer) PutUint32(v uint32) error {
	if err := w.EnsureBuffer(4); err != nil {
		return err
	}
	return w.buf.PutUint32(v)
}

func (w *Writer) PutUint64(v uint64) error {
	if err := w.EnsureBuffer(8); err != nil {
		return err
	}
	return w.buf.PutUint64(v)
}

func (w *Writer) PutInt32(v int32) error { return w.PutUint32(uint32(v)) }

func (w *Writer) PutFloat64(v float64) error {
	if err := w.EnsureBuffer(8); err != nil {
		return err
	}
	return w.buf.PutFloat64(v)
}

func (w *Writer) PutBytes(src []byte) error {
	if err := w.EnsureBuffer(len(src)); err != nil {
		return err
	}
	return w.buf.PutBytes(src)
}
