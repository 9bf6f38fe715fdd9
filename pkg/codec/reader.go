package codec

import (
	"encoding/binary"
	"io"

	"github.com/go-pvaccess/pva/pkg/buffer"

	pva "github.com/go-pvaccess/pva"
)

// Reader is the receive-side half of the framing codec. It owns a single
// fixed-capacity receive buffer and the socket it reads from; only the
// transport's receive worker goroutine touches a given Reader.
type Reader struct {
	buf  *buffer.Buffer
	conn io.Reader

	// filled is how many bytes starting at offset 0 hold data actually
	// read off the socket; buf.Position() is the read cursor within
	// [0, filled). This is tracked separately from buf.Limit(), which
	// this package leaves untouched, because a SPLIT refill can leave
	// filled short of a message's declared payload size.
	filled int

	state                ReadState
	storedPosition       int
	storedPayloadSize    uint32
	lastSegmentedCommand byte
}

// NewReader wraps conn with a receive buffer of the given capacity.
func NewReader(conn io.Reader, capacity int) *Reader {
	return &Reader{
		buf:  buffer.New(capacity),
		conn: conn,
	}
}

func (r *Reader) order() binary.ByteOrder {
	if r.buf.BigEndian() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// fill is the SPLIT mechanism: it guarantees n bytes are physically present
// starting at the read cursor, compacting the unread region toward the
// reserved pre-prefix (spec.md section 4.B, "Buffer aliasing") when there is
// not enough room left to read more off the socket.
func (r *Reader) fill(n int) error {
	for r.filled-r.buf.Position() < n {
		room := r.buf.Capacity() - r.filled
		if room < n-(r.filled-r.buf.Position()) {
			oldPos := r.buf.Position()
			r.buf.SetLimit(r.filled)
			moved := r.buf.Compact(oldPos, pva.MaxEnsureSize)
			r.buf.SetLimit(r.buf.Capacity())
			delta := pva.MaxEnsureSize - oldPos
			r.storedPosition += delta
			r.filled = pva.MaxEnsureSize + moved
		}
		nRead, err := r.conn.Read(r.buf.Bytes()[r.filled:r.buf.Capacity()])
		if nRead > 0 {
			r.filled += nRead
		}
		if err != nil {
			return err
		}
		if nRead == 0 {
			return pva.ErrConnectionClosed
		}
	}
	return nil
}

func (r *Reader) readHeader() (Header, error) {
	if err := r.fill(pva.HeaderSize); err != nil {
		return Header{}, err
	}
	pos := r.buf.Position()
	data := r.buf.Bytes()
	if data[pos] != pva.Magic {
		return Header{}, pva.ErrInvalidDataStream
	}
	version := data[pos+1]
	flags := data[pos+2]
	command := data[pos+3]
	r.buf.SetBigEndian(flags&pva.FlagBigEndian != 0)
	payloadSize := r.order().Uint32(data[pos+4 : pos+8])
	r.buf.SetPosition(pos + pva.HeaderSize)
	if command >= pva.NumCommands {
		return Header{}, pva.ErrProtocolViolation
	}
	return Header{Version: version, Flags: flags, Command: command, PayloadSize: payloadSize}, nil
}

func (r *Reader) handleControl(h Header) error {
	switch h.Command {
	case pva.CtrlSetEndianess:
		r.buf.SetBigEndian(h.bigEndian())
	case pva.CtrlMarker, pva.CtrlAckMarker:
		// The marker count travels in the header's payload-size field, which
		// readHeader has already consumed; it is advisory flow-control
		// bookkeeping (spec.md section 4.B, Open question) and is ignored.
	}
	return nil
}

// Next reads wire messages — transparently handling control messages and
// tolerated zero-payload stray continuation segments — until it finds the
// start of a real application message, and returns its header. The caller
// must eventually call Finish before the next call to Next.
func (r *Reader) Next() (Header, error) {
	for {
		h, err := r.readHeader()
		if err != nil {
			return Header{}, err
		}
		if h.isControl() {
			if err := r.handleControl(h); err != nil {
				return Header{}, err
			}
			continue
		}
		if h.isNotFirst() {
			// A non-first segment arriving while we are not mid-message
			// is only tolerated when it carries no payload (spec.md
			// section 3); otherwise it is a stray continuation.
			if h.PayloadSize != 0 {
				return Header{}, pva.ErrProtocolViolation
			}
			continue
		}
		r.state = StateNormal
		r.storedPosition = r.buf.Position()
		r.storedPayloadSize = h.PayloadSize
		r.lastSegmentedCommand = h.Command
		return h, nil
	}
}

// nextSegment advances past the current wire message's boundary to find the
// next segment of the same logical application message — the SEGMENTED
// read state (spec.md section 4.B). leftover is how many bytes of the
// exhausted segment the caller has not yet consumed; since the new
// segment's header sits physically between them in the byte stream,
// nextSegment splices the header out so the leftover bytes and the new
// segment's payload become contiguous again. (Compaction racing a splice
// in the same call is not handled; buffer capacity is chosen well above
// MaxEnsureSize so this does not arise in practice.)
func (r *Reader) nextSegment(leftover int) error {
	r.state = StateSegmented
	leftoverStart := r.buf.Position()
	r.buf.SetPosition(leftoverStart + leftover)
	for {
		h, err := r.readHeader()
		if err != nil {
			return err
		}
		if h.isControl() {
			if err := r.handleControl(h); err != nil {
				return err
			}
			continue
		}
		if !h.isNotFirst() || h.Command != r.lastSegmentedCommand {
			return pva.ErrProtocolViolation
		}
		payloadStart := r.buf.Position()
		if leftover > 0 {
			if err := r.fill(int(h.PayloadSize)); err != nil {
				return err
			}
			gap := payloadStart - (leftoverStart + leftover)
			copy(r.buf.Bytes()[leftoverStart+leftover:r.filled-gap], r.buf.Bytes()[payloadStart:r.filled])
			r.filled -= gap
			r.storedPosition = leftoverStart
		} else {
			r.storedPosition = payloadStart
		}
		r.buf.SetPosition(r.storedPosition)
		r.storedPayloadSize = uint32(leftover) + h.PayloadSize
		return nil
	}
}

// EnsureData guarantees n bytes of the logical application payload are
// available to read, crossing into the SEGMENTED state (next wire message,
// same command) or the SPLIT state (more socket bytes for this wire
// message) as needed. This is the one-stop routine every scalar accessor
// below calls first.
func (r *Reader) EnsureData(n int) error {
	if n > pva.MaxEnsureDataSize {
		return pva.ErrInvalidDataStream
	}
	for {
		end := r.storedPosition + int(r.storedPayloadSize)
		if end-r.buf.Position() >= n {
			r.state = StateSplit
			err := r.fill(n)
			r.state = StateNormal
			return err
		}
		leftover := end - r.buf.Position()
		if err := r.nextSegment(leftover); err != nil {
			return err
		}
	}
}

// Finish advances the read cursor to the end of the current message's
// declared payload, regardless of how much of it the handler actually
// consumed — the invariant spec.md section 8 exercises directly.
func (r *Reader) Finish() error {
	end := r.storedPosition + int(r.storedPayloadSize)
	if remaining := end - r.buf.Position(); remaining > 0 {
		if err := r.fill(remaining); err != nil {
			return err
		}
	}
	r.buf.SetPosition(end)
	return nil
}

func (r *Reader) GetByte() (byte, error) {
	if err := r.EnsureData(1); err != nil {
		return 0, err
	}
	return r.buf.GetByte()
}

func (r *Reader) GetUint16() (uint16, error) {
	if err := r.EnsureData(2); err != nil {
		return 0, err
	}
	return r.buf.GetUint16()
}

func (r *Reader) GetUint32() (uint32, error) {
	if err := r.EnsureData(4); err != nil {
		return 0, err
	}
	return r.buf.GetUint32()
}

func (r *Reader) GetUint64() (uint64, error) {
	if err := r.EnsureData(8); err != nil {
		return 0, err
	}
	return r.buf.GetUint64()
}

func (r *Reader) GetInt32() (int32, error) {
	if err := r.EnsureData(4); err != nil {
		return 0, err
	}
	return r.buf.GetInt32()
}

func (r *Reader) GetFloat64() (float64, error) {
	if err := r.EnsureData(8); err != nil {
		return 0, err
	}
	return r.buf.GetFloat64()
}

// GetBytes reads n bytes of application payload, transparently crossing
// segment boundaries in chunks no larger than MaxEnsureDataSize.
func (r *Reader) GetBytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > pva.MaxEnsureDataSize {
			chunk = pva.MaxEnsureDataSize
		}
		if err := r.EnsureData(chunk); err != nil {
			return nil, err
		}
		b, err := r.buf.GetBytes(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// State reports the read state the last EnsureData/Next call left behind,
// primarily for diagnostics and tests.
func (r *Reader) State() ReadState { return r.state }
