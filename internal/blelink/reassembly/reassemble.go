package reassembly

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedFrame names an unknown flag combination or a frame too
// short to contain its header. ProcessPacket does not return it: it drops
// such frames and reports (nil, false).
var ErrMalformedFrame = errors.New("reassembly: malformed frame")

// Reassembler accumulates fragment frames into complete message payloads.
// It is not safe for concurrent use; callers serialize access (the GATT
// server processes writes on a single goroutine).
type Reassembler struct {
	buf          []byte
	expectedLen  int
	haveFirst    bool
	lastSeq      uint16
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// ProcessPacket feeds one fragment frame to the reassembler. It returns
// the complete payload (and true) once the final fragment of a message
// arrives; otherwise it returns (nil, false). Unknown flag combinations
// are dropped without error (matches spec.md's "drop the frame" policy);
// out-of-order fragments and overflow silently reset the reassembler.
func (r *Reassembler) ProcessPacket(frame []byte) ([]byte, bool) {
	if len(frame) < restHeaderLen {
		return nil, false
	}
	flags := frame[0]
	seq := binary.LittleEndian.Uint16(frame[1:3])

	switch flags {
	case FlagSingle:
		if len(frame) < firstHeaderLen {
			return nil, false
		}
		body := frame[firstHeaderLen:]
		r.reset()
		return append([]byte(nil), body...), true

	case FlagFirst:
		if len(frame) < firstHeaderLen {
			return nil, false
		}
		total := binary.LittleEndian.Uint16(frame[3:5])
		r.buf = append(r.buf[:0], frame[firstHeaderLen:]...)
		r.expectedLen = int(total)
		r.haveFirst = true
		r.lastSeq = seq
		return r.checkComplete()

	case 0, FlagLast:
		if !r.haveFirst {
			return nil, false // drop silently: no FIRST seen yet
		}
		if seq != r.lastSeq+1 {
			r.reset()
			return nil, false
		}
		r.lastSeq = seq
		body := frame[restHeaderLen:]
		if len(r.buf)+len(body) > MaxBufferedBytes {
			r.reset()
			return nil, false
		}
		r.buf = append(r.buf, body...)
		if flags == FlagLast {
			payload := append([]byte(nil), r.buf...)
			r.reset()
			return payload, true
		}
		return r.checkComplete()

	default:
		return nil, false // unknown flag combination
	}
}

// checkComplete returns the buffered payload once it has reached the
// FIRST frame's declared total_len, even if no explicit LAST frame
// flagged it (defensive: matches spec.md's "or when buffered length
// reaches expected_total").
func (r *Reassembler) checkComplete() ([]byte, bool) {
	if r.haveFirst && len(r.buf) >= r.expectedLen {
		payload := append([]byte(nil), r.buf[:r.expectedLen]...)
		r.reset()
		return payload, true
	}
	return nil, false
}

// Reset clears any partially-reassembled message. Called on disconnect.
func (r *Reassembler) Reset() {
	r.reset()
}

func (r *Reassembler) reset() {
	r.buf = r.buf[:0]
	r.expectedLen = 0
	r.haveFirst = false
	r.lastSeq = 0
}
