// Package reassembly implements the MTU-aware fragmentation and
// reassembly protocol used over the Command-RX/Response-TX
// characteristics (spec.md section 4.1).
package reassembly

import "encoding/binary"

// Frame flag bits.
const (
	FlagFirst  byte = 1 << 0
	FlagLast   byte = 1 << 1
	FlagSingle      = FlagFirst | FlagLast
)

// firstHeaderLen and restHeaderLen are the fixed header sizes: a FIRST
// (or SINGLE) frame carries a 2-byte total_len after the seq, later
// frames do not.
const (
	firstHeaderLen = 5 // flags(1) + seq(2) + total_len(2)
	restHeaderLen  = 3 // flags(1) + seq(2)
)

// MaxBufferedBytes caps reassembly to guard against a runaway peer.
const MaxBufferedBytes = 64 * 1024

// Chunk splits payload into an ordered sequence of wire frames sized to
// fit within mtu bytes each. A payload that fits in a single frame after
// the FIRST-frame header is emitted as one SINGLE frame.
func Chunk(payload []byte, mtu int) [][]byte {
	if len(payload) == 0 {
		return nil
	}

	bodyFirst := mtu - firstHeaderLen
	if bodyFirst < 1 {
		bodyFirst = 1
	}
	bodyRest := mtu - restHeaderLen
	if bodyRest < 1 {
		bodyRest = 1
	}

	if len(payload) <= bodyFirst {
		frame := make([]byte, firstHeaderLen+len(payload))
		frame[0] = FlagSingle
		binary.LittleEndian.PutUint16(frame[1:3], 0)
		binary.LittleEndian.PutUint16(frame[3:5], uint16(len(payload)))
		copy(frame[firstHeaderLen:], payload)
		return [][]byte{frame}
	}

	var frames [][]byte
	seq := uint16(0)

	first := make([]byte, firstHeaderLen+bodyFirst)
	first[0] = FlagFirst
	binary.LittleEndian.PutUint16(first[1:3], seq)
	binary.LittleEndian.PutUint16(first[3:5], uint16(len(payload)))
	copy(first[firstHeaderLen:], payload[:bodyFirst])
	frames = append(frames, first)
	remaining := payload[bodyFirst:]
	seq++

	for len(remaining) > bodyRest {
		mid := make([]byte, restHeaderLen+bodyRest)
		mid[0] = 0
		binary.LittleEndian.PutUint16(mid[1:3], seq)
		copy(mid[restHeaderLen:], remaining[:bodyRest])
		frames = append(frames, mid)
		remaining = remaining[bodyRest:]
		seq++
	}

	last := make([]byte, restHeaderLen+len(remaining))
	last[0] = FlagLast
	binary.LittleEndian.PutUint16(last[1:3], seq)
	copy(last[restHeaderLen:], remaining)
	frames = append(frames, last)

	return frames
}
