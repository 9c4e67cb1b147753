package reassembly

import (
	"bytes"
	"strings"
	"testing"
)

func reassembleAll(t *testing.T, frames [][]byte) []byte {
	t.Helper()
	r := NewReassembler()
	var out []byte
	for i, f := range frames {
		payload, ok := r.ProcessPacket(f)
		if ok {
			out = payload
			if i != len(frames)-1 {
				t.Fatalf("reassembly completed early at frame %d of %d", i, len(frames))
			}
		}
	}
	return out
}

func TestChunkSingleFrame(t *testing.T) {
	payload := []byte("hello world")
	frames := Chunk(payload, 185)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0][0] != FlagSingle {
		t.Errorf("flags = %x, want SINGLE", frames[0][0])
	}
	got := reassembleAll(t, frames)
	if !bytes.Equal(got, payload) {
		t.Errorf("reassembled = %q, want %q", got, payload)
	}
}

func TestChunkMultiFrameRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 20))
	mtu := 23
	frames := Chunk(payload, mtu)
	if len(frames) < 2 {
		t.Fatalf("expected multiple frames, got %d", len(frames))
	}
	if frames[0][0] != FlagFirst {
		t.Errorf("first frame flags = %x, want FIRST", frames[0][0])
	}
	if frames[len(frames)-1][0] != FlagLast {
		t.Errorf("last frame flags = %x, want LAST", frames[len(frames)-1][0])
	}
	got := reassembleAll(t, frames)
	if !bytes.Equal(got, payload) {
		t.Errorf("reassembled length = %d, want %d", len(got), len(payload))
	}
}

func TestChunkRoundTripVariousMTUs(t *testing.T) {
	payload := []byte(strings.Repeat("x", 400))
	for _, mtu := range []int{23, 50, 100, 185, 512} {
		frames := Chunk(payload, mtu)
		got := reassembleAll(t, frames)
		if !bytes.Equal(got, payload) {
			t.Errorf("mtu=%d: reassembled mismatch, got %d bytes want %d", mtu, len(got), len(payload))
		}
	}
}

func TestChunk400ByteMTU185FragmentCount(t *testing.T) {
	// Scenario 2 from spec.md section 8: at MTU 185 a 400-byte payload
	// takes 3 frames (180 bytes after the 5-byte FIRST header, 182 after
	// the 3-byte MIDDLE header, the remaining 38 in LAST), and the first
	// fragment must declare total_len = 400.
	payload := bytes.Repeat([]byte{'a'}, 400)
	frames := Chunk(payload, 185)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	total := int(frames[0][3]) | int(frames[0][4])<<8
	if total != 400 {
		t.Errorf("first frame total_len = %d, want 400", total)
	}
}

func TestChunkEmptyPayload(t *testing.T) {
	if frames := Chunk(nil, 185); frames != nil {
		t.Errorf("Chunk(nil) = %v, want nil", frames)
	}
}

func TestProcessPacketDropsOutOfOrder(t *testing.T) {
	payload := []byte(strings.Repeat("y", 200))
	frames := Chunk(payload, 23)
	if len(frames) < 3 {
		t.Fatalf("need at least 3 frames for this test, got %d", len(frames))
	}
	r := NewReassembler()
	if _, ok := r.ProcessPacket(frames[0]); ok {
		t.Fatal("first frame alone should not complete reassembly")
	}
	// Skip a frame to simulate an out-of-order/gap delivery.
	if _, ok := r.ProcessPacket(frames[2]); ok {
		t.Fatal("gapped frame should not complete reassembly")
	}
	// Reassembler should have reset; feeding the remaining frames from
	// scratch should not reassemble the original message.
	if _, ok := r.ProcessPacket(frames[len(frames)-1]); ok {
		t.Fatal("reassembler should have discarded partial state after the gap")
	}
}

func TestProcessPacketDropsMiddleBeforeFirst(t *testing.T) {
	r := NewReassembler()
	midFrame := make([]byte, restHeaderLen+5)
	midFrame[0] = 0
	if payload, ok := r.ProcessPacket(midFrame); ok || payload != nil {
		t.Error("MIDDLE frame with no preceding FIRST should be dropped silently")
	}
}

func TestProcessPacketUnknownFlagsDropped(t *testing.T) {
	r := NewReassembler()
	frame := make([]byte, firstHeaderLen+2)
	frame[0] = 0x7F // nonsensical flag combination
	if _, ok := r.ProcessPacket(frame); ok {
		t.Error("unknown flag combination should be dropped")
	}
}

func TestProcessPacketOverflowResets(t *testing.T) {
	r := NewReassembler()
	first := make([]byte, firstHeaderLen+1)
	first[0] = FlagFirst
	// Declare an enormous total_len so checkComplete never fires early.
	first[3] = 0xFF
	first[4] = 0xFF
	if _, ok := r.ProcessPacket(first); ok {
		t.Fatal("FIRST alone should not complete")
	}

	big := make([]byte, restHeaderLen+MaxBufferedBytes)
	big[0] = 0
	big[1] = 1 // seq = 1, continues from FIRST's seq 0
	if _, ok := r.ProcessPacket(big); ok {
		t.Fatal("overflowing frame should not complete reassembly")
	}

	// Reassembler must have reset: feeding a fresh SINGLE frame should work.
	single := Chunk([]byte("ok"), 185)[0]
	payload, ok := r.ProcessPacket(single)
	if !ok || string(payload) != "ok" {
		t.Error("reassembler did not recover after overflow reset")
	}
}
