package dispatch

import "sync"

// recordingState tracks which command code, if any, is currently
// capturing its next recognized phrase (spec.md section 4.7,
// grounded on original_source/desktop/src/events.rs's
// get_recording_command/stop_recording).
type recordingState struct {
	mu      sync.Mutex
	command string
}

func (r *recordingState) start(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.command = code
}

func (r *recordingState) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.command = ""
}

func (r *recordingState) current() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.command == "" {
		return "", false
	}
	return r.command, true
}
