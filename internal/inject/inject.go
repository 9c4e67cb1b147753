// Package inject delivers recognized text and command keystrokes into
// whatever application has focus, using go-vgo/robotgo the way the
// teacher's injector does, generalized from a single Inject(text)
// method into the two-method port the dispatcher needs: typed text and
// discrete key combos for executed voice commands.
package inject

// Injector types text into the active application and presses
// keyboard combos on its behalf.
type Injector interface {
	// TypeText simulates keystrokes for text, preserving the system
	// clipboard.
	TypeText(text string) error
	// PressCombo presses key together with modifiers (e.g.
	// PressCombo([]string{"ctrl"}, "c") for copy).
	PressCombo(modifiers []string, key string) error
}
