package dispatch

import (
	"fmt"

	"github.com/pelidan/prontafon/internal/inject"
)

// VoiceCommand is one of the built-in executable command codes. The
// set is fixed by what the original's input::keys::Key enum can press
// (A, C, V, X, Enter, with a Ctrl modifier): copy, paste, cut,
// select-all, and enter.
type VoiceCommand string

const (
	CommandCopy      VoiceCommand = "copy"
	CommandPaste     VoiceCommand = "paste"
	CommandCut       VoiceCommand = "cut"
	CommandSelectAll VoiceCommand = "select_all"
	CommandEnter     VoiceCommand = "enter"
)

// ParseVoiceCommand maps a command code, as stored in
// internal/store.CommandStore or received over BLE, to a known
// VoiceCommand.
func ParseVoiceCommand(code string) (VoiceCommand, bool) {
	switch VoiceCommand(code) {
	case CommandCopy, CommandPaste, CommandCut, CommandSelectAll, CommandEnter:
		return VoiceCommand(code), true
	default:
		return "", false
	}
}

// executeVoiceCommand presses the key combo bound to cmd.
func executeVoiceCommand(injector inject.Injector, cmd VoiceCommand) error {
	switch cmd {
	case CommandCopy:
		return injector.PressCombo([]string{"ctrl"}, "c")
	case CommandPaste:
		return injector.PressCombo([]string{"ctrl"}, "v")
	case CommandCut:
		return injector.PressCombo([]string{"ctrl"}, "x")
	case CommandSelectAll:
		return injector.PressCombo([]string{"ctrl"}, "a")
	case CommandEnter:
		return injector.PressCombo(nil, "enter")
	default:
		return fmt.Errorf("dispatch: unknown voice command %q", cmd)
	}
}
