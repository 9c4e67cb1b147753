package inject

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// RobotgoInjector is the default Injector, backed by go-vgo/robotgo.
type RobotgoInjector struct{}

// NewRobotgoInjector returns the default Injector.
func NewRobotgoInjector() *RobotgoInjector {
	return &RobotgoInjector{}
}

var _ Injector = (*RobotgoInjector)(nil)

// TypeText simulates individual keystrokes. Slower than a paste for
// long text but never touches the clipboard.
func (r *RobotgoInjector) TypeText(text string) error {
	if text == "" {
		return nil
	}
	robotgo.Type(text)
	return nil
}

// PressCombo presses key together with modifiers, e.g. ("ctrl", "c").
func (r *RobotgoInjector) PressCombo(modifiers []string, key string) error {
	args := make([]interface{}, 0, len(modifiers))
	for _, m := range modifiers {
		args = append(args, m)
	}
	if err := robotgo.KeyTap(key, args...); err != nil {
		return fmt.Errorf("inject: key tap %v+%s: %w", modifiers, key, err)
	}
	return nil
}
