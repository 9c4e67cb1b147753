// Package dispatch consumes blelink.ConnectionEvents and turns them
// into injected keystrokes or executed commands, grounded almost
// one-to-one on original_source/desktop/src/events.rs's EventProcessor:
// recording-mode capture is checked before the command matcher, the
// matcher is checked before plain text injection, and a periodic
// 100ms flush drains the word-lookahead buffer the same way
// process_periodic_flush does.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pelidan/prontafon/internal/blelink"
	"github.com/pelidan/prontafon/internal/inject"
	"github.com/pelidan/prontafon/internal/store"
	"github.com/pelidan/prontafon/internal/trayport"
	"github.com/pelidan/prontafon/internal/wordmatch"
)

const flushInterval = 100 * time.Millisecond

// Dispatcher wires the GATT server's event stream to the injector,
// matching voice commands against the command store and capturing
// recorded phrases while a command's phrase is being (re)recorded.
type Dispatcher struct {
	log      *slog.Logger
	injector inject.Injector
	commands *store.CommandStore
	tray     trayport.Port
	events   <-chan blelink.ConnectionEvent
	buffer   *wordmatch.Buffer

	recording recordingState
	quit      chan struct{}

	onPairRequested func(deviceID, deviceName string)
}

// New creates a Dispatcher. tray may be trayport.NewNullPort() for
// headless operation.
func New(log *slog.Logger, injector inject.Injector, commands *store.CommandStore, tray trayport.Port, events <-chan blelink.ConnectionEvent) *Dispatcher {
	single, two, couldStart := buildLexicon(commands)
	return &Dispatcher{
		log:      log,
		injector: injector,
		commands: commands,
		tray:     tray,
		events:   events,
		buffer:   wordmatch.NewBuffer(single, two, couldStart),
		quit:     make(chan struct{}),
	}
}

// StartRecording puts the dispatcher into phrase-recording mode for
// code: the next recognized text or word-buffer emission is captured
// verbatim (trimmed) as that command's phrase instead of being typed.
func (d *Dispatcher) StartRecording(code string) {
	d.recording.start(code)
}

// StopRecording cancels phrase-recording mode without capturing
// anything.
func (d *Dispatcher) StopRecording() {
	d.recording.stop()
}

// SetPairingHandler registers fn to be called, in its own goroutine,
// whenever a PairRequested event arrives. The event channel has a
// single consumer (Run); a caller that wants to make live accept/
// reject decisions must hook in here rather than also reading from
// the server's event channel directly.
func (d *Dispatcher) SetPairingHandler(fn func(deviceID, deviceName string)) {
	d.onPairRequested = fn
}

// Done is closed once the tray's Quit intent has been processed.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.quit
}

// Run consumes events and tray intents until ctx is cancelled, the
// event channel closes, or a Quit intent arrives from the tray.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			d.processEvent(ev)
		case intent := <-d.tray.Intents():
			if intent == trayport.Quit {
				d.log.Info("quit requested from tray")
				close(d.quit)
				return
			}
			d.log.Debug("tray intent", "intent", intent.String())
		case now := <-ticker.C:
			d.processItems(d.buffer.Flush(now))
		}
	}
}

func (d *Dispatcher) processEvent(ev blelink.ConnectionEvent) {
	switch ev.Kind {
	case blelink.EventTextReceived:
		d.handleText(ev.Text)
	case blelink.EventWordReceived:
		d.processItems(d.buffer.ProcessWord(ev.Word, ev.Session))
	case blelink.EventCommandReceived:
		d.execute(ev.Command)
	case blelink.EventConnected:
		d.log.Info("device connected", "device", ev.DeviceName)
		// Reset word buffer state for the new connection to prevent
		// stale session/sequence state from blocking words.
		d.processItems(d.buffer.Reset())
		d.tray.Notify(trayport.StateChange{Status: trayport.StatusConnected, DeviceName: ev.DeviceName})
	case blelink.EventDisconnected:
		d.log.Info("device disconnected")
		d.tray.Notify(trayport.StateChange{Status: trayport.StatusDisconnected})
	case blelink.EventPairRequested:
		d.log.Info("pairing requested", "device_id", ev.DeviceID, "device_name", ev.DeviceName)
		if d.onPairRequested != nil {
			go d.onPairRequested(ev.DeviceID, ev.DeviceName)
		}
	}
}

func (d *Dispatcher) handleText(text string) {
	if d.captureRecording(text) {
		return
	}

	result := wordmatch.MatchText(text, d.commands.List())
	switch result.Kind {
	case wordmatch.ExactCommand:
		d.execute(result.Command)
	case wordmatch.MidTextCommand:
		for _, seg := range result.Segments {
			if seg.Kind == wordmatch.ItemCommand {
				d.execute(seg.Command)
			} else {
				d.typeText(seg.Text)
			}
		}
	case wordmatch.NoMatch:
		d.typeText(text)
	}
}

func (d *Dispatcher) processItems(items []wordmatch.ProcessedItem) {
	for _, item := range items {
		switch item.Kind {
		case wordmatch.ItemText:
			if d.captureRecording(item.Text) {
				continue
			}
			d.typeText(item.Text)
		case wordmatch.ItemCommand:
			d.execute(item.Command)
		}
	}
}

// captureRecording saves text as the phrase for the command currently
// being recorded, if any, and reports whether it did so.
func (d *Dispatcher) captureRecording(text string) bool {
	code, recording := d.recording.current()
	if !recording {
		return false
	}
	phrase := strings.TrimSpace(text)
	if err := d.commands.SetPhrase(code, phrase); err != nil {
		d.log.Error("failed to save recorded phrase", "command", code, "error", err)
	} else {
		d.log.Info("recorded phrase for command", "command", code, "phrase", phrase)
	}
	d.recording.stop()
	return true
}

func (d *Dispatcher) typeText(text string) {
	if err := d.injector.TypeText(text); err != nil {
		d.log.Error("failed to inject text", "error", err)
	}
}

func (d *Dispatcher) execute(code string) {
	cmd, ok := ParseVoiceCommand(code)
	if !ok {
		d.log.Warn("unknown command code", "code", code)
		return
	}
	if err := executeVoiceCommand(d.injector, cmd); err != nil {
		d.log.Error("failed to execute command", "command", code, "error", err)
	}
}
