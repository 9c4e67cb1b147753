package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pelidan/prontafon/internal/blelink"
	"github.com/pelidan/prontafon/internal/store"
	"github.com/pelidan/prontafon/internal/trayport"
)

type fakeInjector struct {
	mu     sync.Mutex
	typed  []string
	combos [][2]string // {each modifier followed by "+", key}
}

func (f *fakeInjector) TypeText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeInjector) PressCombo(modifiers []string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mods := ""
	for _, m := range modifiers {
		mods += m + "+"
	}
	f.combos = append(f.combos, [2]string{mods, key})
	return nil
}

func (f *fakeInjector) snapshot() ([]string, [][2]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typed...), append([][2]string(nil), f.combos...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeInjector, *store.CommandStore, chan blelink.ConnectionEvent) {
	t.Helper()
	cs, err := store.NewCommandStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCommandStore() error = %v", err)
	}
	injector := &fakeInjector{}
	events := make(chan blelink.ConnectionEvent, 8)
	d := New(discardLogger(), injector, cs, trayport.NewNullPort(), events)
	return d, injector, cs, events
}

func TestHandleTextNoMatchTypesText(t *testing.T) {
	d, injector, _, events := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	events <- blelink.ConnectionEvent{Kind: blelink.EventTextReceived, Text: "hello there"}
	waitFor(t, func() bool {
		typed, _ := injector.snapshot()
		return len(typed) == 1
	})
	typed, _ := injector.snapshot()
	if typed[0] != "hello there" {
		t.Errorf("typed = %v, want [hello there]", typed)
	}
}

func TestHandleTextExactCommandExecutes(t *testing.T) {
	d, injector, cs, events := newTestDispatcher(t)
	if err := cs.SetPhrase(string(CommandCopy), "copy that"); err != nil {
		t.Fatalf("SetPhrase() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	events <- blelink.ConnectionEvent{Kind: blelink.EventTextReceived, Text: "copy that"}
	waitFor(t, func() bool {
		_, combos := injector.snapshot()
		return len(combos) == 1
	})
	_, combos := injector.snapshot()
	if combos[0] != ([2]string{"ctrl+", "c"}) {
		t.Errorf("combos = %v, want ctrl+c", combos)
	}
}

func TestCommandReceivedExecutesDirectly(t *testing.T) {
	d, injector, _, events := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	events <- blelink.ConnectionEvent{Kind: blelink.EventCommandReceived, Command: string(CommandPaste)}
	waitFor(t, func() bool {
		_, combos := injector.snapshot()
		return len(combos) == 1
	})
	_, combos := injector.snapshot()
	if combos[0] != ([2]string{"ctrl+", "v"}) {
		t.Errorf("combos = %v, want ctrl+v", combos)
	}
}

func TestRecordingModeCapturesTextInsteadOfTyping(t *testing.T) {
	d, injector, cs, events := newTestDispatcher(t)
	d.StartRecording("my_macro")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	events <- blelink.ConnectionEvent{Kind: blelink.EventTextReceived, Text: "select all text"}
	waitFor(t, func() bool {
		phrase, ok := cs.GetPhrase("my_macro")
		return ok && phrase == "select all text"
	})

	typed, _ := injector.snapshot()
	if len(typed) != 0 {
		t.Errorf("typed = %v, want nothing typed while recording", typed)
	}
	if _, recording := d.recording.current(); recording {
		t.Error("recording mode should clear after capture")
	}
}

func TestConnectedResetsWordBuffer(t *testing.T) {
	d, injector, cs, events := newTestDispatcher(t)
	if err := cs.SetPhrase(string(CommandSelectAll), "select all"); err != nil {
		t.Fatalf("SetPhrase() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// "select" alone could start the two-word "select all" command, so
	// it is held as pending rather than typed immediately.
	events <- blelink.ConnectionEvent{Kind: blelink.EventWordReceived, Word: "select", Session: "s1"}
	time.Sleep(20 * time.Millisecond) // let it land as pending, not yet flushed
	events <- blelink.ConnectionEvent{Kind: blelink.EventConnected, DeviceName: "My Phone"}

	waitFor(t, func() bool {
		typed, _ := injector.snapshot()
		return len(typed) == 1
	})
	typed, _ := injector.snapshot()
	if typed[0] != "select " {
		t.Errorf("typed = %v, want flushed 'select ' from reset", typed)
	}
}

func TestQuitIntentClosesDone(t *testing.T) {
	cs, err := store.NewCommandStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCommandStore() error = %v", err)
	}
	injector := &fakeInjector{}
	events := make(chan blelink.ConnectionEvent, 1)

	intents := make(chan trayport.Intent, 1)
	port := &fakeTrayPort{intents: intents}
	d := New(discardLogger(), injector, cs, port, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	intents <- trayport.Quit
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() was not closed after Quit intent")
	}
}

func TestPairRequestedInvokesHandler(t *testing.T) {
	d, _, _, events := newTestDispatcher(t)

	type call struct{ id, name string }
	calls := make(chan call, 1)
	d.SetPairingHandler(func(deviceID, deviceName string) {
		calls <- call{deviceID, deviceName}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	events <- blelink.ConnectionEvent{Kind: blelink.EventPairRequested, DeviceID: "phone-1", DeviceName: "My Phone"}

	select {
	case c := <-calls:
		if c.id != "phone-1" || c.name != "My Phone" {
			t.Errorf("handler called with (%q, %q), want (phone-1, My Phone)", c.id, c.name)
		}
	case <-time.After(time.Second):
		t.Fatal("pairing handler was not invoked")
	}
}

type fakeTrayPort struct {
	intents chan trayport.Intent
}

func (p *fakeTrayPort) Notify(trayport.StateChange)    {}
func (p *fakeTrayPort) Intents() <-chan trayport.Intent { return p.intents }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
