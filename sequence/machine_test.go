package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	ch     chan struct{}
	mu     sync.Mutex
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan struct{}, 16)}
}

func (f *fakeSource) Changes() <-chan struct{} { return f.ch }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSource) signal() { f.ch <- struct{}{} }

// fakeDriver simulates a document where selectors appear over time.
type fakeDriver struct {
	mu      lockedSet
	clicks  []string
	clickMu sync.Mutex
}

type lockedSet struct {
	mu      sync.Mutex
	present map[string]bool
	bad     map[string]bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{mu: lockedSet{present: map[string]bool{}, bad: map[string]bool{}}}
}

func (d *fakeDriver) inject(sel string) {
	d.mu.mu.Lock()
	d.mu.present[sel] = true
	d.mu.mu.Unlock()
}

func (d *fakeDriver) markBad(sel string) {
	d.mu.mu.Lock()
	d.mu.bad[sel] = true
	d.mu.mu.Unlock()
}

func (d *fakeDriver) Click(_ context.Context, sel string) (bool, error) {
	d.mu.mu.Lock()
	bad := d.mu.bad[sel]
	present := d.mu.present[sel]
	d.mu.mu.Unlock()

	if bad {
		return false, errors.New("malformed selector")
	}
	if !present {
		return false, nil
	}
	d.clickMu.Lock()
	d.clicks = append(d.clicks, sel)
	d.clickMu.Unlock()
	return true, nil
}

func (d *fakeDriver) clicked() []string {
	d.clickMu.Lock()
	defer d.clickMu.Unlock()
	return append([]string(nil), d.clicks...)
}

func waitDone(t *testing.T, m *Machine) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("machine never reached a terminal state")
	}
}

func TestMachine_SequenceConvergence(t *testing.T) {
	drv := newFakeDriver()
	src := newFakeSource()

	var completions int32
	done := make(chan struct{}, 4)
	m, err := Start(context.Background(), drv, src, Env{URL: "https://example.com"}, Config{
		Targets:    []string{"#a", "#b"},
		OnComplete: func() { completions++; done <- struct{}{} },
	})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("machine did not start")
	}

	drv.inject("#a")
	src.signal()
	time.Sleep(50 * time.Millisecond)
	if got := drv.clicked(); len(got) != 1 || got[0] != "#a" {
		t.Fatalf("after #a: clicked %v", got)
	}
	if m.Completed() {
		t.Fatal("completed after #a alone")
	}

	drv.inject("#b")
	src.signal()
	waitDone(t, m)

	if got := drv.clicked(); len(got) != 2 || got[0] != "#a" || got[1] != "#b" {
		t.Fatalf("final clicks: %v", got)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion signal never emitted")
	}
	if completions != 1 {
		t.Fatalf("completions: got %d, want 1", completions)
	}
	if !src.isClosed() {
		t.Error("watcher source not cancelled after completion")
	}
}

func TestMachine_TimeoutAbandonment(t *testing.T) {
	drv := newFakeDriver()
	src := newFakeSource()

	completed := false
	m, err := Start(context.Background(), drv, src, Env{}, Config{
		Targets:    []string{"#missing"},
		Timeout:    50 * time.Millisecond,
		OnComplete: func() { completed = true },
	})
	if err != nil {
		t.Fatal(err)
	}

	waitDone(t, m)

	if completed {
		t.Error("completion signal emitted despite timeout")
	}
	if m.Completed() {
		t.Error("Completed: got true")
	}
	if !src.isClosed() {
		t.Error("watcher source not cancelled on timeout")
	}
}

func TestMachine_TargetsPresentAtStart(t *testing.T) {
	drv := newFakeDriver()
	drv.inject("#a")
	drv.inject("#b")
	src := newFakeSource()

	m, err := Start(context.Background(), drv, src, Env{}, Config{
		Targets: []string{"#a", "#b"},
	})
	if err != nil {
		t.Fatal(err)
	}

	waitDone(t, m)
	if got := drv.clicked(); len(got) != 2 || got[0] != "#a" || got[1] != "#b" {
		t.Fatalf("clicks: %v", got)
	}
}

func TestMachine_MalformedSelectorSkipped(t *testing.T) {
	drv := newFakeDriver()
	drv.markBad("#$$$")
	drv.inject("#ok")
	src := newFakeSource()

	m, err := Start(context.Background(), drv, src, Env{}, Config{
		Targets: []string{"#$$$", "#ok"},
	})
	if err != nil {
		t.Fatal(err)
	}

	waitDone(t, m)
	if got := drv.clicked(); len(got) != 1 || got[0] != "#ok" {
		t.Fatalf("clicks: %v", got)
	}
}

func TestStart_SignalAlreadyBuffered(t *testing.T) {
	// A source can hold a change signal from before Start; the watch
	// goroutine then races machine setup. The whole run, including the
	// terminal cleanup, must survive that interleaving.
	for i := 0; i < 200; i++ {
		drv := newFakeDriver()
		drv.inject("#a")
		src := newFakeSource()
		src.signal()

		m, err := Start(context.Background(), drv, src, Env{}, Config{
			Targets: []string{"#a"},
		})
		if err != nil {
			t.Fatal(err)
		}

		waitDone(t, m)
		if !m.Completed() {
			t.Fatal("machine did not complete")
		}
	}
}

func TestStart_PreconditionsUnmetIsSilentNoop(t *testing.T) {
	drv := newFakeDriver()
	src := newFakeSource()

	m, err := Start(context.Background(), drv, src, Env{URL: "https://example.com"}, Config{
		Targets:  []string{"#a"},
		Preconds: Preconditions{URLSubstring: "other-site.test"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatal("machine started despite unmet preconditions")
	}
	if src.isClosed() {
		t.Error("source touched despite unmet preconditions")
	}
}

func TestStart_EmptyTargetsIsAnError(t *testing.T) {
	if _, err := Start(context.Background(), newFakeDriver(), newFakeSource(), Env{}, Config{}); err == nil {
		t.Fatal("Start: got nil error")
	}
}
