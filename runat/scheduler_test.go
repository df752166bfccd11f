package runat

import (
	"context"
	"testing"
	"time"
)

type fakeLifecycle struct {
	dom  chan struct{}
	load chan struct{}
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{dom: make(chan struct{}), load: make(chan struct{})}
}

func (f *fakeLifecycle) DOMReady() <-chan struct{} { return f.dom }
func (f *fakeLifecycle) Loaded() <-chan struct{}   { return f.load }

func waitApply(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("corrective action never ran")
	}
}

func expectNoApply(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("corrective action ran unexpectedly")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_ASAPRunsAtParseMilestone(t *testing.T) {
	life := newFakeLifecycle()
	applied := make(chan struct{}, 4)

	s := NewScheduler(Parse("asap"), life, nil, nil)
	if err := s.Run(context.Background(), func() { applied <- struct{}{} }); err != nil {
		t.Fatal(err)
	}

	expectNoApply(t, applied)
	close(life.dom)
	waitApply(t, applied)
	expectNoApply(t, applied) // exactly once
}

func TestScheduler_ASAPRunsImmediatelyWhenPastMilestone(t *testing.T) {
	life := newFakeLifecycle()
	close(life.dom)
	applied := make(chan struct{}, 4)

	s := NewScheduler(Parse("asap"), life, nil, nil)
	if err := s.Run(context.Background(), func() { applied <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	waitApply(t, applied)
}

func TestScheduler_CompleteWaitsForFullLoad(t *testing.T) {
	life := newFakeLifecycle()
	applied := make(chan struct{}, 4)

	s := NewScheduler(Parse("complete"), life, nil, nil)
	if err := s.Run(context.Background(), func() { applied <- struct{}{} }); err != nil {
		t.Fatal(err)
	}

	close(life.dom)
	expectNoApply(t, applied) // parse milestone must not trigger it
	close(life.load)
	waitApply(t, applied)
	expectNoApply(t, applied)
}

func TestScheduler_StayReappliesOnChanges(t *testing.T) {
	life := newFakeLifecycle()
	close(life.dom)
	applied := make(chan struct{}, 16)

	changes := make(chan func(), 1)
	watch := func(ctx context.Context, onChange func()) (func(), error) {
		changes <- onChange
		return func() {}, nil
	}

	s := NewScheduler(Parse("asap stay"), life, watch, nil)
	if err := s.Run(context.Background(), func() { applied <- struct{}{} }); err != nil {
		t.Fatal(err)
	}

	waitApply(t, applied) // initial run

	var onChange func()
	select {
	case onChange = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never bound")
	}

	onChange()
	waitApply(t, applied)
	onChange()
	waitApply(t, applied)
}

func TestScheduler_StayWithoutWatchFuncIsAnError(t *testing.T) {
	s := NewScheduler(Parse("stay"), newFakeLifecycle(), nil, nil)
	if err := s.Run(context.Background(), func() {}); err == nil {
		t.Fatal("Run: got nil error")
	}
}

func TestScheduler_PanickingActionIsContained(t *testing.T) {
	life := newFakeLifecycle()
	close(life.dom)
	applied := make(chan struct{}, 16)

	changes := make(chan func(), 1)
	watch := func(ctx context.Context, onChange func()) (func(), error) {
		changes <- onChange
		return func() {}, nil
	}

	first := true
	s := NewScheduler(Parse("asap stay"), life, watch, nil)
	err := s.Run(context.Background(), func() {
		if first {
			first = false
			applied <- struct{}{}
			panic("corrective body blew up")
		}
		applied <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}

	waitApply(t, applied) // initial, panicking run

	var onChange func()
	select {
	case onChange = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never bound after panic")
	}

	onChange() // must still re-apply
	waitApply(t, applied)
}
