package observable

import (
	"testing"
	"time"
)

func TestValue_LoadReturnsLatest(t *testing.T) {
	v := NewValue(1)

	if got := v.Load(); got != 1 {
		t.Errorf("expected initial value 1, got %d", got)
	}

	v.Store(2)
	v.Store(3)

	if got := v.Load(); got != 3 {
		t.Errorf("expected latest value 3, got %d", got)
	}
	if v.Version() != 2 {
		t.Errorf("expected version 2, got %d", v.Version())
	}
}

func TestValue_WatchWakesOnStore(t *testing.T) {
	v := NewValue("a")

	got, ch := v.Watch()
	if got != "a" {
		t.Errorf("expected a, got %s", got)
	}

	go v.Store("b")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher was not woken by Store")
	}

	got, _ = v.Watch()
	if got != "b" {
		t.Errorf("expected b after wakeup, got %s", got)
	}
}

func TestValue_WatcherSkipsIntermediateValues(t *testing.T) {
	v := NewValue(0)

	_, ch := v.Watch()

	// Multiple stores before the watcher wakes up. The watcher must see
	// only the newest value, never a queue of historical ones.
	v.Store(1)
	v.Store(2)
	v.Store(3)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher was not woken")
	}

	got, _ := v.Watch()
	if got != 3 {
		t.Errorf("expected latest value 3, got %d", got)
	}
}

func TestValue_ConcurrentReaders(t *testing.T) {
	v := NewValue(0)
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				v.Load()
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 1000; i++ {
		v.Store(i)
	}

	for i := 0; i < 4; i++ {
		<-done
	}

	if got := v.Load(); got != 999 {
		t.Errorf("expected 999, got %d", got)
	}
}
