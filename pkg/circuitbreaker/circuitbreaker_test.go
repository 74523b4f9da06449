package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failingCall() error { return errBackend }
func okCall() error      { return nil }

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		OpenTimeout:         20 * time.Millisecond,
		HalfOpenMaxInFlight: 1,
	}
}

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := New(testConfig())

	if err := cb.Execute(context.Background(), okCall); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if err := cb.Execute(context.Background(), failingCall); !errors.Is(err, errBackend) {
		t.Fatalf("Execute() error = %v, want backend error", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed after a single failure", cb.State())
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failingCall)
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %s, want open", cb.State())
	}

	err := cb.Execute(context.Background(), okCall)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() while open = %v, want ErrOpen", err)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := New(testConfig())

	cb.Execute(context.Background(), failingCall)
	cb.Execute(context.Background(), failingCall)
	cb.Execute(context.Background(), okCall)
	cb.Execute(context.Background(), failingCall)
	cb.Execute(context.Background(), failingCall)

	if cb.State() != StateClosed {
		t.Errorf("State() = %s, non-consecutive failures should not open", cb.State())
	}
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failingCall)
	}
	time.Sleep(25 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %s, want half-open after timeout", cb.State())
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), okCall); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed after successful probes", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failingCall)
	}
	time.Sleep(25 * time.Millisecond)

	cb.Execute(context.Background(), failingCall)

	if cb.State() != StateOpen {
		t.Fatalf("State() = %s, want open after failed probe", cb.State())
	}
	if err := cb.Execute(context.Background(), okCall); !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() = %v, want ErrOpen right after reopening", err)
	}
}

func TestHalfOpenProbeLimit(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failingCall)
	}
	time.Sleep(25 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	go cb.Execute(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	err := cb.Execute(context.Background(), okCall)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() = %v, want ErrOpen while probe in flight", err)
	}
	close(release)
}

func TestReset(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failingCall)
	}
	cb.Reset()

	if cb.State() != StateClosed {
		t.Fatalf("State() = %s, want closed after Reset", cb.State())
	}
	if err := cb.Execute(context.Background(), okCall); err != nil {
		t.Errorf("Execute() after Reset error: %v", err)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	cb := New(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestOnStateChange(t *testing.T) {
	cb := New(testConfig())

	transitions := make(chan [2]State, 4)
	cb.OnStateChange(func(from, to State) {
		transitions <- [2]State{from, to}
	})

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), failingCall)
	}

	select {
	case tr := <-transitions:
		if tr[0] != StateClosed || tr[1] != StateOpen {
			t.Errorf("transition = %s->%s, want closed->open", tr[0], tr[1])
		}
	case <-time.After(time.Second):
		t.Fatal("state change callback never fired")
	}
}
