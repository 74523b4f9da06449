package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func testConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return nil
	}, nil)

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errTest
		}
		return nil
	}, nil)

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	retries := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return errTest
	}, func(attempt int, err error) {
		retries++
	})

	if err == nil {
		t.Error("expected error after exhausting attempts, got nil")
	}
	if !errors.Is(err, errTest) {
		t.Errorf("expected wrapped errTest, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got: %d", attempts)
	}
	if retries != 2 {
		t.Errorf("expected onRetry called twice, got: %d", retries)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		attempts++
		return errTest
	}, nil)

	if err == nil {
		t.Error("expected cancellation error, got nil")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got: %d", attempts)
	}
}

func TestDelay_ExponentialBackoff(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	if d := Delay(cfg, 1); d != 100*time.Millisecond {
		t.Errorf("expected 100ms for attempt 1, got: %v", d)
	}
	if d := Delay(cfg, 2); d != 200*time.Millisecond {
		t.Errorf("expected 200ms for attempt 2, got: %v", d)
	}
	if d := Delay(cfg, 3); d != 400*time.Millisecond {
		t.Errorf("expected 400ms for attempt 3, got: %v", d)
	}
}

func TestDelay_MaxDelayCap(t *testing.T) {
	cfg := Config{
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}

	if d := Delay(cfg, 6); d != cfg.MaxDelay {
		t.Errorf("expected delay capped at %v, got: %v", cfg.MaxDelay, d)
	}
}
