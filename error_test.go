package framez

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestChainError(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(250 * time.Millisecond)

	t.Run("Failure Message", func(t *testing.T) {
		base := errors.New("bad pixel")
		err := newChainError(base, "median", 2, 7, PhaseFrame, start, now)

		want := `plugin "median" (step 2, frame, frame 7) failed after 250ms: bad pixel`
		if err.Error() != want {
			t.Errorf("Expected %q, got %q", want, err.Error())
		}
		if !errors.Is(err, base) {
			t.Error("Expected error to unwrap to the cause")
		}
		if err.IsTimeout() || err.IsCanceled() {
			t.Error("Expected neither timeout nor cancellation")
		}
		if !err.Timestamp.Equal(now) || err.Duration != 250*time.Millisecond {
			t.Errorf("Unexpected timing %v %v", err.Timestamp, err.Duration)
		}
	})

	t.Run("Outside Frame Loop", func(t *testing.T) {
		err := newChainError(ErrArity, "scale", 0, -1, PhaseResolve, start, now)
		if !strings.HasPrefix(err.Error(), `plugin "scale" (step 0, resolve) failed`) {
			t.Errorf("Unexpected message %q", err.Error())
		}
		if !errors.Is(err, ErrArity) {
			t.Error("Expected ErrArity")
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		err := newChainError(context.DeadlineExceeded, "slow", 1, 0, PhaseFrame, start, now)
		if !err.IsTimeout() {
			t.Error("Expected IsTimeout")
		}
		if !strings.Contains(err.Error(), "timed out after 250ms") {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		err := newChainError(context.Canceled, "slow", 1, 3, PhaseFrame, start, now)
		if !err.IsCanceled() || err.IsTimeout() {
			t.Error("Expected IsCanceled only")
		}
		if !strings.Contains(err.Error(), "canceled after 250ms") {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})

	t.Run("Wrapped Context Errors", func(t *testing.T) {
		err := &ChainError{Err: errors.Join(errors.New("io"), context.DeadlineExceeded)}
		if !err.IsTimeout() {
			t.Error("Expected IsTimeout through a joined error")
		}
	})
}

func TestRecoverFromPanic(t *testing.T) {
	run := func(fn func()) (err error) {
		defer recoverFromPanic(&err)
		fn()
		return nil
	}

	if err := run(func() {}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	err := run(func() { panic("index out of range") })
	if err == nil || err.Error() != "panic: index out of range" {
		t.Errorf("Expected recovered panic, got %v", err)
	}

	err = run(func() { panic(errors.New("typed")) })
	if err == nil || err.Error() != "panic: typed" {
		t.Errorf("Expected recovered panic, got %v", err)
	}
}
