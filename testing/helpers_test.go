package testing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/framez"
)

func TestMockPlugin(t *testing.T) {
	ctx := context.Background()

	t.Run("Copies Frames Through", func(t *testing.T) {
		d, err := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		mock := NewMockPlugin(t, "mock-copy").WithPattern(framez.PatternProjection, 2)

		chain := framez.NewChain("copy")
		defer chain.Close()
		if err := chain.AddDataset(d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := chain.Register(mock, nil, []framez.Name{"copied"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := chain.Run(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		AssertFrames(t, mock, 2)
		if mock.SetupCount() != 1 || mock.PreProcessCount() != 1 || mock.PostProcessCount() != 1 {
			t.Errorf("expected one setup, pre and post call, got %d, %d, %d",
				mock.SetupCount(), mock.PreProcessCount(), mock.PostProcessCount())
		}

		out, err := chain.Dataset("copied")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want, _ := ReadAll(d)
		AssertDataset(t, out, want, 0)
	})

	t.Run("Records Frame Indices", func(t *testing.T) {
		d, err := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		mock := NewMockPlugin(t, "mock-indices").WithPattern(framez.PatternSinogram, 1)

		chain := framez.NewChain("indices", framez.WithWorkers(3))
		defer chain.Close()
		_ = chain.AddDataset(d)
		_ = chain.Register(mock, nil, nil)
		if err := chain.Run(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := mock.FrameIndices()
		want := []int{0, 1, 2}
		if len(got) != len(want) {
			t.Fatalf("expected indices %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("expected indices %v, got %v", want, got)
				break
			}
		}
	})

	t.Run("Returns Frame Error", func(t *testing.T) {
		d, _ := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		expectedErr := errors.New("frame failed")
		mock := NewMockPlugin(t, "mock-error").WithFrameError(1, expectedErr)

		chain := framez.NewChain("error")
		defer chain.Close()
		_ = chain.AddDataset(d)
		_ = chain.Register(mock, nil, nil)

		err := chain.Run(ctx)
		if !errors.Is(err, expectedErr) {
			t.Fatalf("expected error %v, got %v", expectedErr, err)
		}
		var ce *framez.ChainError
		if !errors.As(err, &ce) {
			t.Fatalf("expected *framez.ChainError, got %T", err)
		}
		if ce.Frame != 1 {
			t.Errorf("expected failing frame 1, got %d", ce.Frame)
		}
		if mock.PostProcessCount() != 0 {
			t.Errorf("expected no post-process after a failed frame, got %d", mock.PostProcessCount())
		}
	})

	t.Run("Setup Error Stops Before Frames", func(t *testing.T) {
		d, _ := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		expectedErr := errors.New("bad setup")
		mock := NewMockPlugin(t, "mock-setup").WithSetupError(expectedErr)

		chain := framez.NewChain("setup")
		defer chain.Close()
		_ = chain.AddDataset(d)
		_ = chain.Register(mock, nil, nil)

		if err := chain.Setup(ctx); !errors.Is(err, expectedErr) {
			t.Fatalf("expected error %v, got %v", expectedErr, err)
		}
		AssertNotRun(t, mock)
	})

	t.Run("Panics Are Recovered", func(t *testing.T) {
		d, _ := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		mock := NewMockPlugin(t, "mock-panic").WithPanic("boom")

		chain := framez.NewChain("panic")
		defer chain.Close()
		_ = chain.AddDataset(d)
		_ = chain.Register(mock, nil, nil)

		if err := chain.Run(ctx); err == nil {
			t.Fatal("expected error from panicking plugin")
		}
		if chain.State() != framez.StateFailed {
			t.Errorf("expected state %v, got %v", framez.StateFailed, chain.State())
		}
	})

	t.Run("Source Without Inputs", func(t *testing.T) {
		var calls atomic.Int64
		mock := NewMockPlugin(t, "source").
			WithArity(0, 1).
			WithShape(2, 3, 4).
			WithDefaultOutputs("generated").
			WithFunc(func(_ context.Context, _, out []*framez.Frame) error {
				calls.Add(1)
				for i := range out[0].Data() {
					out[0].Data()[i] = 7
				}
				return nil
			})

		chain := framez.NewChain("source")
		defer chain.Close()
		_ = chain.Register(mock, nil, nil)
		if err := chain.Run(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 frames, got %d", calls.Load())
		}

		out, err := chain.Dataset("generated")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := make([]float64, 24)
		for i := range want {
			want[i] = 7
		}
		AssertDataset(t, out, want, 0)
	})

	t.Run("Delay Honours Cancellation", func(t *testing.T) {
		d, _ := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		mock := NewMockPlugin(t, "mock-slow").WithDelay(time.Second)

		chain := framez.NewChain("slow")
		defer chain.Close()
		_ = chain.AddDataset(d)
		_ = chain.Register(mock, nil, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := chain.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		d, _ := NewRampDataset("raw", []int{4, 3, 2}, Stack3D())
		mock := NewMockPlugin(t, "mock-reset")
		chain := framez.NewChain("reset")
		defer chain.Close()
		_ = chain.AddDataset(d)
		_ = chain.Register(mock, nil, nil)
		_ = chain.Run(ctx)

		mock.Reset()
		AssertNotRun(t, mock)
		if len(mock.FrameIndices()) != 0 || mock.SetupCount() != 0 {
			t.Error("expected reset to clear tracking")
		}
	})
}

func TestNewRampDataset(t *testing.T) {
	d, err := NewRampDataset("ramp", []int{2, 3}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	AssertDataset(t, d, []float64{0, 1, 2, 3, 4, 5}, 0)

	if _, err := NewRampDataset("bad", []int{2, 0}, nil); !errors.Is(err, framez.ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestWaitForFrames(t *testing.T) {
	mock := NewMockPlugin(t, "mock-wait")
	if WaitForFrames(mock, 1, 30*time.Millisecond) {
		t.Error("expected timeout with no frames")
	}

	ParallelTest(t, 4, func(int) {
		_ = mock.ProcessFrames(context.Background(), nil, nil)
	})
	if !WaitForFrames(mock, 4, time.Second) {
		t.Errorf("expected 4 frames, got %d", mock.FrameCount())
	}
}
