package framez

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// runFrames dispatches every frame of a step to a bounded set of workers.
// A semaphore limits how many frames are in flight; frames are queued in
// index order, so a single worker processes them strictly sequentially.
// The first failing frame cancels the rest. It returns the failing frame
// index with the error, or the next undispatched index when ctx ends first.
func (c *Chain) runFrames(ctx context.Context, runID string, step int, st *step) (int, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, c.workers)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		failed   = -1
		firstErr error
	)
	record := func(frame int, err error) {
		once.Do(func() {
			failed, firstErr = frame, err
			cancel()
		})
	}

	next := 0
dispatch:
	for ; next < st.frames; next++ {
		// Acquire semaphore slot (blocks if all workers busy)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		// A failed frame cancels before releasing its slot.
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(frame int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.processFrame(ctx, runID, step, st, frame); err != nil {
				record(frame, err)
			}
		}(next)
	}
	wg.Wait()

	if firstErr != nil {
		return failed, firstErr
	}
	if next < st.frames {
		if err := parent.Err(); err != nil {
			return next, err
		}
	}
	return -1, nil
}

// processFrame reads one frame per input, hands zeroed frames for the
// outputs to the plugin and commits them if it succeeds. Nothing is committed
// once ctx is done.
func (c *Chain) processFrame(ctx context.Context, runID string, step int, st *step, frame int) (err error) {
	p := st.Plugin
	b := st.binding

	ctx, span := c.tracer.StartSpan(ctx, ChainFrameSpan)
	span.SetTag(ChainTagPluginName, p.Name())
	span.SetTag(ChainTagStep, strconv.Itoa(step))
	span.SetTag(ChainTagFrame, strconv.Itoa(frame))
	emitCtx := context.WithoutCancel(ctx)
	start := c.clock.Now()
	defer func() {
		duration := c.clock.Since(start)
		c.metrics.Gauge(ChainFrameDurationMs).Set(float64(duration.Milliseconds()))
		if err == nil {
			span.SetTag(ChainTagSuccess, "true")
			c.metrics.Counter(ChainFramesTotal).Inc()
			c.framesDone.Add(1)
		} else {
			span.SetTag(ChainTagSuccess, "false")
			span.SetTag(ChainTagError, err.Error())
			c.metrics.Counter(ChainFramesFailed).Inc()
		}
		span.Finish()
		_ = c.hooks.Emit(emitCtx, ChainEventFrameComplete, ChainEvent{ //nolint:errcheck
			RunID:       runID,
			Chain:       c.name,
			Plugin:      p.Name(),
			Step:        step,
			Frame:       frame,
			TotalFrames: st.frames,
			Success:     err == nil,
			Error:       err,
			Duration:    duration,
			Timestamp:   c.clock.Now(),
		})
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.frameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(ctx, c.frameTimeout)
		defer cancel()
	}

	in := make([]*Frame, 0, len(b.inData))
	out := make([]*Frame, 0, len(b.outData))
	defer func() {
		for _, f := range append(in, out...) {
			f.Release()
		}
	}()
	for _, pd := range b.inData {
		f, err := pd.Frame(frame)
		if err != nil {
			return err
		}
		in = append(in, f)
	}
	for _, pd := range b.outData {
		f, err := pd.NewFrame(frame)
		if err != nil {
			return err
		}
		out = append(out, f)
	}

	active := c.active.Add(1)
	c.metrics.Gauge(ChainWorkersActive).Set(float64(active))
	err = processFrames(ctx, p, in, out)
	active = c.active.Add(-1)
	c.metrics.Gauge(ChainWorkersActive).Set(float64(active))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, f := range out {
		if err := f.Commit(); err != nil {
			return err
		}
	}
	b.logger.Debug("frame committed", zap.Int("frame", frame), zap.String("run_id", runID))
	return nil
}
