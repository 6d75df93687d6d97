// Package framez runs chains of plugins over large N-dimensional datasets,
// with each plugin declaring how it wants its data sliced.
//
// # Overview
//
// Tomography and spectroscopy experiments produce arrays far too large to
// hand to a processing step in one piece. framez lets every step, a plugin,
// state which axes it needs in full and how many slices at a time it can
// handle. The chain then cuts each dataset into frames, feeds them through the
// plugin and writes the results back. Plugin authors never touch storage
// or iteration.
//
// # Core Concepts
//
//   - Dataset: an N-d array with a shape, one label per axis, named patterns
//     and metadata. Contents live in a Store allocated from a Backend.
//   - Pattern: a split of a dataset's axes into core axes (kept whole) and
//     slice axes (iterated). SINOGRAM, PROJECTION and SPECTRUM are common ones.
//   - PluginData: binds a dataset to one plugin with a selected pattern and a
//     maximum number of slices per frame, and hands out Frames.
//   - Frame: one batch of slices, shape [n, core extents...].
//   - Plugin: Setup once, then ProcessFrames once per frame.
//   - Chain: resolves the dataset graph, sets up every plugin left to right,
//     then runs them one after another.
//
// # Frames
//
// For a dataset of shape (100, 50, 200) and the sinogram pattern with core
// axes (0, 2) and slice axis 1, a plugin asking for 10 slices per frame gets
// 5 frames, each of shape [10, 100, 200]. Frame 0 holds axis-1 coordinates
// 0 through 9. With several slice axes, coordinates are flattened row-major
// over SliceDir, last axis fastest.
//
// # Usage Example
//
//	tomo := framez.NewDataset("tomo")
//	_ = tomo.CreateDataset(
//	    framez.WithShape(91, 135, 160),
//	    framez.WithAxisLabels(framez.MustAxisLabels(
//	        "rotation_angle.degrees", "detector_y.pixel", "detector_x.pixel")...),
//	)
//	_ = tomo.AddPattern(framez.PatternProjection, framez.Pattern{CoreDir: []int{1, 2}, SliceDir: []int{0}})
//	_ = tomo.Allocate(framez.MemoryBackend{})
//
//	chain := framez.NewChain("example", framez.WithWorkers(4))
//	_ = chain.AddDataset(tomo)
//	_ = chain.Register(framez.Map("double", framez.PatternProjection, 8,
//	    func(v float64) float64 { return 2 * v }), nil, nil)
//
//	if err := chain.Run(ctx); err != nil {
//	    return err
//	}
//	doubled, _ := chain.Dataset("tomo")
//
// # Error Handling
//
// Errors wrap one of the package sentinels (ErrShape, ErrPattern, ErrArity,
// ErrParameter, ErrIndex and friends) and are classified with errors.Is.
// Chain failures are *ChainError values naming the plugin, step, frame and
// lifecycle phase. Configuration errors all surface from Chain.Setup, before
// any data is read. A failing plugin's outputs are invalidated and later
// plugins never run.
//
// # Concurrency
//
// Plugins run strictly one after another. Within a plugin, WithWorkers allows
// several frames in flight; frames never overlap, and outputs are committed
// frame by frame only after ProcessFrames succeeds.
package framez
