package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zoobzio/framez"
	"github.com/zoobzio/framez/plugins"
	"github.com/zoobzio/framez/processlist"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const reportTimeout = 5 * time.Second

// defaultProcessList runs when no process list file is given.
const defaultProcessList = `name: tomo-demo
plugins:
  - id: Scale
    parameters:
      factor: 0.5
      pattern: PROJECTION
  - id: Quantisation
    parameters:
      num_bits: 8
      pattern: SINOGRAM
`

var (
	angles int
	rows   int
	cols   int

	runCmd = &cobra.Command{
		Use:   "run [process-list]",
		Short: "Run a process list over a synthetic tomography dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProcessList,
	}
)

func init() {
	for _, c := range []*cobra.Command{runCmd, describeCmd} {
		c.Flags().IntVar(&angles, "angles", 91, "rotation angles of the synthetic dataset, 0 for none")
		c.Flags().IntVar(&rows, "rows", 32, "detector rows of the synthetic dataset")
		c.Flags().IntVar(&cols, "cols", 64, "detector columns of the synthetic dataset")
	}
}

// loadChain reads the process list named by args, or the built-in one, and
// builds a chain over a fresh synthetic dataset. With zero angles the chain
// has no loader dataset and its first plugin must take no inputs.
func loadChain(args []string) (*framez.Chain, error) {
	var (
		pl  *processlist.ProcessList
		err error
	)
	if len(args) == 1 {
		pl, err = processlist.Load(args[0])
	} else {
		pl, err = processlist.Parse([]byte(defaultProcessList))
	}
	if err != nil {
		return nil, err
	}

	chain, err := pl.Build(plugins.Registry(), cfg.ChainOptions(logger)...)
	if err != nil {
		return nil, err
	}
	if angles == 0 {
		return chain, nil
	}
	tomo, err := plugins.NewTomoDataset(plugins.TomoName, angles, rows, cols, framez.MemoryBackend{})
	if err != nil {
		return nil, err
	}
	if err := chain.AddDataset(tomo); err != nil {
		return nil, err
	}
	return chain, nil
}

// awaitReports waits for n plugin reports or until timeout passes.
func awaitReports(reported <-chan struct{}, n int, timeout time.Duration) {
	deadline := time.After(timeout)
	for ; n > 0; n-- {
		select {
		case <-reported:
		case <-deadline:
			return
		}
	}
}

func runProcessList(cmd *cobra.Command, args []string) error {
	chain, err := loadChain(args)
	if err != nil {
		return err
	}
	defer chain.Close()

	out := cmd.OutOrStdout()
	heading := color.New(color.FgCyan, color.Bold)
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	dim := color.New(color.FgHiBlack)

	// Hook handlers run on their own goroutines.
	var mu sync.Mutex
	reported := make(chan struct{}, chain.Len())
	if err := chain.OnPluginComplete(func(_ context.Context, e framez.ChainEvent) error {
		defer func() { reported <- struct{}{} }()
		mu.Lock()
		defer mu.Unlock()
		if e.Success {
			ok.Fprintf(out, "  ✓ %-28s", e.Plugin)
		} else {
			bad.Fprintf(out, "  ✗ %-28s", e.Plugin)
		}
		dim.Fprintf(out, " %4d frames  %v\n", e.TotalFrames, e.Duration)
		return nil
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	heading.Fprintf(out, "Running %s (%d plugins, %d workers)\n", chain.Name(), chain.Len(), cfg.Workers)
	runErr := chain.Run(ctx)

	// A failed step is the last one to report.
	expect := chain.Len()
	if runErr != nil {
		expect = 0
		if p := chain.Progress(); p.Plugin != "" {
			expect = p.Step + 1
		}
	}
	awaitReports(reported, expect, reportTimeout)

	if runErr != nil {
		logger.Error("run failed", zap.Error(runErr))
		return runErr
	}
	m := chain.Metrics()
	ok.Fprintf(out, "Done: %d frames committed\n", int(m.Counter(framez.ChainFramesTotal).Value()))
	seen := make(map[framez.Name]bool)
	for _, ds := range chain.Describe().Datasets {
		if ds.Producer == "" || seen[ds.Name] {
			continue
		}
		seen[ds.Name] = true
		d, err := chain.Dataset(ds.Name)
		if err != nil || d.Size() == 0 {
			continue
		}
		data := make([]float64, d.Size())
		if err := d.ReadRegion(make([]int, d.Rank()), d.Shape(), data); err != nil {
			continue
		}
		fmt.Fprintf(out, "  %-16s %v  min=%.4g max=%.4g mean=%.4g\n",
			ds.Name, ds.Shape, floats.Min(data), floats.Max(data), stat.Mean(data, nil))
	}
	return nil
}
