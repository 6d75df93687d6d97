package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zoobzio/framez/internal/config"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	cfgFile string
	cfg     config.Config
	logger  = zap.NewNop()

	rootCmd = &cobra.Command{
		Use:   "framez",
		Short: "Run plugin chains over N-dimensional datasets",
		Long: `framez runs process lists, ordered chains of plugins, over large
N-dimensional datasets. Each plugin declares how its data is sliced into
frames; framez does the slicing, scheduling and write-back.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync() //nolint:errcheck
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.Int("workers", 1, "frames processed concurrently per plugin")
	flags.String("backend", config.BackendMemory, "storage backend: memory or chunked")
	flags.IntSlice("chunk-shape", nil, "chunk shape for the chunked backend")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "also write JSON logs to this rotating file")
	flags.Bool("dev", false, "human-readable console logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(describeCmd)
}

// loadConfig reads .env, the config file, FRAMEZ_* variables and flags.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"workers":         "workers",
		"backend":         "backend",
		"chunk_shape":     "chunk-shape",
		"log.level":       "log-level",
		"log.file":        "log-file",
		"log.development": "dev",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	logger = cfg.NewLogger()
	return nil
}
