package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/config"
	"github.com/wippyai/wasm-loader/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

type flags struct {
	configPath        string
	artifact          string
	sizeSuffix        string
	lang              string
	watchdog          time.Duration
	display           string
	logLevel          string
	logFormat         string
	memoryLimitPages  uint32
	strictContentType bool
	tolerance         int64
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "run <page-url>",
		Short: "Fetch, instantiate and run a WebAssembly artifact with load progress",
		Long: `run downloads the artifact next to the given page URL, shows download
progress against the size published in <artifact>.size, instantiates it
with WASI and calls its entry point once the runtime is initialized.

The lang query parameter of the page URL is passed to the module as
--language <value>.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f, args)
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			}, os.Stderr)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}
	cmd.SetVersionTemplate("run version {{.Version}}\n")

	bindFlags(cmd.Flags(), &f)

	return cmd
}

func bindFlags(fl *pflag.FlagSet, f *flags) {
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fl.StringVar(&f.artifact, "artifact", config.DefaultArtifact, "artifact path relative to the page URL")
	fl.StringVar(&f.sizeSuffix, "size-suffix", config.DefaultSizeSuffix, "suffix of the size resource")
	fl.StringVar(&f.lang, "lang", "", "language passed to the module")
	fl.DurationVar(&f.watchdog, "watchdog", config.DefaultWatchdog, "delay before the stall notice")
	fl.StringVar(&f.display, "display", config.DefaultDisplay, "display mode: auto, terminal or log")
	fl.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "log level")
	fl.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "log format: console or json")
	fl.Uint32Var(&f.memoryLimitPages, "memory-limit-pages", 0, "guest memory limit in 64KiB pages (0 = runtime default)")
	fl.BoolVar(&f.strictContentType, "strict-content-type", false, "reject artifacts not served as application/wasm")
	fl.Int64Var(&f.tolerance, "overshoot-tolerance", config.DefaultOvershootAllowed, "bytes past the expected size tolerated before progress stops")
}

// resolveConfig loads the config file and applies explicitly set flags on top.
func resolveConfig(cmd *cobra.Command, f flags, args []string) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	if len(args) == 1 {
		cfg.PageURL = args[0]
	}
	fl := cmd.Flags()
	if fl.Changed("artifact") {
		cfg.Artifact = f.artifact
	}
	if fl.Changed("size-suffix") {
		cfg.SizeSuffix = f.sizeSuffix
	}
	if fl.Changed("lang") {
		cfg.Lang = f.lang
	}
	if fl.Changed("watchdog") {
		cfg.Watchdog = config.Duration{Duration: f.watchdog}
	}
	if fl.Changed("display") {
		cfg.Display = f.display
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if fl.Changed("memory-limit-pages") {
		cfg.Engine.MemoryLimitPages = f.memoryLimitPages
	}
	if fl.Changed("strict-content-type") {
		cfg.Engine.RequireWasmContentType = f.strictContentType
	}
	if fl.Changed("overshoot-tolerance") {
		cfg.OvershootTolerance = f.tolerance
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	d := selectDisplay(cfg, logger)

	guestErr := logging.NewLineWriter(logger.Named("guest"), zap.WarnLevel)
	defer guestErr.Flush()

	ld, err := newLoader(ctx, cfg, d.display, logger, guestErr)
	if err != nil {
		return err
	}
	defer ld.Close(context.Background()) //nolint:errcheck

	if err := d.load(ctx, ld); err != nil {
		return err
	}
	return ld.Run(ctx)
}
