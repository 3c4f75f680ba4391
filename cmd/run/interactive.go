package main

import (
	"context"
	"io"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/config"
	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/loader"
	"github.com/wippyai/wasm-loader/ui"
)

// frontend pairs a display with the way a load is driven through it.
type frontend struct {
	display ui.Display
	load    func(ctx context.Context, ld *loader.Loader) error
}

func selectDisplay(cfg config.Config, logger *zap.Logger) frontend {
	interactive := cfg.Display == config.DisplayTerminal ||
		(cfg.Display == config.DisplayAuto && ui.IsTerminal(os.Stdout))

	if !interactive {
		return frontend{
			display: ui.NewLogDisplay(logger.Named("display")),
			load: func(ctx context.Context, ld *loader.Loader) error {
				return ld.Load(ctx)
			},
		}
	}

	t := ui.NewTerminal(path.Base(cfg.Artifact), os.Stdin, os.Stdout)
	return frontend{
		display: t,
		load: func(ctx context.Context, ld *loader.Loader) error {
			return loadInteractive(ctx, ld, t)
		},
	}
}

// loadInteractive runs the loading screen in the foreground while the load
// proceeds. The screen exits on its own once the surface is shown.
func loadInteractive(ctx context.Context, ld *loader.Loader, t *ui.Terminal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := ld.Load(ctx)
		if err != nil {
			t.Quit()
		}
		done <- err
	}()

	interrupted, err := t.Run()
	if err != nil {
		cancel()
		<-done
		return errors.Wrap(errors.PhaseFetch, errors.KindIO, err, "loading screen")
	}
	if interrupted {
		cancel()
		<-done
		return errors.New(errors.PhaseFetch, errors.KindInvalidInput).
			Detail("interrupted before the module was ready").Build()
	}
	return <-done
}

func newLoader(ctx context.Context, cfg config.Config, display ui.Display, logger *zap.Logger, stderr io.Writer) (*loader.Loader, error) {
	return loader.New(ctx, loader.Options{
		Config:  cfg,
		Display: display,
		Logger:  logger,
		Stdout:  os.Stdout,
		Stderr:  stderr,
	})
}
