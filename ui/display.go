package ui

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-loader/loadstate"
	"github.com/wippyai/wasm-loader/progress"
)

// StallNotice is shown when the module has not become ready in time.
const StallNotice = "Not working? The module is still loading. " +
	"A slow connection can take a while; reload to try again."

// Display is the surface the loader writes to. The loader never reads
// from it.
type Display interface {
	progress.Sink
	loadstate.Surface
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// LogDisplay renders the loading screen as log lines, for output that is
// not a terminal. Progress is logged when the percentage changes.
type LogDisplay struct {
	logger *zap.Logger

	mu         sync.Mutex
	percent    int
	lastLogged int
}

// NewLogDisplay creates a display writing to logger.
func NewLogDisplay(logger *zap.Logger) *LogDisplay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDisplay{logger: logger, percent: -1, lastLogged: -1}
}

func (d *LogDisplay) SetProgress(percent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.percent = percent
}

func (d *LogDisplay) SetLabel(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.percent == d.lastLogged {
		return
	}
	d.lastLogged = d.percent
	d.logger.Info("loading", zap.String("progress", text))
}

func (d *LogDisplay) HideLoading() {
	d.logger.Debug("loading screen hidden")
}

func (d *LogDisplay) ShowSurface() {
	d.logger.Info("ready")
}

func (d *LogDisplay) ShowStallNotice() {
	d.logger.Warn(StallNotice)
}
