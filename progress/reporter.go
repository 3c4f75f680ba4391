package progress

import (
	"fmt"
	"math"
	"sync"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/errors"
)

// Payload is what a display renders for one progress update.
type Payload struct {
	DoneLabel  string
	TotalLabel string
	Percent    int
}

// String formats the payload the way the loading screen shows it.
func (p Payload) String() string {
	return fmt.Sprintf("%d%% [%s / %s]", p.Percent, p.DoneLabel, p.TotalLabel)
}

// Compute converts a byte count against a known total into a display payload.
// total must be positive for a meaningful percentage; zero yields 100%.
func Compute(done, total int64) Payload {
	percent := 100
	if total > 0 {
		percent = int(math.Round(float64(done) / float64(total) * 100))
	}
	percent = max(0, min(100, percent))
	return Payload{
		Percent:    percent,
		DoneLabel:  MiB(done),
		TotalLabel: MiB(total),
	}
}

// MiB formats n bytes in mebibytes with one decimal place.
func MiB(n int64) string {
	return fmt.Sprintf("%.1f MiB", float64(n)/units.MiB)
}

// Sink is the part of a display the reporter writes to.
type Sink interface {
	SetProgress(percent int)
	SetLabel(text string)
}

// SizeSource reports the expected total, if known.
type SizeSource interface {
	Get() (int64, bool)
}

// Reporter renders transfer events against the expected size.
// Events arriving before the size is known are dropped without rendering.
type Reporter struct {
	sink      Sink
	size      SizeSource
	logger    *zap.Logger
	tolerance int64

	mu        sync.Mutex
	overshoot map[uuid.UUID]bool
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithLogger sets the logger used for the overshoot diagnostic.
func WithLogger(l *zap.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = l }
}

// WithTolerance allows observed bytes to exceed the expected size by n
// before the transfer is considered overshooting.
func WithTolerance(n int64) ReporterOption {
	return func(r *Reporter) { r.tolerance = max(0, n) }
}

// NewReporter creates a reporter writing to sink.
func NewReporter(sink Sink, size SizeSource, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		sink:      sink,
		size:      size,
		logger:    zap.NewNop(),
		overshoot: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnEvent implements Tracker.
func (r *Reporter) OnEvent(e Event) {
	total, ok := r.size.Get()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overshoot[e.TransferID] {
		return
	}
	if e.Observed > total+r.tolerance {
		r.overshoot[e.TransferID] = true
		r.logger.Warn("downloaded binary size is larger than expected WASM size",
			zap.String("source", e.Source),
			zap.Int64("observed", e.Observed),
			zap.Int64("expected", total),
			zap.Error(errors.Overshoot(e.Source, e.Observed, total)))
		return
	}

	p := Compute(min(e.Bytes, total), total)
	r.sink.SetProgress(p.Percent)
	r.sink.SetLabel(p.String())
}

// Overshot reports whether the transfer stopped rendering percentages.
func (r *Reporter) Overshot(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overshoot[id]
}
