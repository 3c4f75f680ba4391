package loadstate

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWatchdog is how long loading may take before the stall notice.
const DefaultWatchdog = 5 * time.Second

// Phase is the load phase of the hosted module.
type Phase int

const (
	Loading Phase = iota
	Ready
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Surface is what the machine toggles on transitions.
type Surface interface {
	HideLoading()
	ShowSurface()
	ShowStallNotice()
}

// Machine tracks Loading -> Ready and the stall watchdog.
// Ready is terminal. The stall notice, once shown, stays shown; it is
// advisory and does not prevent the Ready transition.
type Machine struct {
	surface  Surface
	clock    Clock
	logger   *zap.Logger
	watchdog time.Duration

	mu    sync.Mutex
	phase Phase
	stall bool
	armed bool
	timer Timer
	ready chan struct{}
}

// Option configures a Machine.
type Option func(*Machine)

// WithWatchdog overrides the stall watchdog duration.
func WithWatchdog(d time.Duration) Option {
	return func(m *Machine) { m.watchdog = d }
}

// WithClock overrides the clock used to schedule the watchdog.
func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New creates a machine in Loading. Call Arm to start the watchdog.
func New(surface Surface, opts ...Option) *Machine {
	m := &Machine{
		surface:  surface,
		clock:    SystemClock,
		logger:   zap.NewNop(),
		watchdog: DefaultWatchdog,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arm starts the one-shot watchdog. Arming twice, or after Ready, does nothing.
func (m *Machine) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed || m.phase == Ready {
		return
	}
	m.armed = true
	m.timer = m.clock.AfterFunc(m.watchdog, m.fire)
}

func (m *Machine) fire() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != Loading || m.stall {
		return
	}
	m.stall = true
	m.logger.Warn("module has not become ready, showing stall notice",
		zap.Duration("watchdog", m.watchdog))
	m.surface.ShowStallNotice()
}

// MarkReady moves Loading -> Ready, hides the loading UI, reveals the
// surface and cancels the watchdog. It reports whether this call made the
// transition; later calls are no-ops.
func (m *Machine) MarkReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == Ready {
		return false
	}
	m.phase = Ready
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.logger.Info("module ready", zap.Bool("stall_notice_shown", m.stall))
	m.surface.HideLoading()
	m.surface.ShowSurface()
	close(m.ready)
	return true
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// StallNoticeShown reports whether the watchdog fired while loading.
func (m *Machine) StallNoticeShown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stall
}

// Ready returns a channel closed on the Ready transition.
func (m *Machine) Ready() <-chan struct{} {
	return m.ready
}
