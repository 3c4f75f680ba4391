// Package loader wires the size oracle, the stream tap, the progress
// reporter and the load state machine around one hosted artifact.
//
// A page load runs two tasks side by side: the side-channel size request
// and the observed download feeding instantiation. Neither waits for the
// other. The watchdog is armed when the load starts and the surface is
// revealed when the host reports the runtime initialized.
package loader

import (
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-loader/config"
	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/host"
	"github.com/wippyai/wasm-loader/loadstate"
	"github.com/wippyai/wasm-loader/progress"
	"github.com/wippyai/wasm-loader/size"
	"github.com/wippyai/wasm-loader/tap"
	"github.com/wippyai/wasm-loader/ui"
)

// Options carries the collaborators of a Loader. Only Config and Display
// are required.
type Options struct {
	Config  config.Config
	Display ui.Display
	Logger  *zap.Logger

	// Client fetches the artifact. SizeClient fetches the size resource.
	// Both default to http.DefaultClient.
	Client     *http.Client
	SizeClient *http.Client

	// Clock drives the watchdog. Defaults to the system clock.
	Clock loadstate.Clock

	// Stdout and Stderr receive the guest's output streams.
	Stdout io.Writer
	Stderr io.Writer

	// Modules are extra host modules instantiated before the guest.
	Modules []host.HostModule
}

// Loader performs one page load.
type Loader struct {
	cfg    config.Config
	logger *zap.Logger
	client *http.Client

	page        *url.URL
	artifactURL string

	expected *size.Expected
	oracle   *size.Oracle
	reporter *progress.Reporter
	machine  *loadstate.Machine
	engine   *host.Engine
	strategy *tap.Strategy
	host     *host.Host
}

// New validates the configuration and assembles a Loader. The wazero
// runtime is created here and released by Close.
func New(ctx context.Context, opts Options) (*Loader, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "validate config")
	}
	if opts.Display == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "no display")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	page, err := cfg.Page()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "page url")
	}
	ref, err := url.Parse(cfg.Artifact)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "artifact url")
	}
	artifactURL := page.ResolveReference(ref).String()

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	l := &Loader{
		cfg:         cfg,
		logger:      logger,
		client:      client,
		page:        page,
		artifactURL: artifactURL,
		expected:    &size.Expected{},
	}

	l.oracle = size.NewOracle(size.URLFor(artifactURL, cfg.SizeSuffix), logger.Named("size"))
	l.oracle.Timeout = cfg.SizeTimeout.Duration
	if opts.SizeClient != nil {
		l.oracle.Client = opts.SizeClient
	}

	l.reporter = progress.NewReporter(opts.Display, l.expected,
		progress.WithLogger(logger.Named("progress")),
		progress.WithTolerance(cfg.OvershootTolerance))

	machineOpts := []loadstate.Option{
		loadstate.WithWatchdog(cfg.Watchdog.Duration),
		loadstate.WithLogger(logger.Named("loadstate")),
	}
	if opts.Clock != nil {
		machineOpts = append(machineOpts, loadstate.WithClock(opts.Clock))
	}
	l.machine = loadstate.New(opts.Display, machineOpts...)

	l.engine = host.NewEngine(ctx, &host.EngineConfig{
		MemoryLimitPages:       cfg.Engine.MemoryLimitPages,
		RequireWasmContentType: cfg.Engine.RequireWasmContentType,
	}, logger.Named("engine"))

	tracker := progress.Multi(l.reporter, progress.NewTracker(l.logTransfer))
	l.strategy = &tap.Strategy{
		Tap:             tap.New(l.expected, tracker, logger.Named("tap")),
		Next:            l.engine,
		ReleaseOriginal: true,
	}

	l.host = &host.Host{
		InstantiateWasm:      l.instantiate,
		OnRuntimeInitialized: func() { l.machine.MarkReady() },
		Stdout:               opts.Stdout,
		Stderr:               opts.Stderr,
		Logger:               logger.Named("host"),
		ProgramName:          cfg.Engine.ProgramName,
		Arguments:            host.ArgumentsFromQuery(page.Query()),
		Modules:              opts.Modules,
	}
	return l, nil
}

// Load arms the watchdog, then runs the size request and the observed
// download concurrently. It returns once the guest is instantiated or the
// download fails. A failed size request only disables percentages.
func (l *Loader) Load(ctx context.Context) error {
	l.logger.Info("loading",
		zap.String("artifact", l.artifactURL),
		zap.String("size", l.oracle.URL),
		zap.Strings("args", l.host.Arguments))

	l.machine.Arm()

	g, gctx := errgroup.WithContext(ctx)
	sizeCtx, cancelSize := context.WithCancel(gctx)
	defer cancelSize()

	g.Go(func() error {
		// The error is already logged by the oracle.
		_ = l.oracle.Resolve(sizeCtx, l.expected)
		return nil
	})
	g.Go(func() error {
		defer cancelSize()
		return l.host.Start(gctx)
	})
	return g.Wait()
}

// instantiate is the custom instantiation strategy handed to the host: it
// fetches the artifact and routes the response through the tap.
func (l *Loader) instantiate(ctx context.Context, imports host.Imports, onSuccess host.SuccessFunc) error {
	if d := l.cfg.DownloadTimeout.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.artifactURL, nil)
	if err != nil {
		return errors.New(errors.PhaseFetch, errors.KindInvalidInput).
			Source(l.artifactURL).Detail("create request").Cause(err).Build()
	}
	req.Header.Set("Accept", host.WasmContentType)

	resp, err := l.client.Do(req)
	if err != nil {
		return errors.Fetch(errors.PhaseFetch, l.artifactURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return errors.Status(errors.PhaseFetch, l.artifactURL, resp.StatusCode)
	}
	return l.strategy.InstantiateStreaming(ctx, resp, imports, onSuccess)
}

func (l *Loader) logTransfer(e progress.Event) {
	if !e.Final {
		return
	}
	l.logger.Info("artifact downloaded",
		zap.String("transfer", e.TransferID.String()),
		zap.String("source", e.Source),
		zap.String("size", progress.MiB(e.Observed)))
}

// Run calls the guest's entry point. It must follow a successful Load.
func (l *Loader) Run(ctx context.Context) error {
	return l.host.Run(ctx)
}

// Close releases the guest and the runtime.
func (l *Loader) Close(ctx context.Context) error {
	return goerrors.Join(l.host.Close(ctx), l.engine.Close(ctx))
}

// Machine returns the load state machine.
func (l *Loader) Machine() *loadstate.Machine { return l.machine }

// Expected returns the expected artifact size.
func (l *Loader) Expected() *size.Expected { return l.expected }

// Reporter returns the progress reporter.
func (l *Loader) Reporter() *progress.Reporter { return l.reporter }

// Host returns the hosted module.
func (l *Loader) Host() *host.Host { return l.host }

// ArtifactURL returns the resolved artifact location.
func (l *Loader) ArtifactURL() string { return l.artifactURL }

// SizeURL returns the resolved size resource location.
func (l *Loader) SizeURL() string { return l.oracle.URL }
