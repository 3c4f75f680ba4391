package host

import (
	"context"
	"crypto/rand"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/docker/go-units"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/errors"
)

const (
	// WasmContentType is the media type browsers require for streaming
	// instantiation.
	WasmContentType = "application/wasm"

	// DefaultProgramName is argv[0] handed to the guest.
	DefaultProgramName = "this.program"

	// InitializeFunction is the reactor entry point run during instantiation.
	InitializeFunction = "_initialize"
)

// EngineConfig holds configuration for engine creation
type EngineConfig struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// RequireWasmContentType rejects responses whose Content-Type is not
	// application/wasm, as browser streaming instantiation does.
	RequireWasmContentType bool
}

// Engine is the wazero-backed instantiation primitive.
type Engine struct {
	runtime    wazero.Runtime
	logger     *zap.Logger
	strictType bool
	wasiMu     sync.Mutex
}

// NewEngine creates an engine with its own wazero runtime.
func NewEngine(ctx context.Context, cfg *EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	strict := false
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		strict = cfg.RequireWasmContentType
	}
	return &Engine{
		runtime:    wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:     logger,
		strictType: strict,
	}
}

// Runtime exposes the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases the runtime and every module instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InstantiateStreaming reads resp.Body to the end, compiles it and
// instantiates it against imports. onSuccess is called once on success and
// never on failure. resp.Body is always closed.
func (e *Engine) InstantiateStreaming(ctx context.Context, resp *http.Response, imports Imports, onSuccess SuccessFunc) error {
	defer resp.Body.Close() //nolint:errcheck

	source := ""
	if resp.Request != nil && resp.Request.URL != nil {
		source = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Status(errors.PhaseFetch, source, resp.StatusCode)
	}
	if err := e.checkContentType(resp.Header.Get("Content-Type"), source); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New(errors.PhaseFetch, errors.KindIO).
			Source(source).Detail("read artifact").Cause(err).Build()
	}
	e.logger.Debug("artifact received",
		zap.String("source", source),
		zap.String("size", units.HumanSize(float64(len(data)))))

	compiled, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return errors.Instantiation("compile module", err)
	}

	if err := e.ensureWASI(ctx); err != nil {
		_ = compiled.Close(ctx)
		return err
	}
	for _, hm := range imports.Modules {
		if err := hm(ctx, e.runtime); err != nil {
			_ = compiled.Close(ctx)
			return errors.Instantiation("instantiate host module", err)
		}
	}

	instance, err := e.runtime.InstantiateModule(ctx, compiled, moduleConfig(imports))
	if err != nil {
		_ = compiled.Close(ctx)
		return errors.Instantiation("instantiate module", err)
	}

	onSuccess(instance, compiled)
	return nil
}

func (e *Engine) checkContentType(header, source string) error {
	mediaType, _, err := mime.ParseMediaType(header)
	if err == nil && mediaType == WasmContentType {
		return nil
	}
	if e.strictType {
		return errors.New(errors.PhaseFetch, errors.KindInvalidData).
			Source(source).
			Detail("incorrect response MIME type %q, expected %q", header, WasmContentType).
			Build()
	}
	e.logger.Debug("artifact served without wasm content type",
		zap.String("source", source),
		zap.String("content_type", header))
	return nil
}

func (e *Engine) ensureWASI(ctx context.Context) error {
	e.wasiMu.Lock()
	defer e.wasiMu.Unlock()

	if e.runtime.Module(wasi_snapshot_preview1.ModuleName) != nil {
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return errors.Instantiation("instantiate WASI", err)
	}
	return nil
}

func moduleConfig(imports Imports) wazero.ModuleConfig {
	name := imports.Name
	if name == "" {
		name = DefaultProgramName
	}
	argv := append([]string{name}, imports.Args...)

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithArgs(argv...).
		WithStartFunctions(InitializeFunction).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
	if imports.Stdout != nil {
		cfg = cfg.WithStdout(imports.Stdout)
	}
	if imports.Stderr != nil {
		cfg = cfg.WithStderr(imports.Stderr)
	}
	return cfg
}
