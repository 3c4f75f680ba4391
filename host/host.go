package host

import (
	"context"
	goerrors "errors"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/errors"
)

// StartFunction is the command entry point run by Host.Run.
const StartFunction = "_start"

// Strategy is a custom instantiation strategy. It receives the imports the
// guest must be instantiated against and calls onSuccess exactly once when
// the guest is ready.
type Strategy func(ctx context.Context, imports Imports, onSuccess SuccessFunc) error

// Host is the hosted module's contract with the page: how it is
// instantiated, what it is told at startup and who hears that it is ready.
type Host struct {
	// InstantiateWasm performs instantiation. Required.
	InstantiateWasm Strategy
	// OnRuntimeInitialized is invoked once, after the first successful
	// instantiation.
	OnRuntimeInitialized func()
	Stdout               io.Writer
	Stderr               io.Writer
	Logger               *zap.Logger
	ProgramName          string
	Arguments            []string
	Modules              []HostModule

	mu       sync.Mutex
	instance api.Module
	compiled wazero.CompiledModule
}

// Start instantiates the guest through InstantiateWasm. It returns once the
// strategy returns; a strategy that returns without calling its success
// callback is an error.
func (h *Host) Start(ctx context.Context) error {
	if h.InstantiateWasm == nil {
		return errors.InvalidInput(errors.PhaseInstantiate, "no instantiation strategy")
	}

	imports := Imports{
		Stdout:  h.Stdout,
		Stderr:  h.Stderr,
		Name:    h.ProgramName,
		Args:    h.Arguments,
		Modules: h.Modules,
	}
	if err := h.InstantiateWasm(ctx, imports, h.succeeded); err != nil {
		return err
	}
	if h.Instance() == nil {
		return errors.Instantiation("strategy returned without reporting success", nil)
	}
	return nil
}

func (h *Host) succeeded(instance api.Module, compiled wazero.CompiledModule) {
	h.mu.Lock()
	if h.instance != nil {
		h.mu.Unlock()
		h.logger().Warn("ignoring duplicate instantiation", zap.Error(errors.DuplicateCallback()))
		return
	}
	h.instance = instance
	h.compiled = compiled
	h.mu.Unlock()

	h.logger().Info("runtime initialized", zap.String("module", instance.Name()))
	if h.OnRuntimeInitialized != nil {
		h.OnRuntimeInitialized()
	}
}

// Instance returns the instantiated guest, or nil before Start succeeds.
func (h *Host) Instance() api.Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance
}

// Run calls the guest's command entry point if it exports one. A guest
// exiting with code 0 is a success.
func (h *Host) Run(ctx context.Context) error {
	instance := h.Instance()
	if instance == nil {
		return errors.InvalidInput(errors.PhaseRun, "module not instantiated")
	}

	fn := instance.ExportedFunction(StartFunction)
	if fn == nil {
		h.logger().Debug("guest has no entry point", zap.String("function", StartFunction))
		return nil
	}

	_, err := fn.Call(ctx)
	if err == nil {
		return nil
	}
	var exitErr *sys.ExitError
	if goerrors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return errors.Exit(exitErr.ExitCode(), err)
	}
	return errors.Wrap(errors.PhaseRun, errors.KindInstantiation, err, "call "+StartFunction)
}

// Close releases the instance and its compiled module.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	instance, compiled := h.instance, h.compiled
	h.instance, h.compiled = nil, nil
	h.mu.Unlock()

	var errs []error
	if instance != nil {
		errs = append(errs, instance.Close(ctx))
	}
	if compiled != nil {
		errs = append(errs, compiled.Close(ctx))
	}
	return goerrors.Join(errs...)
}

func (h *Host) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
