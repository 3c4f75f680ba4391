package host

import (
	"context"
	"io"
	"net/http"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// SuccessFunc receives the instantiated guest and the compiled module it
// was created from. Instantiators invoke it exactly once, on success only.
type SuccessFunc func(instance api.Module, module wazero.CompiledModule)

// HostModule instantiates a host module into r before the guest is
// instantiated, so the guest's imports resolve against it.
type HostModule func(ctx context.Context, r wazero.Runtime) error

// Imports is what the guest is instantiated against.
type Imports struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Name    string
	Args    []string
	Modules []HostModule
}

// Instantiator compiles and instantiates a module streamed from an HTTP
// response. Implementations own resp.Body and close it.
type Instantiator interface {
	InstantiateStreaming(ctx context.Context, resp *http.Response, imports Imports, onSuccess SuccessFunc) error
}

// InstantiatorFunc adapts a function to Instantiator.
type InstantiatorFunc func(ctx context.Context, resp *http.Response, imports Imports, onSuccess SuccessFunc) error

// InstantiateStreaming implements Instantiator.
func (f InstantiatorFunc) InstantiateStreaming(ctx context.Context, resp *http.Response, imports Imports, onSuccess SuccessFunc) error {
	return f(ctx, resp, imports, onSuccess)
}
