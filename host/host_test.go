package host

import (
	"bytes"
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-loader/errors"
)

const (
	opUnreachable = 0x00
	opEnd         = 0x0b
)

// moduleExporting encodes a core module with one func () -> () exported
// under name, whose body is the given instructions.
func moduleExporting(name string, body ...byte) []byte {
	code := append([]byte{0x00}, body...) // no locals
	code = append(code, opEnd)

	export := []byte{0x01, byte(len(name))}
	export = append(export, name...)
	export = append(export, 0x00, 0x00) // func index 0

	codeSec := []byte{0x01, byte(len(code))}
	codeSec = append(codeSec, code...)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, 0x01, 0x04, 0x01, 0x60, 0x00, 0x00) // type: func () -> ()
	out = append(out, 0x03, 0x02, 0x01, 0x00)             // function: type 0
	out = append(out, 0x07, byte(len(export)))
	out = append(out, export...)
	out = append(out, 0x0a, byte(len(codeSec)))
	out = append(out, codeSec...)
	return out
}

func wasmResponse(t *testing.T, data []byte, contentType string) *http.Response {
	t.Helper()
	u, err := url.Parse("https://example.com/app.wasm")
	require.NoError(t, err)
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Request:    &http.Request{URL: u},
	}
}

func TestEngine_InstantiateCallsSuccessOnce(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	calls := 0
	var got api.Module
	err := e.InstantiateStreaming(ctx, wasmResponse(t, moduleExporting("_initialize"), WasmContentType), Imports{},
		func(instance api.Module, compiled wazero.CompiledModule) {
			calls++
			got = instance
			assert.NotNil(t, compiled)
		})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NotNil(t, got)
	assert.Equal(t, DefaultProgramName, got.Name())
}

func TestEngine_InvalidBytesNoCallback(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	calls := 0
	err := e.InstantiateStreaming(ctx, wasmResponse(t, []byte("not wasm"), WasmContentType), Imports{},
		func(api.Module, wazero.CompiledModule) { calls++ })
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindInstantiation}))
	assert.Zero(t, calls)
}

func TestEngine_TrapDuringInitialize(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	calls := 0
	err := e.InstantiateStreaming(ctx, wasmResponse(t, moduleExporting("_initialize", opUnreachable), WasmContentType), Imports{},
		func(api.Module, wazero.CompiledModule) { calls++ })
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestEngine_BadStatus(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	resp := wasmResponse(t, nil, WasmContentType)
	resp.StatusCode = http.StatusNotFound
	err := e.InstantiateStreaming(ctx, resp, Imports{}, func(api.Module, wazero.CompiledModule) {
		t.Fatal("callback must not run")
	})
	assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseFetch, Kind: errors.KindNotFound}))
}

func TestEngine_ContentType(t *testing.T) {
	ctx := context.Background()

	t.Run("lenient", func(t *testing.T) {
		e := NewEngine(ctx, nil, nil)
		defer e.Close(ctx)
		err := e.InstantiateStreaming(ctx, wasmResponse(t, moduleExporting("_initialize"), "application/octet-stream"), Imports{},
			func(api.Module, wazero.CompiledModule) {})
		assert.NoError(t, err)
	})

	t.Run("strict", func(t *testing.T) {
		e := NewEngine(ctx, &EngineConfig{RequireWasmContentType: true}, nil)
		defer e.Close(ctx)
		err := e.InstantiateStreaming(ctx, wasmResponse(t, moduleExporting("_initialize"), "text/html"), Imports{},
			func(api.Module, wazero.CompiledModule) {})
		assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseFetch, Kind: errors.KindInvalidData}))
	})

	t.Run("strict with parameters", func(t *testing.T) {
		e := NewEngine(ctx, &EngineConfig{RequireWasmContentType: true}, nil)
		defer e.Close(ctx)
		err := e.InstantiateStreaming(ctx, wasmResponse(t, moduleExporting("_initialize"), "application/wasm; charset=binary"), Imports{},
			func(api.Module, wazero.CompiledModule) {})
		assert.NoError(t, err)
	})
}

func engineStrategy(t *testing.T, e *Engine, data []byte) Strategy {
	t.Helper()
	return func(ctx context.Context, imports Imports, onSuccess SuccessFunc) error {
		return e.InstantiateStreaming(ctx, wasmResponse(t, data, WasmContentType), imports, onSuccess)
	}
}

func TestHost_StartSignalsInitializedOnce(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	initialized := 0
	h := &Host{
		InstantiateWasm:      engineStrategy(t, e, moduleExporting("_start")),
		OnRuntimeInitialized: func() { initialized++ },
		Arguments:            []string{"--language", "fr"},
	}
	require.NoError(t, h.Start(ctx))
	defer h.Close(ctx)

	assert.Equal(t, 1, initialized)
	assert.NotNil(t, h.Instance())
	require.NoError(t, h.Run(ctx))
}

func TestHost_DuplicateCallbackIgnored(t *testing.T) {
	ctx := context.Background()

	initialized := 0
	first := fakeModule{name: "first"}
	h := &Host{
		InstantiateWasm: func(_ context.Context, _ Imports, onSuccess SuccessFunc) error {
			onSuccess(first, nil)
			onSuccess(fakeModule{name: "second"}, nil)
			return nil
		},
		OnRuntimeInitialized: func() { initialized++ },
	}
	require.NoError(t, h.Start(ctx))
	assert.Equal(t, 1, initialized)
	assert.Equal(t, "first", h.Instance().Name())
}

func TestHost_StrategyErrorPropagates(t *testing.T) {
	ctx := context.Background()
	boom := goerrors.New("boom")

	initialized := false
	h := &Host{
		InstantiateWasm: func(context.Context, Imports, SuccessFunc) error {
			return boom
		},
		OnRuntimeInitialized: func() { initialized = true },
	}
	assert.ErrorIs(t, h.Start(ctx), boom)
	assert.False(t, initialized)
}

func TestHost_StrategyWithoutSuccess(t *testing.T) {
	h := &Host{
		InstantiateWasm: func(context.Context, Imports, SuccessFunc) error { return nil },
	}
	err := h.Start(context.Background())
	assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindInstantiation}))
}

func TestHost_NoStrategy(t *testing.T) {
	err := (&Host{}).Start(context.Background())
	assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindInvalidInput}))
}

func TestHost_ImportsCarryArguments(t *testing.T) {
	var seen Imports
	h := &Host{
		ProgramName: "fenestra",
		Arguments:   []string{"--language", "it"},
		InstantiateWasm: func(_ context.Context, imports Imports, onSuccess SuccessFunc) error {
			seen = imports
			onSuccess(fakeModule{name: "m"}, nil)
			return nil
		},
	}
	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, "fenestra", seen.Name)
	assert.Equal(t, []string{"--language", "it"}, seen.Args)
}

func TestHost_RunTrapReturnsError(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	h := &Host{InstantiateWasm: engineStrategy(t, e, moduleExporting("_start", opUnreachable))}
	require.NoError(t, h.Start(ctx))
	defer h.Close(ctx)

	err := h.Run(ctx)
	assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseRun, Kind: errors.KindInstantiation}))
}

func TestHost_RunWithoutEntryPoint(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(ctx, nil, nil)
	defer e.Close(ctx)

	h := &Host{InstantiateWasm: engineStrategy(t, e, moduleExporting("_initialize"))}
	require.NoError(t, h.Start(ctx))
	defer h.Close(ctx)
	assert.NoError(t, h.Run(ctx))
}

func TestHost_RunBeforeStart(t *testing.T) {
	err := (&Host{}).Run(context.Background())
	assert.True(t, goerrors.Is(err, &errors.Error{Phase: errors.PhaseRun, Kind: errors.KindInvalidInput}))
}

func TestArgumentsFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{query: "lang=de", want: []string{"--language", "de"}},
		{query: "lang=pt-BR&theme=dark", want: []string{"--language", "pt-BR"}},
		{query: "lang=", want: []string{"--language", ""}},
		{query: "", want: []string{}},
		{query: "language=de", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ArgumentsFromQuery(q))
		})
	}
}

// fakeModule satisfies api.Module for callback bookkeeping tests.
type fakeModule struct {
	api.Module
	name string
}

func (m fakeModule) Name() string { return m.name }

func (m fakeModule) Close(context.Context) error { return nil }
