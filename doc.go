// Package wasmloader fetches a WebAssembly artifact over HTTP, reports
// download progress against a size published next to it, and hosts the
// module on wazero once it has been instantiated.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	wasmloader/
//	├── size/        Expected size and the side-channel size request
//	├── tap/         Response interception: body fork and observed stream
//	├── progress/    Progress events, percent/label computation, reporter
//	├── loadstate/   Loading → Ready state machine with a stall watchdog
//	├── host/        wazero instantiation primitive and the hosted module
//	├── ui/          Terminal and log-only displays
//	├── loader/      Page orchestration wiring the above together
//	├── config/      YAML configuration with defaults and validation
//	├── logging/     zap logger construction and guest output adapters
//	└── errors/      Structured error types
//
// # Data Flow
//
// The size request and the artifact download run concurrently. The tap
// forks the artifact response body, so the instantiator consumes an
// unchanged byte stream while each chunk is counted and reported:
//
//	size request ──► size.Expected ──┐
//	                                 ▼
//	artifact ──► tap ──► progress.Reporter ──► ui.Display
//	              │
//	              └──► host.Engine ──► host.Host ──► loadstate.Machine
//
// A missing or malformed size resource disables percentages and nothing
// else. A download that outgrows the expected size is logged once and
// stops rendering percentages for that transfer.
//
// # Quick Start
//
//	cfg := config.DefaultConfig()
//	cfg.PageURL = "https://example.com/app/?lang=de"
//
//	ld, err := loader.New(ctx, loader.Options{
//	    Config:  cfg,
//	    Display: ui.NewLogDisplay(logger),
//	    Logger:  logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ld.Close(ctx)
//
//	if err := ld.Load(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	err = ld.Run(ctx)
//
// # Thread Safety
//
// Expected, Reporter, Machine and Host are safe for concurrent use. A
// guest instance is not and is driven by a single goroutine.
package wasmloader
