package main

import (
	goerrors "errors"
	"fmt"
	"os"

	"github.com/wippyai/wasm-loader/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var e *errors.Error
		if goerrors.As(err, &e) && e.Kind == errors.KindExit {
			if code, ok := e.Value.(uint32); ok {
				os.Exit(int(code))
			}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
