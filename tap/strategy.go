package tap

import (
	"context"
	"net/http"

	"github.com/wippyai/wasm-loader/host"
)

// Strategy is an Instantiator that routes every response through a Tap
// before handing it to the real instantiator. Imports and the success
// callback are forwarded unchanged.
type Strategy struct {
	Tap  *Tap
	Next host.Instantiator
	// ReleaseOriginal closes the original response's branch right after
	// wrapping, so nothing is buffered for a reader that will never come.
	ReleaseOriginal bool
}

// InstantiateStreaming implements host.Instantiator.
func (s *Strategy) InstantiateStreaming(ctx context.Context, resp *http.Response, imports host.Imports, onSuccess host.SuccessFunc) error {
	wrapped := s.Tap.Wrap(resp)
	if s.ReleaseOriginal {
		_ = resp.Body.Close()
	}
	return s.Next.InstantiateStreaming(ctx, wrapped, imports, onSuccess)
}
