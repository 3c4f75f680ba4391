package size

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/errors"
)

const (
	// DefaultSuffix is appended to the artifact URL to locate its size resource.
	DefaultSuffix = ".size"

	// DefaultTimeout bounds the side-channel request.
	DefaultTimeout = 10 * time.Second

	// MaxBody caps how much of the size resource is read. A decimal int64
	// never needs more than 20 digits; the rest is whitespace slack.
	MaxBody = 64
)

// Oracle resolves the expected artifact size from a side-channel resource.
// The request is issued with its own client so it never passes through the
// tap that observes the artifact download.
type Oracle struct {
	Client  *http.Client
	Logger  *zap.Logger
	URL     string
	Timeout time.Duration
}

// NewOracle creates an oracle for the size resource at url.
func NewOracle(url string, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		Client:  http.DefaultClient,
		Logger:  logger,
		URL:     url,
		Timeout: DefaultTimeout,
	}
}

// Resolve fetches and parses the size resource and publishes it into exp.
// On failure exp stays unresolved and a structured error is returned; the
// caller treats it as "no percentage", never as a user-facing failure.
// A request abandoned because ctx ended is only logged at debug.
func (o *Oracle) Resolve(ctx context.Context, exp *Expected) error {
	n, err := o.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			o.Logger.Debug("size request abandoned", zap.String("url", o.URL), zap.Error(err))
			return err
		}
		o.Logger.Info("expected size unavailable, progress percentage disabled",
			zap.String("url", o.URL), zap.Error(err))
		return err
	}
	if exp.Set(n) {
		o.Logger.Info("real WASM binary size resolved",
			zap.Int64("bytes", n),
			zap.String("human", units.BytesSize(float64(n))))
	}
	return nil
}

// Fetch performs the request and returns the parsed size without publishing it.
func (o *Oracle) Fetch(ctx context.Context) (int64, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		return 0, errors.New(errors.PhaseSize, errors.KindInvalidInput).
			Source(o.URL).Detail("create request").Cause(err).Build()
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, errors.Fetch(errors.PhaseSize, o.URL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errors.Status(errors.PhaseSize, o.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBody+1))
	if err != nil {
		return 0, errors.Fetch(errors.PhaseSize, o.URL, err)
	}
	if len(body) > MaxBody {
		return 0, errors.InvalidData(errors.PhaseSize, o.URL, "size resource too large")
	}
	return Parse(string(body))
}

// Parse interprets s, trimmed of surrounding whitespace, as a non-negative
// decimal byte count.
func Parse(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, errors.InvalidData(errors.PhaseSize, "", "empty size resource")
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, errors.New(errors.PhaseSize, errors.KindInvalidData).
			Detail("not a decimal integer: %q", trimmed).Cause(err).Build()
	}
	if n < 0 {
		return 0, errors.New(errors.PhaseSize, errors.KindInvalidData).
			Detail("negative size %d", n).Value(n).Build()
	}
	return n, nil
}

// URLFor derives the size resource location from the artifact URL.
func URLFor(artifactURL, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return artifactURL + suffix
}
