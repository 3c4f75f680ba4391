package tap

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/progress"
)

// Tap observes an artifact body in transit without altering it.
type Tap struct {
	expected progress.SizeSource
	tracker  progress.Tracker
	logger   *zap.Logger
}

// New creates a tap reporting to tracker. expected supplies the total size
// used for the clamped final event; it may resolve at any time.
func New(expected progress.SizeSource, tracker progress.Tracker, logger *zap.Logger) *Tap {
	if tracker == nil {
		tracker = progress.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tap{expected: expected, tracker: tracker, logger: logger}
}

// Wrap returns a response equivalent to resp whose body reports progress as
// it is read. resp's body is forked: the returned response reads one branch
// and resp keeps the other, so resp stays readable. Status and headers are
// copied; the returned headers share no storage with resp.Header.
func (t *Tap) Wrap(resp *http.Response) *http.Response {
	source := SourceOf(resp)
	original, observed := Fork(resp.Body)
	resp.Body = original

	transfer := progress.NewTransfer(source)
	t.logger.Debug("observing transfer",
		zap.String("source", source),
		zap.Stringer("transfer", transfer.ID))

	return &http.Response{
		Status:        resp.Status,
		StatusCode:    resp.StatusCode,
		Proto:         resp.Proto,
		ProtoMajor:    resp.ProtoMajor,
		ProtoMinor:    resp.ProtoMinor,
		Header:        resp.Header.Clone(),
		Trailer:       resp.Trailer.Clone(),
		ContentLength: resp.ContentLength,
		Uncompressed:  resp.Uncompressed,
		Request:       resp.Request,
		TLS:           resp.TLS,
		Body: &observedBody{
			tap:      t,
			branch:   observed,
			transfer: transfer,
		},
	}
}

// SourceOf derives the transfer's source identifier: the response URL with
// the origin and the leading slash removed.
func SourceOf(resp *http.Response) string {
	if resp == nil || resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	u := resp.Request.URL
	s := u.EscapedPath()
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return strings.TrimPrefix(s, "/")
}

type observedBody struct {
	tap      *Tap
	branch   *Branch
	transfer *progress.Transfer
	once     sync.Once
}

func (b *observedBody) Read(p []byte) (int, error) {
	n, err := b.branch.Read(p)
	if n > 0 {
		b.transfer.Bytes += int64(n)
		b.tap.tracker.OnEvent(progress.Event{
			TransferID: b.transfer.ID,
			Source:     b.transfer.Source,
			Bytes:      b.transfer.Bytes,
			Observed:   b.transfer.Bytes,
		})
	}
	if err == io.EOF {
		b.once.Do(b.finish)
	}
	return n, err
}

func (b *observedBody) finish() {
	observed := b.transfer.Bytes
	bytes := observed
	if total, ok := b.tap.expected.Get(); ok {
		bytes = total
		if total != observed {
			b.tap.logger.Debug("observed size differs from expected size",
				zap.String("source", b.transfer.Source),
				zap.Int64("observed", observed),
				zap.Int64("expected", total))
		}
	}
	b.tap.logger.Debug("transfer complete",
		zap.String("source", b.transfer.Source),
		zap.String("size", units.HumanSize(float64(observed))))
	b.tap.tracker.OnEvent(progress.Event{
		TransferID: b.transfer.ID,
		Source:     b.transfer.Source,
		Bytes:      bytes,
		Observed:   observed,
		Final:      true,
	})
}

func (b *observedBody) Close() error {
	return b.branch.Close()
}
