package progress

import "github.com/google/uuid"

// Tracker receives progress events during an artifact transfer.
// Implementations must be safe for concurrent use from multiple goroutines.
type Tracker interface {
	OnEvent(Event)
}

// NewTracker creates a Tracker from a callback function.
func NewTracker(fn func(Event)) Tracker {
	return funcTracker(fn)
}

type funcTracker func(Event)

func (f funcTracker) OnEvent(e Event) { f(e) }

// Nop is a no-op tracker for callers that don't need progress.
var Nop Tracker = funcTracker(func(Event) {})

// Multi fans every event out to each tracker in order.
func Multi(trackers ...Tracker) Tracker {
	return funcTracker(func(e Event) {
		for _, t := range trackers {
			t.OnEvent(e)
		}
	})
}

// Transfer is the running state of one observed download.
type Transfer struct {
	ID     uuid.UUID
	Source string
	Bytes  int64
}

// NewTransfer starts a transfer for source at zero bytes.
func NewTransfer(source string) *Transfer {
	return &Transfer{ID: uuid.New(), Source: source}
}

// Event describes a single progress update.
type Event struct {
	TransferID uuid.UUID
	Source     string
	// Bytes is the count to render. It equals Observed except for the
	// final event of a transfer whose expected size is known, where it is
	// clamped to that size.
	Bytes int64
	// Observed is the number of bytes actually counted so far.
	Observed int64
	Final    bool
}
