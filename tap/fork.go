package tap

import (
	"bytes"
	"io"
	"sync"
)

// chunkSize is how much a branch pulls from upstream per read.
const chunkSize = 32 << 10

// Fork splits a single-consumption body into two branches that each see
// every byte exactly once, in order. Reads are pull-driven: whichever
// branch needs data reads the next chunk from upstream and queues a copy
// for its sibling. A branch that is closed stops receiving copies.
// Upstream is closed once both branches are closed.
func Fork(src io.ReadCloser) (*Branch, *Branch) {
	f := &fork{src: src, scratch: make([]byte, chunkSize)}
	f.branches[0] = &Branch{f: f, idx: 0}
	f.branches[1] = &Branch{f: f, idx: 1}
	return f.branches[0], f.branches[1]
}

type fork struct {
	mu       sync.Mutex
	src      io.ReadCloser
	err      error
	scratch  []byte
	branches [2]*Branch
	closed   int
}

// Branch is one consumer side of a Fork.
type Branch struct {
	f       *fork
	pending bytes.Buffer
	idx     int
	closed  bool
}

// Read implements io.Reader.
func (b *Branch) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	f := b.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if b.pending.Len() > 0 {
		return b.pending.Read(p)
	}
	if f.err != nil {
		return 0, f.err
	}

	n, err := f.src.Read(f.scratch)
	if err != nil {
		f.err = err
	}
	if n == 0 {
		return 0, err
	}

	chunk := f.scratch[:n]
	if sib := f.branches[1-b.idx]; !sib.closed {
		sib.pending.Write(chunk)
	}
	copied := copy(p, chunk)
	if copied < n {
		b.pending.Write(chunk[copied:])
	}
	return copied, nil
}

// Close detaches the branch. Closing both branches closes upstream.
func (b *Branch) Close() error {
	f := b.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.pending.Reset()
	f.closed++
	if f.closed == len(f.branches) {
		return f.src.Close()
	}
	return nil
}

// Buffered reports how many bytes are queued for the branch.
func (b *Branch) Buffered() int {
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	return b.pending.Len()
}
