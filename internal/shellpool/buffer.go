package shellpool

import (
	"sync"

	execpkg "github.com/ahma/mcp-gateway/internal/exec"
)

// boundedBuffer accumulates bytes from a running shell's combined
// stdout/stderr stream, capped at execpkg.ExecOutputMaxBytes so one runaway
// command cannot grow without bound while a caller isn't yet polling it.
//
// Grounded on internal/execsession.ExecSession's outputBuf usage
// (Push/Snapshot/TotalWritten) — the buffer implementation file itself was
// not present in the retrieved example pack, so this is a fresh
// implementation of the same interface shape, reusing
// internal/exec.LimitOutput for the actual capping policy rather than
// re-deriving it.
type boundedBuffer struct {
	mu      sync.Mutex
	data    []byte
	written int64
}

func newBoundedBuffer() *boundedBuffer {
	return &boundedBuffer{}
}

// Push appends a chunk of freshly read output, applying the same cap
// execpkg.LimitOutput enforces for one-shot command output.
func (b *boundedBuffer) Push(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written += int64(len(chunk))
	b.data = append(b.data, chunk...)
	if limited, truncated := execpkg.LimitOutput(b.data); truncated {
		b.data = limited
	}
}

// Snapshot returns a copy of the buffer's current contents.
func (b *boundedBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// TotalWritten returns the cumulative byte count pushed, even past the cap,
// so callers can detect "new data arrived" without false negatives once
// truncation kicks in.
func (b *boundedBuffer) TotalWritten() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// Reset clears the buffer for reuse by the next command run on this shell.
func (b *boundedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.written = 0
}
