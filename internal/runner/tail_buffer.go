package runner

import "sync"

// tailBuffer keeps at most max bytes of written data, discarding from the
// front. Bounds memory on pathological engine output while preserving the
// diagnostically useful tail.
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if b.max > 0 && len(b.buf) > b.max {
		keep := b.buf[len(b.buf)-b.max:]
		b.buf = append(make([]byte, 0, b.max), keep...)
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return "…" + string(b.buf)
	}
	return string(b.buf)
}
