package testutil

import "sync"

// CountingReader is an io.Reader yielding 0x00, 0x01, 0x02, ... and
// wrapping after 0xff, so random-looking names come out predictable.
//
// Thread-safety: CountingReader is safe for concurrent use via internal mutex.
type CountingReader struct {
	mu   sync.Mutex
	next byte
}

// Read fills p with the next bytes of the sequence. It never fails.
func (r *CountingReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}
