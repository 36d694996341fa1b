package compress

import "fmt"

// ChunkSize is the unit of input slicing and output buffer growth.
const ChunkSize = 16384

// chunkedBuffer is the owning output buffer of both codecs. Its backing
// array only ever grows in ChunkSize increments; Bytes shrinks the view to
// the produced length. The grow-by-chunk, shrink-to-final policy is an
// invariant of the type, not arithmetic at the call sites.
type chunkedBuffer struct {
	data  []byte
	n     int
	limit int // 0 = unbounded
}

func (b *chunkedBuffer) Write(p []byte) (int, error) {
	need := b.n + len(p)
	if b.limit > 0 && need > b.limit {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrOutputLimit, need, b.limit)
	}
	if need > len(b.data) {
		grown := (need + ChunkSize - 1) / ChunkSize * ChunkSize
		next := make([]byte, grown)
		copy(next, b.data[:b.n])
		b.data = next
	}
	copy(b.data[b.n:], p)
	b.n = need
	return len(p), nil
}

// Bytes returns the produced output, exactly n bytes long.
func (b *chunkedBuffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of produced bytes.
func (b *chunkedBuffer) Len() int {
	return b.n
}

// Truncate drops the trailing tail bytes from the produced output.
func (b *chunkedBuffer) Truncate(tail int) {
	if tail >= b.n {
		b.n = 0
		return
	}
	b.n -= tail
}

// chunks slices b into ChunkSize-granular parts. Empty input still yields
// one (empty) part so the primitive is driven at least once.
func chunks(b []byte) [][]byte {
	if len(b) == 0 {
		return [][]byte{nil}
	}
	parts := make([][]byte, 0, (len(b)+ChunkSize-1)/ChunkSize)
	for off := 0; off < len(b); off += ChunkSize {
		end := min(off+ChunkSize, len(b))
		parts = append(parts, b[off:end])
	}
	return parts
}
