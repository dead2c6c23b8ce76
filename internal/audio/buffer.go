package audio

// DefaultSegmentSize is one second of 48kHz stereo audio
const DefaultSegmentSize = 48000 * 2

// Buffer is an append-only sample store split into fixed-size segments.
//
// Appending never reallocates samples already stored, so the cost of one
// Append is bounded by the chunk size plus at most one segment allocation.
// Samples past the limit are dropped and counted instead of growing memory.
type Buffer struct {
	segments    [][]float32
	segmentSize int
	limit       int
	length      int
	dropped     int
}

// NewBuffer creates an empty buffer. A limit of zero or less means unbounded.
func NewBuffer(segmentSize, limit int) *Buffer {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Buffer{segmentSize: segmentSize, limit: limit}
}

// Reserve allocates the segment the next Append writes into, so that Append
// does not allocate until that segment is full.
func (b *Buffer) Reserve() {
	if b.limit > 0 && b.length >= b.limit {
		return
	}
	n := len(b.segments)
	if n == 0 || len(b.segments[n-1]) == cap(b.segments[n-1]) {
		b.segments = append(b.segments, make([]float32, 0, b.segmentSize))
	}
}

// Append copies chunk into the buffer and returns how many samples were kept
func (b *Buffer) Append(chunk []float32) int {
	if b.limit > 0 && b.length+len(chunk) > b.limit {
		keep := b.limit - b.length
		if keep < 0 {
			keep = 0
		}
		b.dropped += len(chunk) - keep
		chunk = chunk[:keep]
	}

	kept := len(chunk)
	for len(chunk) > 0 {
		n := len(b.segments)
		if n == 0 || len(b.segments[n-1]) == cap(b.segments[n-1]) {
			b.segments = append(b.segments, make([]float32, 0, b.segmentSize))
			n++
		}
		seg := b.segments[n-1]
		room := cap(seg) - len(seg)
		if room > len(chunk) {
			room = len(chunk)
		}
		b.segments[n-1] = append(seg, chunk[:room]...)
		chunk = chunk[room:]
	}
	b.length += kept
	return kept
}

// Len returns the number of stored samples
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.length
}

// Dropped returns the number of samples discarded because of the limit
func (b *Buffer) Dropped() int {
	if b == nil {
		return 0
	}
	return b.dropped
}

// Each calls fn for every non-empty segment in order and stops on the first error
func (b *Buffer) Each(fn func(segment []float32) error) error {
	if b == nil {
		return nil
	}
	for _, seg := range b.segments {
		if len(seg) == 0 {
			continue
		}
		if err := fn(seg); err != nil {
			return err
		}
	}
	return nil
}

// Samples returns a flat copy of the stored samples
func (b *Buffer) Samples() []float32 {
	out := make([]float32, 0, b.Len())
	b.Each(func(seg []float32) error {
		out = append(out, seg...)
		return nil
	})
	return out
}
