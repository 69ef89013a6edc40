package audio

// ring is a fixed-capacity sample window that overwrites the oldest samples
// when full. head and tail are absolute positions, so tail-head is the number
// of buffered samples and tail is the count of samples ever written.
// Not safe for concurrent use; the Segmenter owns it.
type ring struct {
	buf        []float32
	head, tail int64
}

func newRing(size int) *ring {
	return &ring{buf: make([]float32, size)}
}

func (r *ring) Len() int { return int(r.tail - r.head) }
func (r *ring) Full() bool { return r.Len() == len(r.buf) }

// Written is the absolute position of the next sample.
func (r *ring) Written() int64 { return r.tail }

// Start is the absolute position of the oldest buffered sample.
func (r *ring) Start() int64 { return r.head }

func (r *ring) Write(p []float32) {
	size := int64(len(r.buf))
	if int64(len(p)) > size {
		r.tail += int64(len(p)) - size
		r.head = r.tail
		p = p[int64(len(p))-size:]
	}
	for len(p) > 0 {
		pos := int(r.tail % size)
		n := copy(r.buf[pos:], p)
		p = p[n:]
		r.tail += int64(n)
	}
	if r.tail-r.head > size {
		r.head = r.tail - size
	}
}

// Tail returns a copy of the newest n buffered samples.
func (r *ring) Tail(n int) []float32 {
	if n > r.Len() {
		n = r.Len()
	}
	return r.copyRange(r.tail-int64(n), r.tail)
}

// Snapshot returns a copy of everything buffered, oldest first.
func (r *ring) Snapshot() []float32 {
	return r.copyRange(r.head, r.tail)
}

func (r *ring) Reset() {
	r.head = r.tail
}

func (r *ring) copyRange(from, to int64) []float32 {
	out := make([]float32, to-from)
	size := int64(len(r.buf))
	n := 0
	for pos := from; pos < to; {
		idx := int(pos % size)
		c := copy(out[n:], r.buf[idx:])
		n += c
		pos += int64(c)
	}
	return out
}
