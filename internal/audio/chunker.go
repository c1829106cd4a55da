package audio

// Chunker splits an arbitrary PCM stream into fixed-size chunks.
type Chunker struct {
	size int
	buf  []byte
}

// NewChunker creates a chunker emitting chunks of size bytes. An odd size
// is rounded up to a whole sample.
func NewChunker(size int) *Chunker {
	if size < 2 {
		size = 2
	}
	if size%2 != 0 {
		size++
	}
	return &Chunker{size: size, buf: make([]byte, 0, size)}
}

// Write appends p and returns every chunk completed by it. Returned chunks
// do not alias p or each other.
func (c *Chunker) Write(p []byte) [][]byte {
	var out [][]byte
	for len(p) > 0 {
		n := min(c.size-len(c.buf), len(p))
		c.buf = append(c.buf, p[:n]...)
		p = p[n:]
		if len(c.buf) == c.size {
			out = append(out, c.buf)
			c.buf = make([]byte, 0, c.size)
		}
	}
	return out
}

// Flush returns any buffered partial chunk.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	rest := c.buf
	c.buf = make([]byte, 0, c.size)
	return rest
}

// Buffered returns the number of bytes waiting for a full chunk.
func (c *Chunker) Buffered() int { return len(c.buf) }
