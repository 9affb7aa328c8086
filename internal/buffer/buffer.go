// Package buffer implements the chained byte buffer used to hold
// in-flight request/response bodies. It supports append, prepend, drain,
// and pullup without requiring callers to manage contiguous storage
// themselves — data arrives from the codec in arbitrarily sized chunks and
// is consumed in different-sized chunks by filters and the upstream
// connection.
package buffer

// Buffer is a chain of byte slices that behaves like a single logical
// byte stream. It is not safe for concurrent use; each stream owns its
// own buffers on its own dispatcher thread.
type Buffer struct {
	chunks [][]byte
	length int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Len reports the total number of unread bytes.
func (b *Buffer) Len() int { return b.length }

// Append adds data to the end of the buffer. The slice is copied so the
// caller may reuse it.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.chunks = append(b.chunks, cp)
	b.length += len(cp)
}

// Prepend adds data to the front of the buffer, ahead of anything already
// present. Used by filters that need to push back partially-consumed data.
func (b *Buffer) Prepend(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.chunks = append([][]byte{cp}, b.chunks...)
	b.length += len(cp)
}

// Move transfers all bytes from other into b, leaving other empty.
func (b *Buffer) Move(other *Buffer) {
	if other == nil || other.length == 0 {
		return
	}
	b.chunks = append(b.chunks, other.chunks...)
	b.length += other.length
	other.chunks = nil
	other.length = 0
}

// Bytes returns a single contiguous copy of the buffer's contents without
// consuming it. Prefer Pullup when the caller intends to then Drain.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.length)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Pullup coalesces the buffer into a single contiguous chunk and returns
// it. Subsequent Append calls add a new chunk after it; Pullup does not
// consume data, it only changes the internal representation.
func (b *Buffer) Pullup() []byte {
	if len(b.chunks) <= 1 {
		if len(b.chunks) == 1 {
			return b.chunks[0]
		}
		return nil
	}
	flat := b.Bytes()
	b.chunks = [][]byte{flat}
	return flat
}

// Drain removes n bytes from the front of the buffer. It panics if n
// exceeds Len, mirroring the source buffer's contract that callers never
// drain more than they have observed.
func (b *Buffer) Drain(n int) {
	if n < 0 || n > b.length {
		panic("buffer: drain out of range")
	}
	remaining := n
	i := 0
	for ; i < len(b.chunks) && remaining > 0; i++ {
		c := b.chunks[i]
		if remaining < len(c) {
			b.chunks[i] = c[remaining:]
			remaining = 0
			break
		}
		remaining -= len(c)
	}
	if remaining == 0 && i < len(b.chunks) && len(b.chunks[i]) == 0 {
		i++
	}
	b.chunks = b.chunks[i:]
	b.length -= n
}

// Reset discards all buffered data.
func (b *Buffer) Reset() {
	b.chunks = nil
	b.length = 0
}

// Clone returns a deep copy of the buffer, leaving the original untouched.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{length: b.length}
	for _, c := range b.chunks {
		cp := make([]byte, len(c))
		copy(cp, c)
		out.chunks = append(out.chunks, cp)
	}
	return out
}
