package readers

import (
	"errors"
	"io"
	"sync"
)

// A RepeatableReader implements io.ReadSeeker over a plain io.Reader.
// Data read from the underlying reader is cached so the consumer can
// seek back and replay it, which is what the fragment retry path
// needs when a PUT fails part way through.
type RepeatableReader struct {
	mu sync.Mutex // protect against concurrent use
	in io.Reader  // Input reader
	i  int64      // current reading index
	b  []byte     // internal cache buffer
}

var _ io.ReadSeeker = (*RepeatableReader)(nil)

// Seek implements the io.Seeker interface.
// If the seek position is past the cached data the maximum usable
// offset is returned with an error.
func (r *RepeatableReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var abs int64
	cacheLen := int64(len(r.b))
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.i + offset
	case io.SeekEnd:
		abs = cacheLen + offset
	default:
		return 0, errors.New("repeatable reader: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("repeatable reader: negative position")
	}
	if abs > cacheLen {
		return offset - (abs - cacheLen), errors.New("repeatable reader: offset is unavailable")
	}
	r.i = abs
	return abs, nil
}

// Read data from the original Reader into bytes.
// Data is either served from the underlying Reader or from cache if
// it was already read.
func (r *RepeatableReader) Read(b []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cacheLen := int64(len(r.b))
	if r.i == cacheLen {
		n, err = r.in.Read(b)
		if n > 0 {
			r.b = append(r.b, b[:n]...)
		}
	} else {
		n = copy(b, r.b[r.i:])
	}
	r.i += int64(n)
	return n, err
}

// NewRepeatableReader creates a new repeatable reader from Reader r
func NewRepeatableReader(r io.Reader) *RepeatableReader {
	return &RepeatableReader{in: r}
}

// NewRepeatableLimitReader creates a new repeatable reader from
// Reader r with an initial buffer of size wrapped in an
// io.LimitReader to read only size.
//
// This is the bounded view used for upload fragments: it forwards
// only reads within the [0, size) window and does not own the
// lifetime of r.
func NewRepeatableLimitReader(r io.Reader, size int) *RepeatableReader {
	return &RepeatableReader{
		in: io.LimitReader(r, int64(size)),
		b:  make([]byte, 0, size),
	}
}
