package watch

import (
	"errors"
	"io"

	"k8s.io/apimachinery/pkg/util/framer"
)

const (
	DefaultMaxValueSize = 16 << 20
	readChunkSize       = 32 << 10
)

var ErrValueTooLarge = errors.New("json value exceeds size limit")

// Framer splits a stream of concatenated JSON values into individual values. Anything that is not a well-formed
// value, including a value cut off by the start of the next one, ends the stream with a syntax error.
type Framer struct {
	frames io.ReadCloser
	source *limitedSource
	max    int
	chunk  []byte
}

func NewFramer(r io.Reader, maxValueSize int) *Framer {
	if maxValueSize <= 0 {
		maxValueSize = DefaultMaxValueSize
	}
	readSize := min(readChunkSize, maxValueSize)
	source := &limitedSource{r: r, readSize: readSize, limit: maxValueSize + readSize}
	return &Framer{
		frames: framer.NewJSONFramedReader(io.NopCloser(source)),
		source: source,
		max:    maxValueSize,
		chunk:  make([]byte, readSize),
	}
}

// Next returns the next complete value. It returns io.EOF when the stream ended cleanly between values and
// io.ErrUnexpectedEOF when it ended in the middle of one. A value over the size limit is reported as
// ErrValueTooLarge; if it ended within one read of the limit the next value is still readable, otherwise the
// stream is abandoned. Any other error is final.
func (f *Framer) Next() ([]byte, error) {
	var value []byte
	tooLarge := false
	for {
		n, err := f.frames.Read(f.chunk)
		if !tooLarge {
			value = append(value, f.chunk[:n]...)
			if len(value) > f.max {
				tooLarge = true
				value = nil
			}
		}
		if errors.Is(err, io.ErrShortBuffer) {
			continue
		}
		if err != nil {
			return nil, err
		}

		f.source.frameDone()
		if tooLarge {
			return nil, ErrValueTooLarge
		}
		return value, nil
	}
}

// limitedSource bounds how much the decoder may buffer for one value. Reads are capped to readSize, so the bytes
// read since the last complete value exceed limit only when the value in progress is larger than the maximum.
type limitedSource struct {
	r        io.Reader
	readSize int
	limit    int
	pending  int
}

func (s *limitedSource) Read(p []byte) (int, error) {
	if s.pending > s.limit {
		return 0, ErrValueTooLarge
	}
	if len(p) > s.readSize {
		p = p[:s.readSize]
	}
	n, err := s.r.Read(p)
	s.pending += n
	return n, err
}

func (s *limitedSource) frameDone() {
	s.pending = 0
}
