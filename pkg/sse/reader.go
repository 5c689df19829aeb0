package sse

import (
	"errors"
	"io"
	"iter"

	"go.uber.org/zap"
)

const defaultReadSize = 4096

// Reader pulls frames out of an io.Reader.
type Reader struct {
	src     io.Reader
	re      *Reassembler
	pending [][]byte
	chunk   []byte
	err     error
	logger  *zap.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets the logger used to report protocol anomalies.
func WithLogger(logger *zap.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReadSize sets the size of the buffer handed to each Read call.
func WithReadSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.chunk = make([]byte, n)
		}
	}
}

// NewReader creates a Reader over src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:    src,
		re:     NewReassembler(),
		chunk:  make([]byte, defaultReadSize),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next complete frame. It returns io.EOF once the source is
// exhausted and every complete frame has been returned. Bytes left over at that
// point are logged and dropped.
func (r *Reader) Next() ([]byte, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.re.Feed(r.chunk[:n])...)
		}

		switch {
		case errors.Is(err, io.EOF):
			if left := r.re.Leftover(); len(left) > 0 {
				r.logger.Warn("data left after processing",
					zap.ByteString("data", left))
			}
			r.re.Reset()
			r.err = io.EOF
		case err != nil:
			r.err = err
		}
	}

	frame := r.pending[0]
	r.pending = r.pending[1:]
	return frame, nil
}

// Frames returns an iterator over the frames of src. Iteration stops at the
// first read error, which is yielded with a nil frame.
func Frames(src io.Reader, opts ...ReaderOption) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		r := NewReader(src, opts...)
		for {
			frame, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}
