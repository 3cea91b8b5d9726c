package stream

import (
	"errors"

	"golang.org/x/text/transform"
)

// Emit forwards a chunk to the next stage.
type Emit func(chunk []byte) error

// Transform is one body processing stage.
type Transform interface {
	// Write processes a chunk. The chunk must not be retained after
	// Write returns.
	Write(chunk []byte, emit Emit) error

	// Flush is called once after the last chunk, before the end signal
	// is propagated downstream.
	Flush(emit Emit) error
}

// MapFunc transforms each chunk independently.
type MapFunc func(chunk []byte) ([]byte, error)

// Write implements Transform.
func (f MapFunc) Write(chunk []byte, emit Emit) error {
	out, err := f(chunk)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	return emit(out)
}

// Flush implements Transform.
func (f MapFunc) Flush(Emit) error {
	return nil
}

// bufferTransform accumulates the whole body and emits fn(body) on flush.
type bufferTransform struct {
	fn  func(body []byte) ([]byte, error)
	buf []byte
}

// Buffer returns a transform that applies fn to the complete body.
func Buffer(fn func(body []byte) ([]byte, error)) Transform {
	return &bufferTransform{fn: fn}
}

func (b *bufferTransform) Write(chunk []byte, _ Emit) error {
	b.buf = append(b.buf, chunk...)
	return nil
}

func (b *bufferTransform) Flush(emit Emit) error {
	out, err := b.fn(b.buf)
	b.buf = nil
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	return emit(out)
}

const defaultTextBufferSize = 4096

// textTransform adapts a golang.org/x/text transformer, carrying
// incomplete input (such as a split UTF-8 sequence) over to the next chunk.
type textTransform struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

// FromTextTransformer adapts t to the Transform interface.
func FromTextTransformer(t transform.Transformer) Transform {
	t.Reset()
	return &textTransform{t: t, dst: make([]byte, defaultTextBufferSize)}
}

func (x *textTransform) Write(chunk []byte, emit Emit) error {
	src := make([]byte, 0, len(x.pending)+len(chunk))
	src = append(src, x.pending...)
	src = append(src, chunk...)
	x.pending = nil
	return x.run(src, false, emit)
}

func (x *textTransform) Flush(emit Emit) error {
	src := x.pending
	x.pending = nil
	return x.run(src, true, emit)
}

func (x *textTransform) run(src []byte, atEOF bool, emit Emit) error {
	for {
		nDst, nSrc, err := x.t.Transform(x.dst, src, atEOF)
		if nDst > 0 {
			out := make([]byte, nDst)
			copy(out, x.dst[:nDst])
			if emitErr := emit(out); emitErr != nil {
				return emitErr
			}
		}
		src = src[nSrc:]

		switch {
		case err == nil:
			return nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				x.dst = make([]byte, 2*len(x.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			if atEOF {
				return err
			}
			x.pending = append([]byte(nil), src...)
			return nil
		default:
			return err
		}
	}
}
