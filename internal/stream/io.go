package stream

import (
	"errors"
	"io"
)

const copyBufferSize = 32 * 1024

// Copy reads src to EOF through p into dst and ends the pipeline.
// Handlers previously set on p are replaced.
func Copy(dst io.Writer, src io.Reader, p *Pipeline) (int64, error) {
	var written int64
	p.BodyHandler(func(chunk []byte) error {
		n, err := dst.Write(chunk)
		written += int64(n)
		return err
	})

	if err := feed(src, p); err != nil {
		return written, err
	}
	return written, nil
}

// Reader returns a reader producing the output of p for input src.
// The body and end handlers of p are replaced. Closing the reader
// before EOF stops the feeding goroutine.
func Reader(src io.Reader, p *Pipeline) io.ReadCloser {
	if p.Len() == 0 {
		if rc, ok := src.(io.ReadCloser); ok {
			return rc
		}
		return io.NopCloser(src)
	}

	pr, pw := io.Pipe()
	p.BodyHandler(func(chunk []byte) error {
		_, err := pw.Write(chunk)
		return err
	})

	go func() {
		err := feed(src, p)
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	return pr
}

func feed(src io.Reader, p *Pipeline) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := p.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return p.End()
		}
		if err != nil {
			return err
		}
	}
}
