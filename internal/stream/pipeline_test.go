package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func upper() Transform {
	return MapFunc(func(chunk []byte) ([]byte, error) {
		return bytes.ToUpper(chunk), nil
	})
}

func suffix(s string) Transform {
	return MapFunc(func(chunk []byte) ([]byte, error) {
		return append(append([]byte(nil), chunk...), s...), nil
	})
}

type collector struct {
	chunks []string
	ends   int
}

func (c *collector) attach(p *Pipeline) {
	p.BodyHandler(func(chunk []byte) error {
		c.chunks = append(c.chunks, string(chunk))
		return nil
	})
	p.EndHandler(func() error {
		c.ends++
		return nil
	})
}

func TestPipeline_ComposesInOrder(t *testing.T) {
	t.Parallel()

	p := NewPipeline(upper(), nil, suffix("!"))
	assert.Equal(t, 2, p.Len())

	var c collector
	c.attach(p)

	require.NoError(t, p.Write([]byte("a")))
	require.NoError(t, p.Write([]byte("b")))
	require.NoError(t, p.End())

	assert.Equal(t, []string{"A!", "B!"}, c.chunks)
	assert.Equal(t, 1, c.ends)
}

func TestPipeline_EmptyPassesThrough(t *testing.T) {
	t.Parallel()

	p := NewPipeline()
	var c collector
	c.attach(p)

	require.NoError(t, p.Write([]byte("raw")))
	require.NoError(t, p.Write(nil))
	require.NoError(t, p.End())

	assert.Equal(t, []string{"raw"}, c.chunks)
	assert.Equal(t, 1, c.ends)
}

func TestPipeline_EndExactlyOnce(t *testing.T) {
	t.Parallel()

	p := NewPipeline(upper())
	var c collector
	c.attach(p)

	require.NoError(t, p.End())
	assert.ErrorIs(t, p.End(), ErrEnded)
	assert.ErrorIs(t, p.Write([]byte("late")), ErrEnded)
	assert.Equal(t, 1, c.ends)
	assert.Empty(t, c.chunks)
}

func TestPipeline_BufferFlushesBeforeEnd(t *testing.T) {
	t.Parallel()

	reverse := Buffer(func(body []byte) ([]byte, error) {
		out := make([]byte, len(body))
		for i, b := range body {
			out[len(body)-1-i] = b
		}
		return out, nil
	})

	p := NewPipeline(reverse, upper())
	var order []string
	p.BodyHandler(func(chunk []byte) error {
		order = append(order, "body:"+string(chunk))
		return nil
	})
	p.EndHandler(func() error {
		order = append(order, "end")
		return nil
	})

	require.NoError(t, p.Write([]byte("ab")))
	require.NoError(t, p.Write([]byte("c")))
	assert.Empty(t, order)

	require.NoError(t, p.End())
	assert.Equal(t, []string{"body:CBA", "end"}, order)
}

func TestPipeline_StageErrorStops(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := MapFunc(func([]byte) ([]byte, error) { return nil, boom })

	p := NewPipeline(upper(), failing)
	var c collector
	c.attach(p)

	assert.ErrorIs(t, p.Write([]byte("x")), boom)
	assert.Empty(t, c.chunks)

	flushFail := Buffer(func([]byte) ([]byte, error) { return nil, boom })
	p2 := NewPipeline(flushFail)
	var c2 collector
	c2.attach(p2)
	assert.ErrorIs(t, p2.End(), boom)
	assert.Zero(t, c2.ends)
}

func TestPipeline_MapFuncDropsEmptyOutput(t *testing.T) {
	t.Parallel()

	drop := MapFunc(func([]byte) ([]byte, error) { return nil, nil })
	p := NewPipeline(drop)
	var c collector
	c.attach(p)

	require.NoError(t, p.Write([]byte("x")))
	require.NoError(t, p.End())
	assert.Empty(t, c.chunks)
	assert.Equal(t, 1, c.ends)
}

func TestFromTextTransformer_SplitRune(t *testing.T) {
	t.Parallel()

	p := NewPipeline(FromTextTransformer(cases.Upper(language.Und)))
	var out bytes.Buffer
	p.BodyHandler(func(chunk []byte) error {
		_, err := out.Write(chunk)
		return err
	})

	// "ß" followed by "é" split in the middle of the second rune
	input := []byte("straße é")
	cut := len(input) - 1
	require.NoError(t, p.Write(input[:cut]))
	require.NoError(t, p.Write(input[cut:]))
	require.NoError(t, p.End())

	assert.Equal(t, "STRASSE É", out.String())
}

func TestCopy(t *testing.T) {
	t.Parallel()

	p := NewPipeline(upper())
	ended := false
	p.EndHandler(func() error {
		ended = true
		return nil
	})

	var dst bytes.Buffer
	n, err := Copy(&dst, strings.NewReader("hello world"), p)
	require.NoError(t, err)

	assert.Equal(t, int64(11), n)
	assert.Equal(t, "HELLO WORLD", dst.String())
	assert.True(t, ended)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestCopy_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("read failed")
	_, err := Copy(io.Discard, errReader{err: boom}, NewPipeline())
	assert.ErrorIs(t, err, boom)
}

func TestReader(t *testing.T) {
	t.Parallel()

	p := NewPipeline(upper(), suffix("."))
	rc := Reader(strings.NewReader("abc"), p)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ABC.", string(body))
}

func TestReader_NoStagesReturnsSource(t *testing.T) {
	t.Parallel()

	src := io.NopCloser(strings.NewReader("same"))
	assert.Equal(t, src, Reader(src, NewPipeline()))

	body, err := io.ReadAll(Reader(strings.NewReader("plain"), NewPipeline()))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(body))
}

func TestReader_PropagatesStageError(t *testing.T) {
	t.Parallel()

	boom := errors.New("stage failed")
	p := NewPipeline(MapFunc(func([]byte) ([]byte, error) { return nil, boom }))

	_, err := io.ReadAll(Reader(strings.NewReader("x"), p))
	assert.ErrorIs(t, err, boom)
}
