package stream

import (
	"errors"
)

// ErrEnded is returned when writing to or ending a pipeline that has
// already been ended.
var ErrEnded = errors.New("stream already ended")

// Pipeline links transforms in declaration order. It is request-scoped
// and not safe for concurrent use.
type Pipeline struct {
	stages []Transform
	body   func(chunk []byte) error
	end    func() error
	ended  bool
}

// NewPipeline creates a pipeline. Nil stages are dropped so callers may
// pass the result of optional stream phases directly.
func NewPipeline(stages ...Transform) *Pipeline {
	p := &Pipeline{}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// BodyHandler sets the consumer of the last stage's output.
func (p *Pipeline) BodyHandler(h func(chunk []byte) error) {
	p.body = h
}

// EndHandler sets the handler invoked once after the last stage flushed.
func (p *Pipeline) EndHandler(h func() error) {
	p.end = h
}

// Write pushes a chunk through every stage.
func (p *Pipeline) Write(chunk []byte) error {
	if p.ended {
		return ErrEnded
	}
	if len(chunk) == 0 {
		return nil
	}
	return p.push(0, chunk)
}

// End flushes every stage in order and signals the end handler. It may
// be called once; later calls return ErrEnded.
func (p *Pipeline) End() error {
	if p.ended {
		return ErrEnded
	}
	p.ended = true

	for i, stage := range p.stages {
		next := i + 1
		if err := stage.Flush(func(chunk []byte) error {
			return p.push(next, chunk)
		}); err != nil {
			return err
		}
	}

	if p.end != nil {
		return p.end()
	}
	return nil
}

func (p *Pipeline) push(i int, chunk []byte) error {
	if i == len(p.stages) {
		if p.body == nil || len(chunk) == 0 {
			return nil
		}
		return p.body(chunk)
	}
	next := i + 1
	return p.stages[i].Write(chunk, func(out []byte) error {
		return p.push(next, out)
	})
}
