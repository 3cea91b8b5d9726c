// Package stream composes body transforms into pipelines.
//
// A Transform receives body chunks and forwards zero or more chunks to
// the next stage through an Emit callback. A Pipeline links transforms
// in order and delivers the output of the last one to a single body
// handler, followed by exactly one end signal:
//
//	p := stream.NewPipeline(upper, redact)
//	p.BodyHandler(func(b []byte) error { _, err := w.Write(b); return err })
//	p.EndHandler(func() error { return nil })
//	_ = p.Write([]byte("hello"))
//	_ = p.End()
//
// Stages never see the end signal directly; they are flushed in order
// and the pipeline alone guarantees it is propagated once.
package stream
