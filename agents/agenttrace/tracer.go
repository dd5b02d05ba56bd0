/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import "context"

type tracerKey[T any] struct{}

// Tracer creates traces and receives them once they complete.
type Tracer[T any] interface {
	NewTrace(ctx context.Context, prompt string) *Trace[T]
	RecordTrace(trace *Trace[T])
}

// WithTracer attaches tracer to ctx. Tracers are keyed by result type, so
// a context can carry one per T.
func WithTracer[T any](ctx context.Context, tracer Tracer[T]) context.Context {
	return context.WithValue(ctx, tracerKey[T]{}, tracer)
}

// TracerFromContext returns the tracer attached to ctx, falling back to
// NewDefaultTracer.
func TracerFromContext[T any](ctx context.Context) Tracer[T] {
	if tracer, ok := ctx.Value(tracerKey[T]{}).(Tracer[T]); ok {
		return tracer
	}
	return NewDefaultTracer[T](ctx)
}

// StartTrace starts a trace with the tracer from ctx.
func StartTrace[T any](ctx context.Context, prompt string) *Trace[T] {
	return TracerFromContext[T](ctx).NewTrace(ctx, prompt)
}

// Callbacks is a Tracer that hands each completed trace to its functions
// in order. Nil entries are skipped.
type Callbacks[T any] []func(*Trace[T])

var _ Tracer[string] = Callbacks[string](nil)

// NewTrace implements Tracer.
func (c Callbacks[T]) NewTrace(ctx context.Context, prompt string) *Trace[T] {
	return newTraceWithTracer[T](ctx, c, prompt)
}

// RecordTrace implements Tracer.
func (c Callbacks[T]) RecordTrace(trace *Trace[T]) {
	for _, fn := range c {
		if fn != nil {
			fn(trace)
		}
	}
}
