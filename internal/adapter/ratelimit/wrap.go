package ratelimit

import (
	"context"

	"ctxasm/internal/port"
)

// LLM routes every completion through a shared Limiter.
type LLM struct {
	inner   port.LLM
	limiter *Limiter
}

func WrapLLM(inner port.LLM, limiter *Limiter) *LLM {
	return &LLM{inner: inner, limiter: limiter}
}

func (l *LLM) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := l.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = l.inner.Complete(ctx, prompt)
		return err
	})
	return out, err
}

func (l *LLM) ModelName() string {
	return l.inner.ModelName()
}

// Embedder routes every embedding request through a shared Limiter.
type Embedder struct {
	inner   port.Embedder
	limiter *Limiter
}

func WrapEmbedder(inner port.Embedder, limiter *Limiter) *Embedder {
	return &Embedder{inner: inner, limiter: limiter}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.inner.Embed(ctx, texts)
		return err
	})
	return out, err
}

func (e *Embedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *Embedder) ModelName() string {
	return e.inner.ModelName()
}
