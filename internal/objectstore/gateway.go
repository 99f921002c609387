// Package objectstore is the single chokepoint for artifact uploads. It wraps a
// storage backend with a deadline, bounded retries and a circuit breaker.
package objectstore

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks Backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/circuit"
	"certifier/pkg/platform/sentinel"
)

// ErrRejected marks a backend failure that retrying cannot fix (bad request,
// permission denied).
var ErrRejected = errors.New("object rejected by storage")

// Kind is the artifact content kind.
type Kind string

const (
	KindPNG  Kind = "png"
	KindJPEG Kind = "jpeg"
	KindPDF  Kind = "pdf"
)

func (k Kind) ContentType() string {
	switch k {
	case KindJPEG:
		return "image/jpeg"
	case KindPDF:
		return "application/pdf"
	case KindPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func (k Kind) Extension() string {
	if k == KindJPEG {
		return "jpg"
	}
	return string(k)
}

// Backend stores objects under keys and knows their public URLs.
// Put returns sentinel.ErrAlreadyExists when overwrite is false and the key
// is taken.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string, overwrite bool) error
	URL(key string) string
}

// Gateway uploads artifacts through a Backend.
type Gateway struct {
	backend         Backend
	breaker         *circuit.Breaker
	timeout         time.Duration
	maxAttempts     int
	initialInterval time.Duration
	logger          *slog.Logger
	metrics         *Metrics
}

type Option func(*Gateway)

// WithTimeout bounds a whole Put including retries. Default 60s.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts. Default 3.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithInitialBackoff sets the first retry delay. Default 500ms.
func WithInitialBackoff(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.initialInterval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gateway) {
		g.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func NewGateway(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend:         backend,
		timeout:         60 * time.Second,
		maxAttempts:     3,
		initialInterval: 500 * time.Millisecond,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuit.New("objectstore")
	}
	return g
}

// Put stores data as folder/publicID.<ext> and returns its public URL. With
// overwrite false an existing object is kept and its URL returned, which makes
// retried uploads idempotent.
func (g *Gateway) Put(ctx context.Context, data []byte, kind Kind, folder, publicID string, overwrite bool) (string, error) {
	if len(data) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "object body is empty")
	}
	if publicID == "" || strings.ContainsAny(publicID, `/\`) || strings.Contains(folder, "..") {
		return "", dErrors.New(dErrors.CodeValidation, "invalid object name")
	}
	key := path.Join(folder, publicID+"."+kind.Extension())

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		if !g.breaker.Allow() {
			return backoff.Permanent(fmt.Errorf("storage circuit open: %w", sentinel.ErrUnavailable))
		}
		err := g.backend.Put(ctx, key, data, kind.ContentType(), overwrite)
		if err == nil || errors.Is(err, sentinel.ErrAlreadyExists) {
			if _, change := g.breaker.RecordSuccess(); change.Closed {
				g.logger.InfoContext(ctx, "object storage circuit closed")
			}
			return nil
		}
		if errors.Is(err, ErrRejected) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "object storage circuit opened", "error", err)
		}
		g.logger.WarnContext(ctx, "object upload attempt failed", "key", key, "attempt", attempts, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.initialInterval
	b.MaxElapsedTime = g.timeout
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.maxAttempts-1)), ctx))

	if g.metrics != nil {
		g.metrics.ObserveUpload(kind, err == nil, attempts, time.Since(start))
	}
	if err != nil {
		g.logger.ErrorContext(ctx, "object upload failed", "key", key, "attempts", attempts, "error", err)
		return "", dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "artifact storage is unavailable")
	}
	return g.backend.URL(key), nil
}
