package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// sink is the buffer and worker pool shared by an AsyncHandler and every
// handler derived from it through WithAttrs or WithGroup.
type sink struct {
	queue   chan queued
	workers sync.WaitGroup
	dropped atomic.Int64
}

type queued struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler hands records to background workers. Records below
// slog.LevelWarn are dropped when the buffer is full; warnings and errors
// wait for room.
type AsyncHandler struct {
	inner slog.Handler
	s     *sink
}

// NewAsyncHandler starts workers draining a buffer of size records.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	s := &sink{queue: make(chan queued, size)}
	for range max(workers, 1) {
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			for q := range s.queue {
				_ = q.h.Handle(context.Background(), q.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, s: s}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	q := queued{h: h.inner, rec: rec.Clone()}
	if rec.Level >= slog.LevelWarn {
		h.s.queue <- q
		return nil
	}
	select {
	case h.s.queue <- q:
	default:
		h.s.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), s: h.s}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), s: h.s}
}

// DroppedCount returns how many low-level records were dropped.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.s.dropped.Load()
}

// Close drains the buffer, stops the workers and logs the drop count.
// No records may be handled after Close.
func (h *AsyncHandler) Close() {
	close(h.s.queue)
	h.s.workers.Wait()
	if n := h.s.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
