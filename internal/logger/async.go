package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Closer flushes buffered records on shutdown. Synchronous handlers return
// a no-op.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples logging from request handling: records go into a
// buffered channel and a single goroutine forwards them to the inner
// handler, preserving order. A full buffer drops the record rather than
// blocking a tool call.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan slog.Record
	done    chan struct{}
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a record buffer of the given size.
func NewAsyncHandler(inner slog.Handler, buffer int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan slog.Record, buffer),
		done:    make(chan struct{}),
		dropped: &atomic.Int64{},
	}
	go h.forward()
	return h
}

func (h *AsyncHandler) forward() {
	defer close(h.done)
	for rec := range h.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the buffer is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // rec is passed by value per slog.Handler
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs wraps the inner handler, sharing the queue and drop counter.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), queue: h.queue, done: h.done, dropped: h.dropped}
}

// WithGroup wraps the inner handler, sharing the queue and drop counter.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), queue: h.queue, done: h.done, dropped: h.dropped}
}

// DroppedCount returns how many records were discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close drains the queue and stops the forwarder. When records were lost, a
// drop notice goes through the inner handler so the loss is visible in the
// log itself.
func (h *AsyncHandler) Close() {
	close(h.queue)
	<-h.done
	if n := h.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
