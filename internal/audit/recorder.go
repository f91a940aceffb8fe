// Package audit records staff activity and credential security events. Writes
// are queued and persisted by a background worker so a slow or failing sink
// never delays or fails the operation being audited.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"mise.app/internal/ids"
	"mise.app/internal/model"
	"mise.app/internal/obs"
)

const (
	DefaultQueueSize = 1024
	sinkTimeout      = 5 * time.Second
)

var ErrClosed = errors.New("audit: recorder closed")

type item struct {
	ctx      context.Context
	activity *model.ActivityEntry
	security *model.SecurityEvent
	flushed  chan struct{}
}

// Recorder queues audit records for asynchronous persistence.
type Recorder struct {
	sinks []Sink
	now   func() time.Time
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan item
	done   chan struct{}
}

// RecorderOption configures Recorder.
type RecorderOption func(*Recorder)

func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan item, n)
		}
	}
}

func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

func WithLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder starts the worker. A MultiSink is flattened so each member is
// reported separately on failure.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		now:   time.Now,
		log:   obs.Logger(),
		queue: make(chan item, DefaultQueueSize),
		done:  make(chan struct{}),
	}
	if m, ok := sink.(MultiSink); ok {
		r.sinks = append(r.sinks, m...)
	} else if sink != nil {
		r.sinks = []Sink{sink}
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// RecordActivity enqueues entry. It never blocks and never fails the caller.
func (r *Recorder) RecordActivity(ctx context.Context, entry model.ActivityEntry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	entry.Details = enrich(ctx, entry.Details)
	r.enqueue(item{ctx: ctx, activity: &entry}, entry.Action)
}

// RecordSecurity enqueues ev. It never blocks and never fails the caller.
func (r *Recorder) RecordSecurity(ctx context.Context, ev model.SecurityEvent) {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	ev.Details = enrich(ctx, ev.Details)
	r.enqueue(item{ctx: ctx, security: &ev}, ev.Event)
}

func (r *Recorder) enqueue(it item, name string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		obs.AuditDropped.Inc()
		r.log.Warn("audit_dropped", zap.String("event", name), zap.String("reason", "closed"))
		return
	}
	select {
	case r.queue <- it:
	default:
		obs.AuditDropped.Inc()
		r.log.Warn("audit_dropped", zap.String("event", name), zap.String("reason", "queue_full"),
			zap.String("request_id", RequestIDFromContext(it.ctx)))
	}
}

// Flush waits until everything queued before the call has been written.
func (r *Recorder) Flush(ctx context.Context) error {
	marker := item{flushed: make(chan struct{})}
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	select {
	case r.queue <- marker:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the queue to drain.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for it := range r.queue {
		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		r.write(it)
	}
}

func (r *Recorder) write(it item) {
	base := context.Background()
	if it.ctx != nil {
		base = context.WithoutCancel(it.ctx)
	}
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(base, sinkTimeout)
		var err error
		var name string
		switch {
		case it.activity != nil:
			name = it.activity.Action
			err = s.AppendActivity(ctx, *it.activity)
		case it.security != nil:
			name = it.security.Event
			err = s.AppendSecurity(ctx, *it.security)
		}
		cancel()
		if err != nil {
			obs.AuditSinkErrors.WithLabelValues(sinkName(s)).Inc()
			r.log.Error("audit_sink_failed",
				zap.String("sink", sinkName(s)),
				zap.String("event", name),
				zap.String("request_id", RequestIDFromContext(it.ctx)),
				zap.Error(err))
		}
	}
}

func enrich(ctx context.Context, details map[string]any) map[string]any {
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		if _, ok := out["request_id"]; !ok {
			out["request_id"] = rid
		}
	}
	return out
}
