package observe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/db"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const auditLogPrefix = "observe:audit"

// CallWriter persists call records. *db.Repository satisfies it.
type CallWriter interface {
	InsertCalls(ctx context.Context, records []db.CallRecord) (int64, error)
}

// AuditParams holds the fields for NewAuditObserver.
type AuditParams struct {
	Writer CallWriter
	// Buffer is the queue capacity. Records arriving while it is full are dropped. Default 1024.
	Buffer int
	// BatchSize flushes once this many records are queued. Default 100.
	BatchSize int
	// FlushInterval flushes whatever is queued at this period. Default 2s.
	FlushInterval time.Duration
	// WriteTimeout bounds each InsertCalls. Default 5s.
	WriteTimeout time.Duration
}

// AuditObserver writes delivered calls to a CallWriter from a background goroutine so delivery never
// waits on the database.
type AuditObserver struct {
	p       AuditParams
	queue   chan db.CallRecord
	done    chan struct{}
	stop    sync.Once
	dropped atomic.Int64
	written atomic.Int64
}

// NewAuditObserver creates the observer and starts its writer goroutine. Call Close to flush and stop.
func NewAuditObserver(p AuditParams) *AuditObserver {
	if p.Buffer <= 0 {
		p.Buffer = 1024
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.FlushInterval <= 0 {
		p.FlushInterval = 2 * time.Second
	}
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = 5 * time.Second
	}
	a := &AuditObserver{
		p:     p,
		queue: make(chan db.CallRecord, p.Buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AuditObserver) BeforeInvoke(context.Context, *call.Envelope) {}

func (a *AuditObserver) AfterInvoke(context.Context, *call.Envelope, time.Duration) {}

func (a *AuditObserver) OnDelivered(_ context.Context, env *call.Envelope, r status.Result) {
	rec := newDelivered(env, r).record()
	defer func() {
		// Send on a closed queue after Close.
		if recover() != nil {
			a.dropped.Add(1)
		}
	}()
	select {
	case a.queue <- rec:
	default:
		if n := a.dropped.Add(1); n == 1 || n%1000 == 0 {
			slog.Warn(fmt.Sprintf("%s - audit queue full, %d records dropped so far", auditLogPrefix, n))
		}
	}
}

// Dropped reports how many records were discarded because the queue was full or closed.
func (a *AuditObserver) Dropped() int64 { return a.dropped.Load() }

// Written reports how many records the writer accepted.
func (a *AuditObserver) Written() int64 { return a.written.Load() }

// Close flushes queued records and stops the writer. It blocks until the final flush finishes or ctx ends.
func (a *AuditObserver) Close(ctx context.Context) error {
	a.stop.Do(func() { close(a.queue) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - close: %w", auditLogPrefix, ctx.Err())
	}
}

func (a *AuditObserver) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.p.FlushInterval)
	defer ticker.Stop()

	batch := make([]db.CallRecord, 0, a.p.BatchSize)
	for {
		select {
		case rec, ok := <-a.queue:
			if !ok {
				a.flush(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= a.p.BatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (a *AuditObserver) flush(batch []db.CallRecord) {
	if len(batch) == 0 || a.p.Writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.p.WriteTimeout)
	defer cancel()
	n, err := a.p.Writer.InsertCalls(ctx, batch)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write %d records: %v", auditLogPrefix, len(batch), err))
		return
	}
	a.written.Add(n)
}
