package audit

import (
	"context"
	"sync"
)

type batchKey struct{}

type queued struct {
	logger *Logger
	ctx    context.Context
	rec    *Record
}

// batch holds the records logged while a unit of work owns a connection.
type batch struct {
	mu      sync.Mutex
	pending []queued
}

func (b *batch) add(ctx context.Context, l *Logger, rec *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, queued{logger: l, ctx: ctx, rec: rec})
}

func (b *batch) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, q := range pending {
		q.logger.write(q.ctx, q.rec)
	}
}

// Defer returns a context under which Logger.Log queues records instead of
// writing them, and a flush func that writes the queue in call order. Callers
// holding a database transaction flush after commit or rollback, so audit
// inserts never wait on a connection the transaction is holding. If ctx
// already defers, the returned flush does nothing and the outer flush writes
// everything.
func Defer(ctx context.Context) (context.Context, func()) {
	if _, ok := ctx.Value(batchKey{}).(*batch); ok {
		return ctx, func() {}
	}
	b := &batch{}
	return context.WithValue(ctx, batchKey{}, b), b.flush
}
