package memory

import (
	"context"
	"sync"

	"forms-response-service/internal/domain"
)

// AuditLog keeps audit records in memory. It is both an app.AuditWriter and an app.AuditSink.
type AuditLog struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Write(_ context.Context, record domain.AuditRecord) error {
	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()
	return nil
}

func (l *AuditLog) Record(ctx context.Context, record domain.AuditRecord) {
	_ = l.Write(ctx, record)
}

// Records returns a snapshot in write order.
func (l *AuditLog) Records() []domain.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}
