package postgres

import (
	"context"
	"fmt"

	"forms-response-service/internal/domain"
	"github.com/uptrace/bun"
)

// AuditLog appends audit records to the audit_log table.
type AuditLog struct {
	db *bun.DB
}

func NewAuditLog(db *bun.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (l *AuditLog) Write(ctx context.Context, record domain.AuditRecord) error {
	if _, err := l.db.NewInsert().Model(newAuditRow(record)).Exec(ctx); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
