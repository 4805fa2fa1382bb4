package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"forms-response-service/internal/domain"
	"github.com/rs/zerolog/log"
)

type clientInfoKey struct{}

// WithClientInfo attaches request provenance for audit records.
func WithClientInfo(ctx context.Context, info domain.ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFrom returns the provenance stored by WithClientInfo, or the zero value.
func ClientInfoFrom(ctx context.Context) domain.ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(domain.ClientInfo)
	return info
}

type auditOp struct {
	action       string
	description  string
	respondentID string
}

// audited runs fn and records exactly one audit entry for it.
func (s *SubmissionService) audited(ctx context.Context, op *auditOp, fn func() error) error {
	err := fn()
	if s.sink == nil {
		return err
	}
	rec := domain.AuditRecord{
		RespondentID: op.respondentID,
		Action:       op.action,
		Description:  op.description,
		Category:     domain.AuditCategorySubmission,
		Client:       ClientInfoFrom(ctx),
		Outcome:      OutcomeOf(err),
		At:           s.now(),
	}
	if err != nil {
		rec.ErrorDetail = err.Error()
	}
	s.sink.Record(ctx, rec)
	return err
}

// OutcomeOf classifies an operation result for the audit trail.
func OutcomeOf(err error) domain.AuditOutcome {
	switch {
	case err == nil:
		return domain.AuditSuccess
	case errors.Is(err, domain.ErrRoleNotPermitted):
		return domain.AuditDenied
	default:
		return domain.AuditFailure
	}
}

// AuditDispatcher hands records to a writer from a background goroutine.
// When the buffer is full the record is written on the caller's goroutine instead of dropped.
type AuditDispatcher struct {
	writer  AuditWriter
	timeout time.Duration
	queue   chan domain.AuditRecord

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAuditDispatcher starts the worker. Close must be called to flush pending records.
func NewAuditDispatcher(writer AuditWriter, buffer int, timeout time.Duration) *AuditDispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &AuditDispatcher{
		writer:  writer,
		timeout: timeout,
		queue:   make(chan domain.AuditRecord, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Record enqueues the record. Write failures are logged, never returned.
func (d *AuditDispatcher) Record(ctx context.Context, record domain.AuditRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.write(record)
		return
	}
	select {
	case d.queue <- record:
	default:
		log.Warn().Str("action", record.Action).Msg("audit queue full, writing synchronously")
		d.write(record)
	}
}

// Close stops accepting queued records and waits for the worker to drain.
func (d *AuditDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *AuditDispatcher) run() {
	defer close(d.done)
	for record := range d.queue {
		d.write(record)
	}
}

func (d *AuditDispatcher) write(record domain.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.writer.Write(ctx, record); err != nil {
		log.Error().Err(err).
			Str("action", record.Action).
			Str("outcome", string(record.Outcome)).
			Msg("audit write failed")
	}
}
