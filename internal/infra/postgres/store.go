package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// Store persists submissions with bun. Every SubmissionService call maps to one transaction;
// report reads go straight to the pool.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx app.SubmissionTx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return s.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &storeTx{tx: tx})
	})
}

type storeTx struct {
	tx bun.Tx
}

func (t *storeTx) FindByRespondent(ctx context.Context, formID, respondentID string) (domain.SubmissionLedger, domain.ResponseGroup, error) {
	ledger := new(ledgerRow)
	err := t.tx.NewSelect().Model(ledger).
		Where("l.form_id = ?", formID).
		Where("l.respondent_id = ?", respondentID).
		Scan(ctx)
	if err != nil {
		return domain.SubmissionLedger{}, domain.ResponseGroup{}, translate(err, domain.ErrSubmissionNotFound)
	}

	group := new(groupRow)
	err = t.tx.NewSelect().Model(group).Where("g.ledger_id = ?", ledger.ID).Scan(ctx)
	if err != nil {
		return domain.SubmissionLedger{}, domain.ResponseGroup{}, translate(err, domain.ErrResponseGroupNotFound)
	}
	return ledger.toDomain(), group.toDomain(), nil
}

func (t *storeTx) CreateSubmission(ctx context.Context, ledger domain.SubmissionLedger, group domain.ResponseGroup) error {
	group.LedgerID = ledger.ID
	if _, err := t.tx.NewInsert().Model(newLedgerRow(ledger)).Exec(ctx); err != nil {
		return translate(err, nil)
	}
	if _, err := t.tx.NewInsert().Model(newGroupRow(group)).Exec(ctx); err != nil {
		return translate(err, nil)
	}
	return nil
}

// LockGroup takes a row lock on the group so Finalize, Cancel and SaveAnswer serialise.
func (t *storeTx) LockGroup(ctx context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error) {
	return t.group(ctx, groupID, true)
}

func (t *storeTx) Group(ctx context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error) {
	return t.group(ctx, groupID, false)
}

func (t *storeTx) group(ctx context.Context, groupID string, lock bool) (domain.ResponseGroup, domain.SubmissionLedger, error) {
	group := new(groupRow)
	q := t.tx.NewSelect().Model(group).Where("g.id = ?", groupID)
	if lock {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return domain.ResponseGroup{}, domain.SubmissionLedger{}, translate(err, domain.ErrResponseGroupNotFound)
	}

	ledger := new(ledgerRow)
	if err := t.tx.NewSelect().Model(ledger).Where("l.id = ?", group.LedgerID).Scan(ctx); err != nil {
		return domain.ResponseGroup{}, domain.SubmissionLedger{}, translate(err, domain.ErrSubmissionNotFound)
	}
	return group.toDomain(), ledger.toDomain(), nil
}

// UpsertAnswer keeps the first id and answered_at of a (group, question) pair.
func (t *storeTx) UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error) {
	row := newAnswerRow(answer)
	_, err := t.tx.NewInsert().Model(row).
		On("CONFLICT (response_group_id, question_id) DO UPDATE").
		Set("text = EXCLUDED.text").
		Set("alternative_ids = EXCLUDED.alternative_ids").
		Set("edited_at = EXCLUDED.edited_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Answer{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (t *storeTx) Answers(ctx context.Context, groupID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := t.tx.NewSelect().Model(&rows).
		Where("a.response_group_id = ?", groupID).
		Order("a.answered_at ASC", "a.question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	out := make([]domain.Answer, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (t *storeTx) MarkFinalized(ctx context.Context, groupID string, at time.Time) error {
	group, ledger, err := t.LockGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.IsFinalized() {
		return domain.ErrAlreadyFinalized
	}

	_, err = t.tx.NewUpdate().Model((*groupRow)(nil)).
		Set("finalized_at = ?", at).
		Where("id = ?", group.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalize group: %w", err)
	}
	_, err = t.tx.NewUpdate().Model((*ledgerRow)(nil)).
		Set("completed = TRUE").
		Set("finished_at = ?", at).
		Where("id = ?", ledger.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete ledger: %w", err)
	}
	return nil
}

// DeleteSubmission removes the ledger; the group and its answers cascade.
func (t *storeTx) DeleteSubmission(ctx context.Context, groupID string) error {
	group, _, err := t.LockGroup(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = t.tx.NewDelete().Model((*ledgerRow)(nil)).
		Where("id = ?", group.LedgerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	return nil
}

func (s *Store) FinalizedGroups(ctx context.Context, formID, classID string) ([]domain.ResponseGroup, error) {
	var rows []groupRow
	q := s.db.NewSelect().Model(&rows).
		Where("g.form_id = ?", formID).
		Where("g.finalized_at IS NOT NULL")
	if classID != "" {
		q = q.Where("g.class_id = ?", classID)
	}
	if err := q.Order("g.finalized_at ASC", "g.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select finalized groups: %w", err)
	}
	out := make([]domain.ResponseGroup, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) AnswersForGroups(ctx context.Context, groupIDs []string) (map[string]map[string]domain.Answer, error) {
	out := make(map[string]map[string]domain.Answer, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.response_group_id IN (?)", bun.In(groupIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	for i := range rows {
		a := rows[i].toDomain()
		byQuestion, ok := out[a.GroupID]
		if !ok {
			byQuestion = make(map[string]domain.Answer)
			out[a.GroupID] = byQuestion
		}
		byQuestion[a.QuestionID] = a
	}
	return out, nil
}

func (s *Store) Group(ctx context.Context, groupID string) (domain.ResponseGroup, error) {
	row := new(groupRow)
	if err := s.db.NewSelect().Model(row).Where("g.id = ?", groupID).Scan(ctx); err != nil {
		return domain.ResponseGroup{}, translate(err, domain.ErrResponseGroupNotFound)
	}
	return row.toDomain(), nil
}

// AuditRespondent is the only query that joins a response group back to its ledger.
func (s *Store) AuditRespondent(ctx context.Context, groupID string) (string, error) {
	var respondentID string
	err := s.db.NewSelect().
		TableExpr("response_groups AS g").
		Join("JOIN submission_ledgers AS l ON l.id = g.ledger_id").
		ColumnExpr("l.respondent_id").
		Where("g.id = ?", groupID).
		Scan(ctx, &respondentID)
	if err != nil {
		return "", translate(err, domain.ErrResponseGroupNotFound)
	}
	return respondentID, nil
}

// translate maps driver errors onto domain errors. notFound is used for sql.ErrNoRows.
func translate(err error, notFound error) error {
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case sqlStateUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrAlreadySubmitted, pgErr.Field('n'))
		case sqlStateForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.Field('n'))
		}
	}
	return err
}
