package postgres

import (
	"time"

	"forms-response-service/internal/domain"
	"github.com/uptrace/bun"
)

type ledgerRow struct {
	bun.BaseModel `bun:"table:submission_ledgers,alias:l"`

	ID           string     `bun:"id,pk"`
	FormID       string     `bun:"form_id,notnull"`
	RespondentID string     `bun:"respondent_id,notnull"`
	ClassID      string     `bun:"class_id,notnull"`
	StartedAt    time.Time  `bun:"started_at,notnull"`
	FinishedAt   *time.Time `bun:"finished_at"`
	Completed    bool       `bun:"completed,notnull"`
	IPAddress    string     `bun:"ip_address,notnull"`
	UserAgent    string     `bun:"user_agent,notnull"`
}

func newLedgerRow(l domain.SubmissionLedger) *ledgerRow {
	return &ledgerRow{
		ID:           l.ID,
		FormID:       l.FormID,
		RespondentID: l.RespondentID,
		ClassID:      l.ClassID,
		StartedAt:    l.StartedAt,
		FinishedAt:   l.FinishedAt,
		Completed:    l.Completed,
		IPAddress:    l.Client.IPAddress,
		UserAgent:    l.Client.UserAgent,
	}
}

func (r *ledgerRow) toDomain() domain.SubmissionLedger {
	return domain.SubmissionLedger{
		ID:           r.ID,
		FormID:       r.FormID,
		RespondentID: r.RespondentID,
		ClassID:      r.ClassID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Completed:    r.Completed,
		Client:       domain.ClientInfo{IPAddress: r.IPAddress, UserAgent: r.UserAgent},
	}
}

type groupRow struct {
	bun.BaseModel `bun:"table:response_groups,alias:g"`

	ID          string     `bun:"id,pk"`
	LedgerID    string     `bun:"ledger_id,notnull"`
	FormID      string     `bun:"form_id,notnull"`
	ClassID     string     `bun:"class_id,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	FinalizedAt *time.Time `bun:"finalized_at"`
}

func newGroupRow(g domain.ResponseGroup) *groupRow {
	return &groupRow{
		ID:          g.ID,
		LedgerID:    g.LedgerID,
		FormID:      g.FormID,
		ClassID:     g.ClassID,
		CreatedAt:   g.CreatedAt,
		FinalizedAt: g.FinalizedAt,
	}
}

func (r *groupRow) toDomain() domain.ResponseGroup {
	return domain.ResponseGroup{
		ID:          r.ID,
		LedgerID:    r.LedgerID,
		FormID:      r.FormID,
		ClassID:     r.ClassID,
		CreatedAt:   r.CreatedAt,
		FinalizedAt: r.FinalizedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID              string    `bun:"id,pk"`
	ResponseGroupID string    `bun:"response_group_id,notnull"`
	QuestionID      string    `bun:"question_id,notnull"`
	Text            string    `bun:"text,notnull"`
	AlternativeIDs  []string  `bun:"alternative_ids,array"`
	AnsweredAt      time.Time `bun:"answered_at,notnull"`
	EditedAt        time.Time `bun:"edited_at,notnull"`
}

func newAnswerRow(a domain.Answer) *answerRow {
	ids := a.AlternativeIDs
	if ids == nil {
		ids = []string{}
	}
	return &answerRow{
		ID:              a.ID,
		ResponseGroupID: a.GroupID,
		QuestionID:      a.QuestionID,
		Text:            a.Text,
		AlternativeIDs:  ids,
		AnsweredAt:      a.AnsweredAt,
		EditedAt:        a.EditedAt,
	}
}

func (r *answerRow) toDomain() domain.Answer {
	var ids []string
	if len(r.AlternativeIDs) > 0 {
		ids = r.AlternativeIDs
	}
	return domain.Answer{
		ID:             r.ID,
		GroupID:        r.ResponseGroupID,
		QuestionID:     r.QuestionID,
		Text:           r.Text,
		AlternativeIDs: ids,
		AnsweredAt:     r.AnsweredAt,
		EditedAt:       r.EditedAt,
	}
}

type auditRow struct {
	bun.BaseModel `bun:"table:audit_log"`

	ID           int64     `bun:"id,pk,autoincrement"`
	RespondentID string    `bun:"respondent_id,notnull"`
	Action       string    `bun:"action,notnull"`
	Description  string    `bun:"description,notnull"`
	Category     string    `bun:"category,notnull"`
	IPAddress    string    `bun:"ip_address,notnull"`
	UserAgent    string    `bun:"user_agent,notnull"`
	Outcome      string    `bun:"outcome,notnull"`
	ErrorDetail  string    `bun:"error_detail,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func newAuditRow(r domain.AuditRecord) *auditRow {
	return &auditRow{
		RespondentID: r.RespondentID,
		Action:       r.Action,
		Description:  r.Description,
		Category:     r.Category,
		IPAddress:    r.Client.IPAddress,
		UserAgent:    r.Client.UserAgent,
		Outcome:      string(r.Outcome),
		ErrorDetail:  r.ErrorDetail,
		CreatedAt:    r.At,
	}
}
