package app

import (
	"context"
	"time"

	"forms-response-service/internal/domain"
)

// FormCatalog loads form content (from cache/backing store). Read-only.
type FormCatalog interface {
	GetForm(ctx context.Context, formID string) (domain.Form, error)
	FormOfQuestion(ctx context.Context, questionID string) (domain.Form, error)
}

// SubmissionStore runs every read-then-write of the submission flow in one transaction.
// Implementations must back the (form, respondent) and (group, question) uniqueness with a
// storage-level constraint and report conflicts as domain.ErrAlreadySubmitted.
type SubmissionStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx SubmissionTx) error) error
}

// SubmissionTx is the transactional view used by SubmissionService.
type SubmissionTx interface {
	// FindByRespondent returns domain.ErrSubmissionNotFound when no ledger exists.
	FindByRespondent(ctx context.Context, formID, respondentID string) (domain.SubmissionLedger, domain.ResponseGroup, error)
	// CreateSubmission inserts the ledger and its group as one unit.
	CreateSubmission(ctx context.Context, ledger domain.SubmissionLedger, group domain.ResponseGroup) error
	// LockGroup loads the group and its ledger, holding them until the transaction ends.
	LockGroup(ctx context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error)
	// Group is LockGroup without the lock.
	Group(ctx context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error)
	// UpsertAnswer writes the answer for (GroupID, QuestionID) in one conditional write.
	UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error)
	Answers(ctx context.Context, groupID string) ([]domain.Answer, error)
	// MarkFinalized completes the ledger and finalizes the group; domain.ErrAlreadyFinalized
	// when the group was finalized already.
	MarkFinalized(ctx context.Context, groupID string, at time.Time) error
	// DeleteSubmission removes the ledger, its group and answers.
	DeleteSubmission(ctx context.Context, groupID string) error
}

// ReportStore is the read side used by the aggregator. It never exposes respondents.
type ReportStore interface {
	// FinalizedGroups returns finalized groups of a form ordered by finalization;
	// an empty classID means every class.
	FinalizedGroups(ctx context.Context, formID, classID string) ([]domain.ResponseGroup, error)
	// AnswersForGroups returns answers keyed by group id then question id.
	AnswersForGroups(ctx context.Context, groupIDs []string) (map[string]map[string]domain.Answer, error)
	Group(ctx context.Context, groupID string) (domain.ResponseGroup, error)
}

// AuditTrail is the single escape hatch from a response group back to its respondent.
type AuditTrail interface {
	AuditRespondent(ctx context.Context, groupID string) (string, error)
}

// IdentityProvider resolves respondents to display names.
type IdentityProvider interface {
	DisplayName(ctx context.Context, respondentID string) (string, error)
}

// ClassDirectory knows which classes an instructor is assigned to.
type ClassDirectory interface {
	ClassesTaughtBy(ctx context.Context, instructorID string) ([]string, error)
}

// ReportCache stores emitted form reports for a short time. Every Invalidate bumps the form's
// generation and Put drops reports computed under an older one.
type ReportCache interface {
	Get(ctx context.Context, formID, classID string) (domain.FormReport, bool)
	// Generation must be read before the report inputs are loaded.
	Generation(ctx context.Context, formID string) int64
	Put(ctx context.Context, generation int64, report domain.FormReport)
	Invalidate(ctx context.Context, formID string)
}

// SessionRegistry allows one live answering session per response group.
type SessionRegistry interface {
	// Acquire returns domain.ErrSessionActive when another owner holds the group.
	Acquire(ctx context.Context, groupID, owner string) error
	Release(ctx context.Context, groupID, owner string)
}

// AuditSink receives audit records. Record never fails from the caller's perspective.
type AuditSink interface {
	Record(ctx context.Context, record domain.AuditRecord)
}

// AuditWriter persists audit records for an AuditDispatcher.
type AuditWriter interface {
	Write(ctx context.Context, record domain.AuditRecord) error
}
