package domain

import "time"

// AuditOutcome is the result recorded for an audited action.
type AuditOutcome string

const (
	AuditSuccess AuditOutcome = "SUCCESS"
	AuditFailure AuditOutcome = "FAILURE"
	AuditDenied  AuditOutcome = "DENIED"
)

// Audit actions emitted by the submission, report and audit flows.
const (
	ActionStartSubmission = "START_SUBMISSION"
	ActionSaveAnswer      = "SAVE_ANSWER"
	ActionFinalize        = "FINALIZE_SUBMISSION"
	ActionCancel          = "CANCEL_SUBMISSION"
	ActionViewReport      = "VIEW_REPORT"
	ActionAuditLookup     = "AUDIT_LOOKUP"
)

const (
	AuditCategorySubmission = "SUBMISSION"
	AuditCategoryReport     = "REPORT"
)

// AuditRecord is one entry for the audit sink.
type AuditRecord struct {
	RespondentID string       `json:"respondentId,omitempty"`
	Action       string       `json:"action"`
	Description  string       `json:"description"`
	Category     string       `json:"category"`
	Client       ClientInfo   `json:"client"`
	Outcome      AuditOutcome `json:"outcome"`
	ErrorDetail  string       `json:"errorDetail,omitempty"`
	At           time.Time    `json:"at"`
}
