package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType is fixed; the service is not a general survey builder.
type QuestionType string

const (
	SingleChoice QuestionType = "SINGLE_CHOICE"
	MultiChoice  QuestionType = "MULTI_CHOICE"
	FreeText     QuestionType = "FREE_TEXT"
)

// ParseQuestionType validates a stored question type.
func ParseQuestionType(raw string) (QuestionType, error) {
	switch t := QuestionType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case SingleChoice, MultiChoice, FreeText:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidQuestionType, raw)
}

// IsChoice reports whether answers select alternatives.
func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultiChoice
}

// Alternative is one selectable option of a choice question.
type Alternative struct {
	ID         string              `json:"id"`
	QuestionID string              `json:"questionId"`
	Text       string              `json:"text"`
	Position   int                 `json:"position"`
	Weight     decimal.NullDecimal `json:"weight"`
	Correct    bool                `json:"correct"`
}

// Question belongs to exactly one form.
type Question struct {
	ID           string        `json:"id"`
	FormID       string        `json:"formId"`
	Text         string        `json:"text"`
	Type         QuestionType  `json:"type"`
	Position     int           `json:"position"`
	Required     bool          `json:"required"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Alternative looks up an alternative owned by the question.
func (q Question) Alternative(id string) (Alternative, bool) {
	for _, alt := range q.Alternatives {
		if alt.ID == id {
			return alt, true
		}
	}
	return Alternative{}, false
}

// Form is a survey or evaluation instrument. Read-only for this service.
type Form struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Anonymous   bool       `json:"anonymous"`
	AllowEdit   bool       `json:"allowEdit"`
	Active      bool       `json:"active"`
	StartsAt    *time.Time `json:"startsAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	TargetRoles []Role     `json:"targetRoles,omitempty"`
	Questions   []Question `json:"questions"`
}

// IsOpen reports whether the form is active and now lies inside its window.
// Missing bounds leave that side of the window open.
func (f Form) IsOpen(now time.Time) bool {
	if !f.Active {
		return false
	}
	if f.StartsAt != nil && now.Before(*f.StartsAt) {
		return false
	}
	if f.EndsAt != nil && now.After(*f.EndsAt) {
		return false
	}
	return true
}

// AcceptsRole reports whether role may answer; an empty target set accepts everyone.
func (f Form) AcceptsRole(role Role) bool {
	if len(f.TargetRoles) == 0 {
		return true
	}
	for _, r := range f.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

// EditableResponses is the form-level half of the edit rule: anonymous forms never allow edits.
func (f Form) EditableResponses() bool {
	return !f.Anonymous && f.AllowEdit
}

// Question looks up a question owned by the form.
func (f Form) Question(id string) (Question, bool) {
	for _, q := range f.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// OrderedQuestions returns the questions sorted by position.
func (f Form) OrderedQuestions() []Question {
	out := make([]Question, len(f.Questions))
	copy(out, f.Questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// RequiredQuestions returns the required questions in position order.
func (f Form) RequiredQuestions() []Question {
	var out []Question
	for _, q := range f.OrderedQuestions() {
		if q.Required {
			out = append(out, q)
		}
	}
	return out
}

// ClientInfo is the request provenance kept for audit.
type ClientInfo struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// SubmissionLedger records who started answering which form. One per (form, respondent).
type SubmissionLedger struct {
	ID           string
	FormID       string
	RespondentID string
	ClassID      string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Completed    bool
	Client       ClientInfo
}

// ResponseGroup is the pseudonymous proxy answers hang off. It deliberately has no
// respondent field; the only way back is an AuditRespondent lookup on the ledger.
type ResponseGroup struct {
	ID          string     `json:"id"`
	LedgerID    string     `json:"-"`
	FormID      string     `json:"formId"`
	ClassID     string     `json:"classId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
}

// IsFinalized reports whether the group went through Finalize.
func (g ResponseGroup) IsFinalized() bool {
	return g.FinalizedAt != nil
}

// Answer is the single answer of a response group to a question.
type Answer struct {
	ID             string    `json:"id"`
	GroupID        string    `json:"responseGroupId"`
	QuestionID     string    `json:"questionId"`
	Text           string    `json:"text,omitempty"`
	AlternativeIDs []string  `json:"alternativeIds,omitempty"`
	AnsweredAt     time.Time `json:"answeredAt"`
	EditedAt       time.Time `json:"editedAt"`
}

// IsEmpty reports whether the answer counts as unanswered for the question type.
func (a Answer) IsEmpty(t QuestionType) bool {
	if t == FreeText {
		return strings.TrimSpace(a.Text) == ""
	}
	return len(a.AlternativeIDs) == 0
}

// AnswerPayload is what a respondent sends for one question.
type AnswerPayload struct {
	Text           *string  `json:"text,omitempty"`
	AlternativeIDs []string `json:"alternativeIds,omitempty"`
}
