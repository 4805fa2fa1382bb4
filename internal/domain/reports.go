package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fractional digits emitted in reports. Percentages are fractions of one.
const (
	ReportDecimals     = 2
	PercentageDecimals = 2
)

// AlternativeScore is the per-alternative line of a choice question.
type AlternativeScore struct {
	AlternativeID string              `json:"alternativeId"`
	Text          string              `json:"text"`
	Count         int                 `json:"count"`
	Percentage    decimal.Decimal     `json:"percentage"`
	Weight        decimal.NullDecimal `json:"weight"`
	Score         decimal.NullDecimal `json:"score"`
}

// FreeTextAnswer is one collected text. RespondentName is only set on non-anonymous forms.
type FreeTextAnswer struct {
	Text           string `json:"text"`
	RespondentName string `json:"respondentName,omitempty"`
}

// QuestionScore aggregates one question over a set of response groups.
type QuestionScore struct {
	QuestionID    string             `json:"questionId"`
	Text          string             `json:"text"`
	Type          QuestionType       `json:"type"`
	TotalAnswered int                `json:"totalAnswered"`
	Alternatives  []AlternativeScore `json:"alternatives,omitempty"`
	Score         decimal.Decimal    `json:"score"`
	Weighted      bool               `json:"weighted"`
	FreeText      []FreeTextAnswer   `json:"freeText,omitempty"`
}

// FormReport is the aggregated view of a form, optionally scoped to one class.
type FormReport struct {
	FormID           string              `json:"formId"`
	Title            string              `json:"title"`
	Anonymous        bool                `json:"anonymous"`
	IncludesIdentity bool                `json:"includesIdentity"`
	ClassID          string              `json:"classId,omitempty"`
	TotalSubmissions int                 `json:"totalSubmissions"`
	TotalQuestions   int                 `json:"totalQuestions"`
	Questions        []QuestionScore     `json:"questions"`
	Score            decimal.NullDecimal `json:"score"`
	GeneratedAt      time.Time           `json:"generatedAt"`
}

// FormStats is the cheap summary of a form's finalized submissions.
type FormStats struct {
	FormID      string `json:"formId"`
	Title       string `json:"title"`
	Anonymous   bool   `json:"anonymous"`
	Submissions int    `json:"submissions"`
	Questions   int    `json:"questions"`
}

// RoundReport rounds half-up to ReportDecimals.
func RoundReport(d decimal.Decimal) decimal.Decimal {
	return d.Round(ReportDecimals)
}

// RoundPercentage rounds half-up to PercentageDecimals.
func RoundPercentage(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentageDecimals)
}
