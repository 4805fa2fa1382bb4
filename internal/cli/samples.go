package cli

import (
	"forms-response-service/internal/domain"
	"forms-response-service/internal/infra/memory"
	"github.com/shopspring/decimal"
)

// sampleForms is the catalog served in memory mode. Postgres deployments load forms from
// the catalog tables instead.
func sampleForms() []domain.Form {
	weight := func(v int64) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	}
	likert := func(questionID string) []domain.Alternative {
		texts := []string{"Strongly disagree", "Disagree", "Neutral", "Agree", "Strongly agree"}
		alts := make([]domain.Alternative, len(texts))
		for i, text := range texts {
			alts[i] = domain.Alternative{
				ID:         questionID + "-a" + string(rune('1'+i)),
				QuestionID: questionID,
				Text:       text,
				Position:   i + 1,
				Weight:     weight(int64(i + 1)),
			}
		}
		return alts
	}

	return []domain.Form{
		{
			ID:          "course-evaluation",
			Title:       "Course evaluation",
			Description: "Anonymous end of term evaluation",
			Anonymous:   true,
			Active:      true,
			TargetRoles: []domain.Role{domain.RoleStudent},
			Questions: []domain.Question{
				{ID: "ce-q1", FormID: "course-evaluation", Text: "The course objectives were clear", Type: domain.SingleChoice, Position: 1, Required: true, Alternatives: likert("ce-q1")},
				{ID: "ce-q2", FormID: "course-evaluation", Text: "The instructor was well prepared", Type: domain.SingleChoice, Position: 2, Required: true, Alternatives: likert("ce-q2")},
				{ID: "ce-q3", FormID: "course-evaluation", Text: "Which resources did you use?", Type: domain.MultiChoice, Position: 3, Alternatives: []domain.Alternative{
					{ID: "ce-q3-a1", QuestionID: "ce-q3", Text: "Slides", Position: 1},
					{ID: "ce-q3-a2", QuestionID: "ce-q3", Text: "Recorded lectures", Position: 2},
					{ID: "ce-q3-a3", QuestionID: "ce-q3", Text: "Office hours", Position: 3},
				}},
				{ID: "ce-q4", FormID: "course-evaluation", Text: "Anything else?", Type: domain.FreeText, Position: 4},
			},
		},
		{
			ID:          "staff-feedback",
			Title:       "Staff feedback",
			Anonymous:   false,
			AllowEdit:   true,
			Active:      true,
			TargetRoles: []domain.Role{domain.RoleInstructor, domain.RoleCoordinator},
			Questions: []domain.Question{
				{ID: "sf-q1", FormID: "staff-feedback", Text: "How satisfied are you with the teaching load?", Type: domain.SingleChoice, Position: 1, Required: true, Alternatives: likert("sf-q1")},
				{ID: "sf-q2", FormID: "staff-feedback", Text: "Suggestions", Type: domain.FreeText, Position: 2},
			},
		},
	}
}

func sampleDirectory() *memory.Directory {
	dir := memory.NewDirectory()
	dir.AddRespondent("instructor-1", "Ada Byron")
	dir.AddRespondent("coordinator-1", "Grace Hopper")
	dir.Assign("instructor-1", "class-a")
	dir.Assign("instructor-1", "class-b")
	return dir
}
