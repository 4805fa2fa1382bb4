package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/domain"
	"forms-response-service/internal/infra/memory"
	"github.com/shopspring/decimal"
)

type harness struct {
	svc   *app.SubmissionService
	agg   *app.Aggregator
	store *memory.Store
	forms *memory.FormRepository
	audit *memory.AuditLog
	dir   *memory.Directory
	cache *memory.ReportCache
	clock *fakeClock
}

func newHarness(t *testing.T, forms ...domain.Form) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewStore(),
		forms: memory.NewFormRepository(memory.NewStaticFormLoader(forms...), time.Minute),
		audit: memory.NewAuditLog(),
		dir:   memory.NewDirectory(),
		cache: memory.NewReportCache(time.Hour),
		clock: &fakeClock{now: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)},
	}
	h.svc = app.NewSubmissionService(h.store, h.forms, h.audit,
		app.WithClock(h.clock.Now),
		app.WithIDGenerator(sequentialIDs()),
		app.WithReportCache(h.cache),
	)
	h.agg = h.newAggregator(h.store)
	return h
}

func (h *harness) newAggregator(trail app.AuditTrail, opts ...app.AggregatorOption) *app.Aggregator {
	opts = append([]app.AggregatorOption{app.WithReportClock(h.clock.Now)}, opts...)
	return app.NewAggregator(h.forms, h.store, trail, h.dir, h.dir, opts...)
}

// respond runs a full submission and returns the finalized group id.
func (h *harness) respond(t *testing.T, formID, respondentID, classID string, answers map[string]domain.AnswerPayload) string {
	t.Helper()
	ctx := context.Background()
	started, err := h.svc.StartSubmission(ctx, app.StartRequest{
		FormID:       formID,
		RespondentID: respondentID,
		Role:         domain.RoleStudent,
		ClassID:      classID,
	})
	if err != nil {
		t.Fatalf("start %s: %v", respondentID, err)
	}
	for questionID, payload := range answers {
		if _, err := h.svc.SaveAnswer(ctx, started.Group.ID, questionID, payload); err != nil {
			t.Fatalf("save %s/%s: %v", respondentID, questionID, err)
		}
	}
	if err := h.svc.Finalize(ctx, started.Group.ID); err != nil {
		t.Fatalf("finalize %s: %v", respondentID, err)
	}
	return started.Group.ID
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}

func weight(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func text(s string) domain.AnswerPayload {
	return domain.AnswerPayload{Text: &s}
}

func choose(ids ...string) domain.AnswerPayload {
	return domain.AnswerPayload{AlternativeIDs: ids}
}

// evaluationForm builds a form whose question and alternative ids are prefixed with id:
//
//	rating   single choice, required, weights A=5 B=3 C=1
//	topics   multi choice, t1 weighted 2, t2 unweighted
//	dept     single choice without weights
//	comment  free text
func evaluationForm(id string, anonymous, allowEdit bool) domain.Form {
	q := func(suffix string) string { return id + "-" + suffix }
	return domain.Form{
		ID:          id,
		Title:       "Evaluation " + id,
		Anonymous:   anonymous,
		AllowEdit:   allowEdit,
		Active:      true,
		TargetRoles: []domain.Role{domain.RoleStudent, domain.RoleInstructor},
		Questions: []domain.Question{
			{
				ID: q("comment"), FormID: id, Text: "Anything else?", Type: domain.FreeText, Position: 4,
			},
			{
				ID: q("rating"), FormID: id, Text: "Overall rating", Type: domain.SingleChoice, Position: 1, Required: true,
				Alternatives: []domain.Alternative{
					{ID: q("A"), QuestionID: q("rating"), Text: "Great", Position: 1, Weight: weight("5")},
					{ID: q("B"), QuestionID: q("rating"), Text: "Fine", Position: 2, Weight: weight("3")},
					{ID: q("C"), QuestionID: q("rating"), Text: "Poor", Position: 3, Weight: weight("1")},
				},
			},
			{
				ID: q("topics"), FormID: id, Text: "Useful topics", Type: domain.MultiChoice, Position: 2,
				Alternatives: []domain.Alternative{
					{ID: q("t1"), QuestionID: q("topics"), Text: "Labs", Position: 1, Weight: weight("2")},
					{ID: q("t2"), QuestionID: q("topics"), Text: "Readings", Position: 2},
				},
			},
			{
				ID: q("dept"), FormID: id, Text: "Department", Type: domain.SingleChoice, Position: 3,
				Alternatives: []domain.Alternative{
					{ID: q("d1"), QuestionID: q("dept"), Text: "Math", Position: 1},
					{ID: q("d2"), QuestionID: q("dept"), Text: "Physics", Position: 2},
				},
			},
		},
	}
}
