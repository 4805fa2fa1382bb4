package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/domain"
	"forms-response-service/internal/infra/memory"
)

func TestStartSubmissionCreatesLedgerAndGroup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", false, false))

	res, err := h.svc.StartSubmission(ctx, app.StartRequest{
		FormID:       "f1",
		RespondentID: "alice",
		Role:         domain.RoleStudent,
		ClassID:      "class-x",
		Client:       domain.ClientInfo{IPAddress: "10.0.0.7", UserAgent: "test"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Resumed || res.Group.ID == "" || res.Group.ClassID != "class-x" {
		t.Fatalf("unexpected start result: %+v", res)
	}

	ledger, group, err := h.svc.FindSubmission(ctx, "f1", "alice")
	if err != nil {
		t.Fatalf("find submission: %v", err)
	}
	if group.ID != res.Group.ID || ledger.Completed || ledger.Client.IPAddress != "10.0.0.7" {
		t.Fatalf("unexpected ledger %+v group %+v", ledger, group)
	}
	responded, err := h.svc.HasResponded(ctx, "f1", "alice")
	if err != nil || !responded {
		t.Fatalf("expected alice to have responded, got %v (%v)", responded, err)
	}

	records := h.audit.Records()
	if len(records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(records))
	}
	rec := records[0]
	if rec.Action != domain.ActionStartSubmission || rec.Outcome != domain.AuditSuccess || rec.RespondentID != "alice" || rec.Client.IPAddress != "10.0.0.7" {
		t.Fatalf("unexpected audit record: %+v", rec)
	}
}

func TestStartSubmissionResumesDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", true, false))
	req := app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent}

	first, err := h.svc.StartSubmission(ctx, req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := h.svc.StartSubmission(ctx, req)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !second.Resumed || second.Group.ID != first.Group.ID || second.CanEdit {
		t.Fatalf("expected draft resume of %s, got %+v", first.Group.ID, second)
	}
}

func TestStartSubmissionAfterFinalize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("locked", false, false), evaluationForm("editable", false, true))

	h.respond(t, "locked", "alice", "", map[string]domain.AnswerPayload{"locked-rating": choose("locked-A")})
	_, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "locked", RespondentID: "alice", Role: domain.RoleStudent})
	if !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	last := h.audit.Records()[len(h.audit.Records())-1]
	if last.Outcome != domain.AuditFailure || last.ErrorDetail == "" {
		t.Fatalf("expected failure audit with detail, got %+v", last)
	}

	groupID := h.respond(t, "editable", "alice", "", map[string]domain.AnswerPayload{"editable-rating": choose("editable-A")})
	res, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "editable", RespondentID: "alice", Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("expected editable resume, got %v", err)
	}
	if !res.Resumed || !res.CanEdit || res.Group.ID != groupID {
		t.Fatalf("unexpected resume result: %+v", res)
	}
}

func TestStartSubmissionChecksRoleAndWindow(t *testing.T) {
	ctx := context.Background()
	inactive := evaluationForm("inactive", false, false)
	inactive.Active = false
	ended := evaluationForm("ended", false, false)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ended.EndsAt = &past
	h := newHarness(t, evaluationForm("f1", false, false), inactive, ended)

	_, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "carol", Role: domain.RoleCoordinator})
	if !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected ErrRoleNotPermitted, got %v", err)
	}
	if rec := h.audit.Records()[0]; rec.Outcome != domain.AuditDenied {
		t.Fatalf("expected DENIED audit, got %+v", rec)
	}

	for _, formID := range []string{"inactive", "ended"} {
		_, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: formID, RespondentID: "alice", Role: domain.RoleStudent})
		if !errors.Is(err, domain.ErrFormClosed) {
			t.Fatalf("%s: expected ErrFormClosed, got %v", formID, err)
		}
	}
	_, err = h.svc.StartSubmission(ctx, app.StartRequest{FormID: "nope", RespondentID: "alice", Role: domain.RoleStudent})
	if !errors.Is(err, domain.ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound, got %v", err)
	}
}

func TestConcurrentStartCreatesOneLedger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", true, false))

	const callers = 16
	results := make([]app.StartResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Group.ID != results[0].Group.ID {
			t.Fatalf("caller %d got group %s, want %s", i, results[i].Group.ID, results[0].Group.ID)
		}
		if !results[i].Resumed {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one creating call, got %d", created)
	}
}

func TestStartSubmissionRetriesLostRaceAsLookup(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	forms := memory.NewFormRepository(memory.NewStaticFormLoader(evaluationForm("f1", true, false)), time.Minute)
	store := &racingStore{Store: inner}
	svc := app.NewSubmissionService(store, forms, nil, app.WithIDGenerator(sequentialIDs()))

	res, err := svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("expected conflict to resolve as resume, got %v", err)
	}
	if !res.Resumed || res.Group.ID != "winner-group" {
		t.Fatalf("expected to resume the winner's group, got %+v", res)
	}
}

// racingStore commits a competing submission right before the first transaction and hides it
// from that transaction's lookup, like a concurrent insert under read committed.
type racingStore struct {
	*memory.Store
	raced bool
}

func (s *racingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.SubmissionTx) error) error {
	if s.raced {
		return s.Store.InTx(ctx, fn)
	}
	s.raced = true
	err := s.Store.InTx(ctx, func(ctx context.Context, tx app.SubmissionTx) error {
		return tx.CreateSubmission(ctx,
			domain.SubmissionLedger{ID: "winner-ledger", FormID: "f1", RespondentID: "alice"},
			domain.ResponseGroup{ID: "winner-group", LedgerID: "winner-ledger", FormID: "f1"},
		)
	})
	if err != nil {
		return err
	}
	return s.Store.InTx(ctx, func(ctx context.Context, tx app.SubmissionTx) error {
		return fn(ctx, staleTx{tx})
	})
}

type staleTx struct {
	app.SubmissionTx
}

func (staleTx) FindByRespondent(context.Context, string, string) (domain.SubmissionLedger, domain.ResponseGroup, error) {
	return domain.SubmissionLedger{}, domain.ResponseGroup{}, domain.ErrSubmissionNotFound
}

func TestSaveAnswerValidatesShape(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", false, false))
	res, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	g := res.Group.ID

	cases := []struct {
		name     string
		group    string
		question string
		payload  domain.AnswerPayload
		want     error
	}{
		{"text on choice", g, "f1-rating", text("great"), domain.ErrInvalidAnswerShape},
		{"alternatives on free text", g, "f1-comment", choose("f1-A"), domain.ErrInvalidAnswerShape},
		{"missing text", g, "f1-comment", domain.AnswerPayload{}, domain.ErrInvalidAnswerShape},
		{"two on single choice", g, "f1-rating", choose("f1-A", "f1-B"), domain.ErrInvalidAnswerShape},
		{"alternative of other question", g, "f1-rating", choose("f1-t1"), domain.ErrInvalidAnswerShape},
		{"unknown alternative", g, "f1-rating", choose("zzz"), domain.ErrAlternativeNotFound},
		{"unknown question", g, "nope", choose("f1-A"), domain.ErrQuestionNotFound},
		{"unknown group", "nope", "f1-rating", choose("f1-A"), domain.ErrResponseGroupNotFound},
	}
	for _, tc := range cases {
		if _, err := h.svc.SaveAnswer(ctx, tc.group, tc.question, tc.payload); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	answers, err := h.svc.Answers(ctx, g)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 0 {
		t.Fatalf("rejected payloads must not be stored, got %+v", answers)
	}
}

func TestSaveAnswerUpsertsSingleAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", false, false))
	res, _ := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent})
	g := res.Group.ID

	first, err := h.svc.SaveAnswer(ctx, g, "f1-topics", choose("f1-t2", "f1-t1", "f1-t1"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(first.AlternativeIDs) != 2 || first.AlternativeIDs[0] != "f1-t1" || first.AlternativeIDs[1] != "f1-t2" {
		t.Fatalf("expected duplicates collapsed in alternative order, got %v", first.AlternativeIDs)
	}

	second, err := h.svc.SaveAnswer(ctx, g, "f1-topics", choose("f1-t2"))
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if second.ID != first.ID || !second.AnsweredAt.Equal(first.AnsweredAt) || !second.EditedAt.After(first.EditedAt) {
		t.Fatalf("expected in-place update, first %+v second %+v", first, second)
	}

	answers, _ := h.svc.Answers(ctx, g)
	if len(answers) != 1 || len(answers[0].AlternativeIDs) != 1 || answers[0].AlternativeIDs[0] != "f1-t2" {
		t.Fatalf("expected one answer with the latest selection, got %+v", answers)
	}
}

func TestFinalizeIsAtomicAndListsEveryMissingQuestion(t *testing.T) {
	ctx := context.Background()
	form := evaluationForm("f1", false, false)
	for i := range form.Questions {
		if form.Questions[i].ID == "f1-comment" {
			form.Questions[i].Required = true
		}
	}
	h := newHarness(t, form)
	res, _ := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent})
	g := res.Group.ID

	if _, err := h.svc.SaveAnswer(ctx, g, "f1-comment", text("   ")); err != nil {
		t.Fatalf("save blank comment: %v", err)
	}

	err := h.svc.Finalize(ctx, g)
	if !errors.Is(err, domain.ErrMissingRequiredAnswers) {
		t.Fatalf("expected ErrMissingRequiredAnswers, got %v", err)
	}
	missing, ok := domain.MissingQuestions(err)
	if !ok || len(missing) != 2 || missing[0] != "f1-rating" || missing[1] != "f1-comment" {
		t.Fatalf("expected [f1-rating f1-comment], got %v", missing)
	}
	ledger, group, _ := h.svc.FindSubmission(ctx, "f1", "alice")
	if ledger.Completed || ledger.FinishedAt != nil || group.IsFinalized() {
		t.Fatalf("failed finalize must not change state: %+v %+v", ledger, group)
	}

	if _, err := h.svc.SaveAnswer(ctx, g, "f1-rating", choose("f1-B")); err != nil {
		t.Fatalf("save rating: %v", err)
	}
	if _, err := h.svc.SaveAnswer(ctx, g, "f1-comment", text("ok")); err != nil {
		t.Fatalf("save comment: %v", err)
	}
	if err := h.svc.Finalize(ctx, g); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ledger, group, _ = h.svc.FindSubmission(ctx, "f1", "alice")
	if !ledger.Completed || ledger.FinishedAt == nil || !group.IsFinalized() {
		t.Fatalf("expected ledger and group finalized together: %+v %+v", ledger, group)
	}

	if err := h.svc.Finalize(ctx, g); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestSaveAnswerAfterFinalize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("locked", false, false), evaluationForm("editable", false, true))

	locked := h.respond(t, "locked", "alice", "", map[string]domain.AnswerPayload{"locked-rating": choose("locked-A")})
	if _, err := h.svc.SaveAnswer(ctx, locked, "locked-rating", choose("locked-B")); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}

	editable := h.respond(t, "editable", "alice", "", map[string]domain.AnswerPayload{"editable-rating": choose("editable-A")})
	canEdit, err := h.svc.CanEdit(ctx, editable)
	if err != nil || !canEdit {
		t.Fatalf("expected editable group, got %v (%v)", canEdit, err)
	}
	if _, err := h.svc.SaveAnswer(ctx, editable, "editable-rating", choose("editable-C")); err != nil {
		t.Fatalf("edit answer: %v", err)
	}
	_, err = h.svc.SaveAnswer(ctx, editable, "editable-rating", choose())
	if missing, ok := domain.MissingQuestions(err); !ok || len(missing) != 1 || missing[0] != "editable-rating" {
		t.Fatalf("expected blanking a required answer to fail, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", false, false))
	req := app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent}

	res, _ := h.svc.StartSubmission(ctx, req)
	if _, err := h.svc.SaveAnswer(ctx, res.Group.ID, "f1-rating", choose("f1-A")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := h.svc.Cancel(ctx, res.Group.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	responded, _ := h.svc.HasResponded(ctx, "f1", "alice")
	if responded {
		t.Fatalf("cancel must remove the ledger")
	}
	if _, err := h.svc.Answers(ctx, res.Group.ID); !errors.Is(err, domain.ErrResponseGroupNotFound) {
		t.Fatalf("expected group gone after cancel, got %v", err)
	}

	again, err := h.svc.StartSubmission(ctx, req)
	if err != nil || again.Resumed || again.Group.ID == res.Group.ID {
		t.Fatalf("expected a fresh start after cancel, got %+v (%v)", again, err)
	}
	if _, err := h.svc.SaveAnswer(ctx, again.Group.ID, "f1-rating", choose("f1-A")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := h.svc.Finalize(ctx, again.Group.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := h.svc.Cancel(ctx, again.Group.ID); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestCanEditRequiresIdentifiedEditableOpenForm(t *testing.T) {
	ctx := context.Background()
	closing := evaluationForm("closing", false, true)
	endsAt := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	closing.EndsAt = &endsAt
	h := newHarness(t,
		evaluationForm("anon", true, true),
		evaluationForm("locked", false, false),
		evaluationForm("draft", false, true),
		closing,
	)
	answers := func(id string) map[string]domain.AnswerPayload {
		return map[string]domain.AnswerPayload{id + "-rating": choose(id + "-A")}
	}

	for _, formID := range []string{"anon", "locked"} {
		g := h.respond(t, formID, "alice", "", answers(formID))
		if ok, err := h.svc.CanEdit(ctx, g); err != nil || ok {
			t.Fatalf("%s: expected no edits, got %v (%v)", formID, ok, err)
		}
	}

	res, _ := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "draft", RespondentID: "alice", Role: domain.RoleStudent})
	if ok, _ := h.svc.CanEdit(ctx, res.Group.ID); ok {
		t.Fatalf("drafts are not edits of a finished submission")
	}

	g := h.respond(t, "closing", "alice", "", answers("closing"))
	if ok, _ := h.svc.CanEdit(ctx, g); !ok {
		t.Fatalf("expected edits while the window is open")
	}
	h.clock.Set(endsAt.Add(time.Minute))
	if ok, _ := h.svc.CanEdit(ctx, g); ok {
		t.Fatalf("expected no edits after the window closed")
	}
	if _, err := h.svc.SaveAnswer(ctx, g, "closing-rating", choose("closing-B")); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized after close, got %v", err)
	}
}

func TestFinalizeInvalidatesCachedReports(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", true, false))
	agg := h.newAggregator(h.store, app.WithCache(h.cache))

	h.respond(t, "f1", "alice", "", map[string]domain.AnswerPayload{"f1-rating": choose("f1-A")})
	first, err := agg.AggregateForm(ctx, "f1", "")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if first.TotalSubmissions != 1 {
		t.Fatalf("expected one submission, got %d", first.TotalSubmissions)
	}

	h.respond(t, "f1", "bob", "", map[string]domain.AnswerPayload{"f1-rating": choose("f1-C")})
	second, _ := agg.AggregateForm(ctx, "f1", "")
	if second.TotalSubmissions != 2 {
		t.Fatalf("expected cache invalidated by finalize, got %d submissions", second.TotalSubmissions)
	}
}

func TestAuditRespondentResolvesGroup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", true, false))
	g := h.respond(t, "f1", "alice", "", map[string]domain.AnswerPayload{"f1-rating": choose("f1-A")})

	respondent, err := h.svc.AuditRespondent(ctx, g)
	if err != nil || respondent != "alice" {
		t.Fatalf("expected alice, got %q (%v)", respondent, err)
	}
	form, err := h.svc.Form(ctx, g)
	if err != nil || form.ID != "f1" {
		t.Fatalf("expected form f1, got %q (%v)", form.ID, err)
	}
}

func TestStartSubmissionDeniesRolesThatCannotRespond(t *testing.T) {
	ctx := context.Background()
	form := evaluationForm("f1", false, false)
	form.TargetRoles = append(form.TargetRoles, domain.RoleAdmin)
	h := newHarness(t, form)

	_, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "admin-1", Role: domain.RoleAdmin})
	if !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected ErrRoleNotPermitted, got %v", err)
	}
	records := h.audit.Records()
	if len(records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(records))
	}
	if rec := records[0]; rec.Action != domain.ActionStartSubmission || rec.Outcome != domain.AuditDenied || rec.RespondentID != "admin-1" {
		t.Fatalf("expected DENIED start by admin-1, got %+v", rec)
	}
}

func TestEditOfFinalizedSubmissionInvalidatesCachedReports(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", false, true))
	agg := h.newAggregator(h.store, app.WithCache(h.cache))

	g := h.respond(t, "f1", "alice", "", map[string]domain.AnswerPayload{"f1-rating": choose("f1-A")})
	before, err := agg.AggregateForm(ctx, "f1", "")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !before.Questions[0].Score.Equal(dec("5")) {
		t.Fatalf("expected rating 5, got %s", before.Questions[0].Score)
	}

	if _, err := h.svc.SaveAnswer(ctx, g, "f1-rating", choose("f1-C")); err != nil {
		t.Fatalf("edit: %v", err)
	}
	after, err := agg.AggregateForm(ctx, "f1", "")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !after.Questions[0].Score.Equal(dec("1")) {
		t.Fatalf("expected edited rating 1, got %s", after.Questions[0].Score)
	}
}

func TestConcurrentFinalizeAndCancelOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", true, false))

	for round := 0; round < 20; round++ {
		started, err := h.svc.StartSubmission(ctx, app.StartRequest{
			FormID:       "f1",
			RespondentID: fmt.Sprintf("student-%d", round),
			Role:         domain.RoleStudent,
		})
		if err != nil {
			t.Fatalf("round %d start: %v", round, err)
		}
		groupID := started.Group.ID
		if _, err := h.svc.SaveAnswer(ctx, groupID, "f1-rating", choose("f1-A")); err != nil {
			t.Fatalf("round %d save: %v", round, err)
		}

		var (
			wg          sync.WaitGroup
			finalizeErr error
			cancelErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			finalizeErr = h.svc.Finalize(ctx, groupID)
		}()
		go func() {
			defer wg.Done()
			cancelErr = h.svc.Cancel(ctx, groupID)
		}()
		wg.Wait()

		switch {
		case finalizeErr == nil && cancelErr == nil:
			t.Fatalf("round %d: finalize and cancel both succeeded", round)
		case finalizeErr == nil:
			if !errors.Is(cancelErr, domain.ErrAlreadyFinalized) {
				t.Fatalf("round %d: expected cancel to see ErrAlreadyFinalized, got %v", round, cancelErr)
			}
			if _, err := h.svc.Answers(ctx, groupID); err != nil {
				t.Fatalf("round %d: finalized group must keep its answers: %v", round, err)
			}
		case cancelErr == nil:
			if !errors.Is(finalizeErr, domain.ErrResponseGroupNotFound) {
				t.Fatalf("round %d: expected finalize to see ErrResponseGroupNotFound, got %v", round, finalizeErr)
			}
			if _, err := h.svc.Answers(ctx, groupID); !errors.Is(err, domain.ErrResponseGroupNotFound) {
				t.Fatalf("round %d: cancelled group must be gone, got %v", round, err)
			}
		default:
			t.Fatalf("round %d: neither succeeded: finalize %v, cancel %v", round, finalizeErr, cancelErr)
		}
	}
}

func TestConcurrentSaveAnswerKeepsOneAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, evaluationForm("f1", true, false))
	started, err := h.svc.StartSubmission(ctx, app.StartRequest{FormID: "f1", RespondentID: "alice", Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	choices := []string{"f1-A", "f1-B", "f1-C"}
	const writers = 24
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.SaveAnswer(ctx, started.Group.ID, "f1-rating", choose(choices[i%len(choices)]))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	answers, err := h.svc.Answers(ctx, started.Group.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 1 || len(answers[0].AlternativeIDs) != 1 {
		t.Fatalf("expected a single answer with one choice, got %+v", answers)
	}
}
