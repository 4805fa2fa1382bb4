package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"forms-response-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// errStartConflict marks a StartSubmission that lost the insert race to a concurrent caller.
var errStartConflict = errors.New("concurrent start created the submission first")

// StartRequest carries what the request layer knows about the respondent.
type StartRequest struct {
	FormID       string
	RespondentID string
	Role         domain.Role
	ClassID      string
	Client       domain.ClientInfo
}

// StartResult is the response group the respondent should write answers to.
type StartResult struct {
	Group   domain.ResponseGroup
	Resumed bool
	CanEdit bool
}

// SubmissionService owns the submission ledger and response group lifecycle.
type SubmissionService struct {
	store   SubmissionStore
	forms   FormCatalog
	sink    AuditSink
	reports ReportCache
	now     func() time.Time
	newID   func() string
}

// Option customises a SubmissionService.
type Option func(*SubmissionService)

// WithClock replaces time.Now; used for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *SubmissionService) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *SubmissionService) { s.newID = gen }
}

// WithReportCache lets Finalize and edits of finished submissions drop cached reports of the form.
func WithReportCache(cache ReportCache) Option {
	return func(s *SubmissionService) { s.reports = cache }
}

func NewSubmissionService(store SubmissionStore, forms FormCatalog, sink AuditSink, opts ...Option) *SubmissionService {
	s := &SubmissionService{
		store: store,
		forms: forms,
		sink:  sink,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSubmission creates the ledger and response group for (form, respondent), or resumes the
// existing group when it is still a draft or the finished submission may be edited.
func (s *SubmissionService) StartSubmission(ctx context.Context, req StartRequest) (StartResult, error) {
	ctx = WithClientInfo(ctx, req.Client)
	op := &auditOp{
		action:       domain.ActionStartSubmission,
		description:  fmt.Sprintf("start form %s", req.FormID),
		respondentID: req.RespondentID,
	}

	var result StartResult
	err := s.audited(ctx, op, func() error {
		if !req.Role.Can(domain.CapRespond) {
			return domain.ErrRoleNotPermitted
		}
		form, err := s.forms.GetForm(ctx, req.FormID)
		if err != nil {
			return err
		}
		if !form.AcceptsRole(req.Role) {
			return domain.ErrRoleNotPermitted
		}
		if !form.IsOpen(s.now()) {
			return domain.ErrFormClosed
		}

		result, err = s.start(ctx, form, req)
		if errors.Is(err, errStartConflict) {
			// The losing transaction rolled back; the winner's row is visible now.
			log.Debug().Str("formID", form.ID).Msg("start submission lost insert race, retrying as lookup")
			result, err = s.start(ctx, form, req)
			if errors.Is(err, errStartConflict) {
				err = domain.ErrAlreadySubmitted
			}
		}
		return err
	})
	return result, err
}

func (s *SubmissionService) start(ctx context.Context, form domain.Form, req StartRequest) (StartResult, error) {
	now := s.now()
	var result StartResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
		_, group, err := tx.FindByRespondent(ctx, form.ID, req.RespondentID)
		if err == nil {
			result, err = resume(form, group, now)
			return err
		}
		if !errors.Is(err, domain.ErrSubmissionNotFound) {
			return err
		}

		ledger := domain.SubmissionLedger{
			ID:           s.newID(),
			FormID:       form.ID,
			RespondentID: req.RespondentID,
			ClassID:      req.ClassID,
			StartedAt:    now,
			Client:       req.Client,
		}
		group = domain.ResponseGroup{
			ID:        s.newID(),
			LedgerID:  ledger.ID,
			FormID:    form.ID,
			ClassID:   req.ClassID,
			CreatedAt: now,
		}
		if err := tx.CreateSubmission(ctx, ledger, group); err != nil {
			if errors.Is(err, domain.ErrAlreadySubmitted) {
				return errStartConflict
			}
			return err
		}
		result = StartResult{Group: group}
		return nil
	})
	return result, err
}

func resume(form domain.Form, group domain.ResponseGroup, now time.Time) (StartResult, error) {
	if !group.IsFinalized() {
		return StartResult{Group: group, Resumed: true}, nil
	}
	if canEdit(form, group, now) {
		return StartResult{Group: group, Resumed: true, CanEdit: true}, nil
	}
	return StartResult{}, domain.ErrAlreadySubmitted
}

// SaveAnswer validates the payload against the question type and upserts the single answer
// of the group for that question.
func (s *SubmissionService) SaveAnswer(ctx context.Context, groupID, questionID string, payload domain.AnswerPayload) (domain.Answer, error) {
	op := &auditOp{
		action:      domain.ActionSaveAnswer,
		description: fmt.Sprintf("save answer to question %s in group %s", questionID, groupID),
	}

	var (
		saved  domain.Answer
		edited string
	)
	err := s.audited(ctx, op, func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
			group, ledger, err := tx.LockGroup(ctx, groupID)
			if err != nil {
				return err
			}
			op.respondentID = ledger.RespondentID
			edited = ""

			form, err := s.forms.GetForm(ctx, group.FormID)
			if err != nil {
				return err
			}
			now := s.now()
			if err := checkWritable(form, group, now); err != nil {
				return err
			}
			question, ok := form.Question(questionID)
			if !ok {
				return domain.ErrQuestionNotFound
			}

			answer, err := buildAnswer(form, question, payload)
			if err != nil {
				return err
			}
			if group.IsFinalized() && question.Required && answer.IsEmpty(question.Type) {
				return &domain.MissingRequiredAnswersError{QuestionIDs: []string{question.ID}}
			}
			answer.ID = s.newID()
			answer.GroupID = group.ID
			answer.AnsweredAt = now
			answer.EditedAt = now

			saved, err = tx.UpsertAnswer(ctx, answer)
			if err == nil && group.IsFinalized() {
				edited = group.FormID
			}
			return err
		})
	})
	if err == nil && edited != "" && s.reports != nil {
		// Edits of a finished submission change what reports count.
		s.reports.Invalidate(ctx, edited)
	}
	return saved, err
}

func checkWritable(form domain.Form, group domain.ResponseGroup, now time.Time) error {
	if group.IsFinalized() {
		if !canEdit(form, group, now) {
			return domain.ErrAlreadyFinalized
		}
		return nil
	}
	if !form.IsOpen(now) {
		return domain.ErrFormClosed
	}
	return nil
}

// buildAnswer checks the payload shape and normalises the selection to alternative order.
func buildAnswer(form domain.Form, question domain.Question, payload domain.AnswerPayload) (domain.Answer, error) {
	answer := domain.Answer{QuestionID: question.ID}

	if question.Type == domain.FreeText {
		if len(payload.AlternativeIDs) > 0 {
			return answer, fmt.Errorf("%w: free-text question does not take alternatives", domain.ErrInvalidAnswerShape)
		}
		if payload.Text == nil {
			return answer, fmt.Errorf("%w: free-text question expects text", domain.ErrInvalidAnswerShape)
		}
		answer.Text = *payload.Text
		return answer, nil
	}

	if payload.Text != nil {
		return answer, fmt.Errorf("%w: choice question does not take text", domain.ErrInvalidAnswerShape)
	}
	positions := make(map[string]int, len(payload.AlternativeIDs))
	for _, id := range payload.AlternativeIDs {
		if _, seen := positions[id]; seen {
			continue
		}
		alt, ok := question.Alternative(id)
		if !ok {
			if belongsToOtherQuestion(form, question.ID, id) {
				return answer, fmt.Errorf("%w: alternative %s belongs to another question", domain.ErrInvalidAnswerShape, id)
			}
			return answer, fmt.Errorf("%w: %s", domain.ErrAlternativeNotFound, id)
		}
		positions[id] = alt.Position
	}
	if question.Type == domain.SingleChoice && len(positions) > 1 {
		return answer, fmt.Errorf("%w: single-choice question accepts one alternative", domain.ErrInvalidAnswerShape)
	}

	selected := make([]string, 0, len(positions))
	for id := range positions {
		selected = append(selected, id)
	}
	sort.Slice(selected, func(i, j int) bool {
		if positions[selected[i]] != positions[selected[j]] {
			return positions[selected[i]] < positions[selected[j]]
		}
		return selected[i] < selected[j]
	})
	answer.AlternativeIDs = selected
	return answer, nil
}

func belongsToOtherQuestion(form domain.Form, questionID, alternativeID string) bool {
	for _, q := range form.Questions {
		if q.ID == questionID {
			continue
		}
		if _, ok := q.Alternative(alternativeID); ok {
			return true
		}
	}
	return false
}

// Finalize checks every required question in one pass and completes the submission.
// Nothing is written when a required answer is missing.
func (s *SubmissionService) Finalize(ctx context.Context, groupID string) error {
	op := &auditOp{
		action:      domain.ActionFinalize,
		description: fmt.Sprintf("finalize group %s", groupID),
	}

	var formID string
	err := s.audited(ctx, op, func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
			group, ledger, err := tx.LockGroup(ctx, groupID)
			if err != nil {
				return err
			}
			op.respondentID = ledger.RespondentID
			if group.IsFinalized() {
				return domain.ErrAlreadyFinalized
			}

			form, err := s.forms.GetForm(ctx, group.FormID)
			if err != nil {
				return err
			}
			now := s.now()
			if !form.IsOpen(now) {
				return domain.ErrFormClosed
			}

			answers, err := tx.Answers(ctx, group.ID)
			if err != nil {
				return err
			}
			byQuestion := make(map[string]domain.Answer, len(answers))
			for _, a := range answers {
				byQuestion[a.QuestionID] = a
			}
			var missing []string
			for _, q := range form.RequiredQuestions() {
				a, ok := byQuestion[q.ID]
				if !ok || a.IsEmpty(q.Type) {
					missing = append(missing, q.ID)
				}
			}
			if len(missing) > 0 {
				return &domain.MissingRequiredAnswersError{QuestionIDs: missing}
			}

			formID = form.ID
			return tx.MarkFinalized(ctx, group.ID, now)
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("formID", formID).Str("groupID", groupID).Msg("submission finalized")
	if s.reports != nil {
		s.reports.Invalidate(ctx, formID)
	}
	return nil
}

// Cancel drops a draft submission. Finalized submissions cannot be cancelled.
func (s *SubmissionService) Cancel(ctx context.Context, groupID string) error {
	op := &auditOp{
		action:      domain.ActionCancel,
		description: fmt.Sprintf("cancel group %s", groupID),
	}

	return s.audited(ctx, op, func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
			group, ledger, err := tx.LockGroup(ctx, groupID)
			if err != nil {
				return err
			}
			op.respondentID = ledger.RespondentID
			if group.IsFinalized() {
				return domain.ErrAlreadyFinalized
			}
			return tx.DeleteSubmission(ctx, group.ID)
		})
	})
}

// CanEdit reports whether a finished submission may still be changed.
func (s *SubmissionService) CanEdit(ctx context.Context, groupID string) (bool, error) {
	group, _, err := s.lookup(ctx, groupID)
	if err != nil {
		return false, err
	}
	form, err := s.forms.GetForm(ctx, group.FormID)
	if err != nil {
		return false, err
	}
	return canEdit(form, group, s.now()), nil
}

func canEdit(form domain.Form, group domain.ResponseGroup, now time.Time) bool {
	return form.EditableResponses() && form.IsOpen(now) && group.IsFinalized()
}

// Answers returns the answers attached to the group.
func (s *SubmissionService) Answers(ctx context.Context, groupID string) ([]domain.Answer, error) {
	var answers []domain.Answer
	err := s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
		if _, _, err := tx.Group(ctx, groupID); err != nil {
			return err
		}
		var err error
		answers, err = tx.Answers(ctx, groupID)
		return err
	})
	return answers, err
}

// Form returns the form the group answers. This is the only traversal through the ledger
// that report code may use.
func (s *SubmissionService) Form(ctx context.Context, groupID string) (domain.Form, error) {
	group, _, err := s.lookup(ctx, groupID)
	if err != nil {
		return domain.Form{}, err
	}
	return s.forms.GetForm(ctx, group.FormID)
}

// AuditRespondent resolves the respondent behind a response group.
// For audit and logging only; report generation must never call it for anonymous forms.
func (s *SubmissionService) AuditRespondent(ctx context.Context, groupID string) (string, error) {
	_, ledger, err := s.lookup(ctx, groupID)
	if err != nil {
		return "", err
	}
	return ledger.RespondentID, nil
}

// FindSubmission returns the ledger and group of a respondent for a form.
func (s *SubmissionService) FindSubmission(ctx context.Context, formID, respondentID string) (domain.SubmissionLedger, domain.ResponseGroup, error) {
	var (
		ledger domain.SubmissionLedger
		group  domain.ResponseGroup
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
		var err error
		ledger, group, err = tx.FindByRespondent(ctx, formID, respondentID)
		return err
	})
	return ledger, group, err
}

// HasResponded reports whether the respondent has a ledger entry for the form.
func (s *SubmissionService) HasResponded(ctx context.Context, formID, respondentID string) (bool, error) {
	_, _, err := s.FindSubmission(ctx, formID, respondentID)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *SubmissionService) lookup(ctx context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error) {
	var (
		group  domain.ResponseGroup
		ledger domain.SubmissionLedger
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx SubmissionTx) error {
		var err error
		group, ledger, err = tx.Group(ctx, groupID)
		return err
	})
	return group, ledger, err
}
