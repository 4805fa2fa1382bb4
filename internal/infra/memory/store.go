package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/domain"
)

// Store keeps submissions in process memory. Transactions are serialised by one mutex and
// work on a copy of the state that replaces the live state only on commit.
type Store struct {
	mu    sync.Mutex
	state *state
}

type respondentKey struct {
	formID       string
	respondentID string
}

type state struct {
	ledgers       map[string]domain.SubmissionLedger
	groups        map[string]domain.ResponseGroup
	answers       map[string]map[string]domain.Answer
	byRespondent  map[respondentKey]string
	groupOfLedger map[string]string
}

func newState() *state {
	return &state{
		ledgers:       make(map[string]domain.SubmissionLedger),
		groups:        make(map[string]domain.ResponseGroup),
		answers:       make(map[string]map[string]domain.Answer),
		byRespondent:  make(map[respondentKey]string),
		groupOfLedger: make(map[string]string),
	}
}

func (s *state) clone() *state {
	out := &state{
		ledgers:       make(map[string]domain.SubmissionLedger, len(s.ledgers)),
		groups:        make(map[string]domain.ResponseGroup, len(s.groups)),
		answers:       make(map[string]map[string]domain.Answer, len(s.answers)),
		byRespondent:  make(map[respondentKey]string, len(s.byRespondent)),
		groupOfLedger: make(map[string]string, len(s.groupOfLedger)),
	}
	for k, v := range s.ledgers {
		out.ledgers[k] = v
	}
	for k, v := range s.groups {
		out.groups[k] = v
	}
	for k, byQuestion := range s.answers {
		copied := make(map[string]domain.Answer, len(byQuestion))
		for q, a := range byQuestion {
			copied[q] = a
		}
		out.answers[k] = copied
	}
	for k, v := range s.byRespondent {
		out.byRespondent[k] = v
	}
	for k, v := range s.groupOfLedger {
		out.groupOfLedger[k] = v
	}
	return out
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a private copy of the state and publishes it when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx app.SubmissionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(ctx, &storeTx{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

type storeTx struct {
	st *state
}

func (t *storeTx) FindByRespondent(_ context.Context, formID, respondentID string) (domain.SubmissionLedger, domain.ResponseGroup, error) {
	ledgerID, ok := t.st.byRespondent[respondentKey{formID: formID, respondentID: respondentID}]
	if !ok {
		return domain.SubmissionLedger{}, domain.ResponseGroup{}, domain.ErrSubmissionNotFound
	}
	ledger := t.st.ledgers[ledgerID]
	group := t.st.groups[t.st.groupOfLedger[ledgerID]]
	return ledger, group, nil
}

func (t *storeTx) CreateSubmission(_ context.Context, ledger domain.SubmissionLedger, group domain.ResponseGroup) error {
	key := respondentKey{formID: ledger.FormID, respondentID: ledger.RespondentID}
	if _, exists := t.st.byRespondent[key]; exists {
		return domain.ErrAlreadySubmitted
	}
	if _, exists := t.st.ledgers[ledger.ID]; exists {
		return domain.ErrAlreadySubmitted
	}
	if _, exists := t.st.groups[group.ID]; exists {
		return domain.ErrAlreadySubmitted
	}
	group.LedgerID = ledger.ID

	t.st.ledgers[ledger.ID] = ledger
	t.st.groups[group.ID] = group
	t.st.byRespondent[key] = ledger.ID
	t.st.groupOfLedger[ledger.ID] = group.ID
	return nil
}

// LockGroup needs no extra locking: the whole transaction already holds the store mutex.
func (t *storeTx) LockGroup(ctx context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error) {
	return t.Group(ctx, groupID)
}

func (t *storeTx) Group(_ context.Context, groupID string) (domain.ResponseGroup, domain.SubmissionLedger, error) {
	group, ok := t.st.groups[groupID]
	if !ok {
		return domain.ResponseGroup{}, domain.SubmissionLedger{}, domain.ErrResponseGroupNotFound
	}
	return group, t.st.ledgers[group.LedgerID], nil
}

func (t *storeTx) UpsertAnswer(_ context.Context, answer domain.Answer) (domain.Answer, error) {
	if _, ok := t.st.groups[answer.GroupID]; !ok {
		return domain.Answer{}, domain.ErrResponseGroupNotFound
	}
	byQuestion, ok := t.st.answers[answer.GroupID]
	if !ok {
		byQuestion = make(map[string]domain.Answer)
		t.st.answers[answer.GroupID] = byQuestion
	}

	answer.AlternativeIDs = copyIDs(answer.AlternativeIDs)
	if existing, ok := byQuestion[answer.QuestionID]; ok {
		answer.ID = existing.ID
		answer.AnsweredAt = existing.AnsweredAt
	}
	byQuestion[answer.QuestionID] = answer
	return withCopiedIDs(answer), nil
}

func (t *storeTx) Answers(_ context.Context, groupID string) ([]domain.Answer, error) {
	byQuestion := t.st.answers[groupID]
	out := make([]domain.Answer, 0, len(byQuestion))
	for _, a := range byQuestion {
		out = append(out, withCopiedIDs(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnsweredAt.Equal(out[j].AnsweredAt) {
			return out[i].AnsweredAt.Before(out[j].AnsweredAt)
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out, nil
}

func (t *storeTx) MarkFinalized(_ context.Context, groupID string, at time.Time) error {
	group, ok := t.st.groups[groupID]
	if !ok {
		return domain.ErrResponseGroupNotFound
	}
	if group.IsFinalized() {
		return domain.ErrAlreadyFinalized
	}
	finalizedAt := at
	group.FinalizedAt = &finalizedAt
	t.st.groups[groupID] = group

	ledger := t.st.ledgers[group.LedgerID]
	finishedAt := at
	ledger.Completed = true
	ledger.FinishedAt = &finishedAt
	t.st.ledgers[ledger.ID] = ledger
	return nil
}

func (t *storeTx) DeleteSubmission(_ context.Context, groupID string) error {
	group, ok := t.st.groups[groupID]
	if !ok {
		return domain.ErrResponseGroupNotFound
	}
	ledger := t.st.ledgers[group.LedgerID]

	delete(t.st.answers, groupID)
	delete(t.st.groups, groupID)
	delete(t.st.groupOfLedger, ledger.ID)
	delete(t.st.ledgers, ledger.ID)
	delete(t.st.byRespondent, respondentKey{formID: ledger.FormID, respondentID: ledger.RespondentID})
	return nil
}

// FinalizedGroups lists finalized groups in finalization order.
func (s *Store) FinalizedGroups(_ context.Context, formID, classID string) ([]domain.ResponseGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ResponseGroup
	for _, g := range s.state.groups {
		if g.FormID != formID || !g.IsFinalized() {
			continue
		}
		if classID != "" && g.ClassID != classID {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinalizedAt.Equal(*out[j].FinalizedAt) {
			return out[i].FinalizedAt.Before(*out[j].FinalizedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AnswersForGroups(_ context.Context, groupIDs []string) (map[string]map[string]domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]domain.Answer, len(groupIDs))
	for _, id := range groupIDs {
		byQuestion, ok := s.state.answers[id]
		if !ok {
			continue
		}
		copied := make(map[string]domain.Answer, len(byQuestion))
		for q, a := range byQuestion {
			copied[q] = withCopiedIDs(a)
		}
		out[id] = copied
	}
	return out, nil
}

func (s *Store) Group(_ context.Context, groupID string) (domain.ResponseGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.state.groups[groupID]
	if !ok {
		return domain.ResponseGroup{}, domain.ErrResponseGroupNotFound
	}
	return group, nil
}

// AuditRespondent follows the group back to its ledger.
func (s *Store) AuditRespondent(_ context.Context, groupID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.state.groups[groupID]
	if !ok {
		return "", domain.ErrResponseGroupNotFound
	}
	return s.state.ledgers[group.LedgerID].RespondentID, nil
}

func copyIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func withCopiedIDs(a domain.Answer) domain.Answer {
	a.AlternativeIDs = copyIDs(a.AlternativeIDs)
	return a
}
