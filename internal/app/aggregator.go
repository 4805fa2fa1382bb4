package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"forms-response-service/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Aggregator computes read-only reports over finalized response groups.
// Respondent identity is only consulted for free-text answers of non-anonymous forms.
type Aggregator struct {
	forms       FormCatalog
	store       ReportStore
	trail       AuditTrail
	identities  IdentityProvider
	classes     ClassDirectory
	cache       ReportCache
	now         func() time.Time
	parallelism int
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithCache serves AggregateForm from cache until the entry expires or is invalidated.
func WithCache(cache ReportCache) AggregatorOption {
	return func(a *Aggregator) { a.cache = cache }
}

// WithParallelism bounds concurrent per-class reports in AggregateByInstructor.
func WithParallelism(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

// WithReportClock sets the clock stamped on generated reports.
func WithReportClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(forms FormCatalog, store ReportStore, trail AuditTrail, identities IdentityProvider, classes ClassDirectory, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		forms:       forms,
		store:       store,
		trail:       trail,
		identities:  identities,
		classes:     classes,
		now:         func() time.Time { return time.Now().UTC() },
		parallelism: 4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AggregateQuestion scores one question over the given groups. Groups of other forms and
// groups that were never finalized are ignored.
func (a *Aggregator) AggregateQuestion(ctx context.Context, questionID string, groups []domain.ResponseGroup) (domain.QuestionScore, error) {
	form, err := a.forms.FormOfQuestion(ctx, questionID)
	if err != nil {
		return domain.QuestionScore{}, err
	}
	question, ok := form.Question(questionID)
	if !ok {
		return domain.QuestionScore{}, domain.ErrQuestionNotFound
	}

	groups = finalizedOf(form.ID, groups)
	answers, err := a.store.AnswersForGroups(ctx, groupIDs(groups))
	if err != nil {
		return domain.QuestionScore{}, err
	}
	score, err := a.scoreQuestion(ctx, form, question, groups, answers)
	if err != nil {
		return domain.QuestionScore{}, err
	}
	return roundQuestion(score), nil
}

// AggregateForm reports every question of the form over its finalized groups, optionally
// restricted to one class.
func (a *Aggregator) AggregateForm(ctx context.Context, formID, classID string) (domain.FormReport, error) {
	var generation int64
	if a.cache != nil {
		if report, ok := a.cache.Get(ctx, formID, classID); ok {
			return report, nil
		}
		generation = a.cache.Generation(ctx, formID)
	}

	form, err := a.forms.GetForm(ctx, formID)
	if err != nil {
		return domain.FormReport{}, err
	}
	groups, err := a.store.FinalizedGroups(ctx, form.ID, classID)
	if err != nil {
		return domain.FormReport{}, fmt.Errorf("load finalized groups: %w", err)
	}
	report, err := a.buildReport(ctx, form, classID, groups)
	if err != nil {
		return domain.FormReport{}, err
	}

	if a.cache != nil {
		a.cache.Put(ctx, generation, report)
	}
	return report, nil
}

func (a *Aggregator) buildReport(ctx context.Context, form domain.Form, classID string, groups []domain.ResponseGroup) (domain.FormReport, error) {
	answers, err := a.store.AnswersForGroups(ctx, groupIDs(groups))
	if err != nil {
		return domain.FormReport{}, fmt.Errorf("load answers: %w", err)
	}

	questions := form.OrderedQuestions()
	report := domain.FormReport{
		FormID:           form.ID,
		Title:            form.Title,
		Anonymous:        form.Anonymous,
		IncludesIdentity: !form.Anonymous,
		ClassID:          classID,
		TotalSubmissions: len(groups),
		TotalQuestions:   len(questions),
		Questions:        make([]domain.QuestionScore, 0, len(questions)),
		GeneratedAt:      a.now(),
	}

	sum := decimal.Zero
	eligible := 0
	for _, q := range questions {
		score, err := a.scoreQuestion(ctx, form, q, groups, answers)
		if err != nil {
			return domain.FormReport{}, err
		}
		if score.Weighted && score.TotalAnswered > 0 {
			sum = sum.Add(score.Score)
			eligible++
		}
		report.Questions = append(report.Questions, roundQuestion(score))
	}
	if eligible > 0 {
		mean := sum.Div(decimal.NewFromInt(int64(eligible)))
		report.Score = decimal.NewNullDecimal(domain.RoundReport(mean))
	}
	return report, nil
}

// AggregateByInstructor returns one report per class the instructor teaches that has
// finalized groups for the form, ordered by class id.
func (a *Aggregator) AggregateByInstructor(ctx context.Context, instructorID, formID string) ([]domain.FormReport, error) {
	form, err := a.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	taught, err := a.classes.ClassesTaughtBy(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("load classes of instructor: %w", err)
	}
	if len(taught) == 0 {
		return []domain.FormReport{}, nil
	}
	groups, err := a.store.FinalizedGroups(ctx, form.ID, "")
	if err != nil {
		return nil, fmt.Errorf("load finalized groups: %w", err)
	}

	answered := make(map[string]bool)
	for _, g := range groups {
		if g.ClassID != "" {
			answered[g.ClassID] = true
		}
	}
	var classIDs []string
	seen := make(map[string]bool, len(taught))
	for _, id := range taught {
		if answered[id] && !seen[id] {
			seen[id] = true
			classIDs = append(classIDs, id)
		}
	}
	sort.Strings(classIDs)

	reports := make([]domain.FormReport, len(classIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, classID := range classIDs {
		i, classID := i, classID
		g.Go(func() error {
			report, err := a.AggregateForm(gctx, form.ID, classID)
			if err != nil {
				return fmt.Errorf("class %s: %w", classID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("formID", form.ID).
		Int("classes", len(reports)).
		Msg("instructor reports generated")
	return reports, nil
}

// FormStats counts finalized submissions without scoring them.
func (a *Aggregator) FormStats(ctx context.Context, formID string) (domain.FormStats, error) {
	form, err := a.forms.GetForm(ctx, formID)
	if err != nil {
		return domain.FormStats{}, err
	}
	groups, err := a.store.FinalizedGroups(ctx, form.ID, "")
	if err != nil {
		return domain.FormStats{}, fmt.Errorf("load finalized groups: %w", err)
	}
	return domain.FormStats{
		FormID:      form.ID,
		Title:       form.Title,
		Anonymous:   form.Anonymous,
		Submissions: len(groups),
		Questions:   len(form.Questions),
	}, nil
}

// scoreQuestion works at full precision; callers round when emitting.
func (a *Aggregator) scoreQuestion(ctx context.Context, form domain.Form, question domain.Question, groups []domain.ResponseGroup, answers map[string]map[string]domain.Answer) (domain.QuestionScore, error) {
	score := domain.QuestionScore{
		QuestionID: question.ID,
		Text:       question.Text,
		Type:       question.Type,
		Score:      decimal.Zero,
	}

	if question.Type == domain.FreeText {
		for _, g := range groups {
			answer, ok := answers[g.ID][question.ID]
			if !ok || answer.IsEmpty(question.Type) {
				continue
			}
			entry := domain.FreeTextAnswer{Text: strings.TrimSpace(answer.Text)}
			if !form.Anonymous {
				name, err := a.respondentName(ctx, g.ID)
				if err != nil {
					return score, err
				}
				entry.RespondentName = name
			}
			score.FreeText = append(score.FreeText, entry)
			score.TotalAnswered++
		}
		return score, nil
	}

	counts := make(map[string]int, len(question.Alternatives))
	for _, g := range groups {
		answer, ok := answers[g.ID][question.ID]
		if !ok || answer.IsEmpty(question.Type) {
			continue
		}
		score.TotalAnswered++
		for _, altID := range answer.AlternativeIDs {
			counts[altID]++
		}
	}

	alternatives := make([]domain.Alternative, len(question.Alternatives))
	copy(alternatives, question.Alternatives)
	sort.SliceStable(alternatives, func(i, j int) bool { return alternatives[i].Position < alternatives[j].Position })

	total := decimal.NewFromInt(int64(score.TotalAnswered))
	for _, alt := range alternatives {
		line := domain.AlternativeScore{
			AlternativeID: alt.ID,
			Text:          alt.Text,
			Count:         counts[alt.ID],
			Percentage:    decimal.Zero,
			Weight:        alt.Weight,
		}
		if score.TotalAnswered > 0 {
			line.Percentage = decimal.NewFromInt(int64(line.Count)).Div(total)
		}
		if alt.Weight.Valid {
			score.Weighted = true
			weighted := line.Percentage.Mul(alt.Weight.Decimal)
			line.Score = decimal.NewNullDecimal(weighted)
			score.Score = score.Score.Add(weighted)
		}
		score.Alternatives = append(score.Alternatives, line)
	}
	return score, nil
}

// respondentName resolves a display name through the audit trail. A missing identity
// yields an empty name so the text is emitted bare.
func (a *Aggregator) respondentName(ctx context.Context, groupID string) (string, error) {
	if a.trail == nil || a.identities == nil {
		return "", nil
	}
	respondentID, err := a.trail.AuditRespondent(ctx, groupID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolve respondent of group %s: %w", groupID, err)
	}
	name, err := a.identities.DisplayName(ctx, respondentID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolve display name: %w", err)
	}
	return name, nil
}

func roundQuestion(score domain.QuestionScore) domain.QuestionScore {
	score.Score = domain.RoundReport(score.Score)
	for i := range score.Alternatives {
		alt := &score.Alternatives[i]
		alt.Percentage = domain.RoundPercentage(alt.Percentage)
		if alt.Score.Valid {
			alt.Score.Decimal = domain.RoundReport(alt.Score.Decimal)
		}
	}
	return score
}

func finalizedOf(formID string, groups []domain.ResponseGroup) []domain.ResponseGroup {
	out := make([]domain.ResponseGroup, 0, len(groups))
	for _, g := range groups {
		if g.FormID == formID && g.IsFinalized() {
			out = append(out, g)
		}
	}
	return out
}

func groupIDs(groups []domain.ResponseGroup) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids
}
