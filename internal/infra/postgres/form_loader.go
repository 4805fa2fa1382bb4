package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forms-response-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

// FormLoader reads the form catalog tables.
type FormLoader struct {
	pool *pgxpool.Pool
}

func NewFormLoader(pool *pgxpool.Pool) *FormLoader {
	return &FormLoader{pool: pool}
}

func (l *FormLoader) LoadForm(ctx context.Context, formID string) (domain.Form, error) {
	var (
		form     domain.Form
		startsAt *time.Time
		endsAt   *time.Time
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, description, anonymous, allow_edit, active, starts_at, ends_at
		FROM forms WHERE id = $1`, formID).
		Scan(&form.ID, &form.Title, &form.Description, &form.Anonymous, &form.AllowEdit, &form.Active, &startsAt, &endsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Form{}, domain.ErrFormNotFound
	}
	if err != nil {
		return domain.Form{}, fmt.Errorf("load form: %w", err)
	}
	form.StartsAt = startsAt
	form.EndsAt = endsAt

	if form.TargetRoles, err = l.targetRoles(ctx, formID); err != nil {
		return domain.Form{}, err
	}
	if form.Questions, err = l.questions(ctx, formID); err != nil {
		return domain.Form{}, err
	}
	return form, nil
}

func (l *FormLoader) FormIDOfQuestion(ctx context.Context, questionID string) (string, error) {
	var formID string
	err := l.pool.QueryRow(ctx, `SELECT form_id FROM questions WHERE id = $1`, questionID).Scan(&formID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrQuestionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("locate question: %w", err)
	}
	return formID, nil
}

func (l *FormLoader) targetRoles(ctx context.Context, formID string) ([]domain.Role, error) {
	rows, err := l.pool.Query(ctx, `SELECT role FROM form_target_roles WHERE form_id = $1 ORDER BY role`, formID)
	if err != nil {
		return nil, fmt.Errorf("load target roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan target role: %w", err)
		}
		role, err := domain.ParseRole(raw)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (l *FormLoader) questions(ctx context.Context, formID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.text, q.type, q.position, q.required,
		       a.id, a.text, a.position, a.weight::text, a.correct
		FROM questions q
		LEFT JOIN alternatives a ON a.question_id = q.id
		WHERE q.form_id = $1
		ORDER BY q.position, q.id, a.position, a.id`, formID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var (
		questions []domain.Question
		index     = make(map[string]int)
	)
	for rows.Next() {
		var (
			q        domain.Question
			rawType  string
			altID    *string
			altText  *string
			altPos   *int
			weight   *string
			altRight *bool
		)
		if err := rows.Scan(&q.ID, &q.Text, &rawType, &q.Position, &q.Required, &altID, &altText, &altPos, &weight, &altRight); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		i, seen := index[q.ID]
		if !seen {
			if q.Type, err = domain.ParseQuestionType(rawType); err != nil {
				return nil, err
			}
			q.FormID = formID
			questions = append(questions, q)
			i = len(questions) - 1
			index[q.ID] = i
		}
		if altID == nil {
			continue
		}

		alt := domain.Alternative{ID: *altID, QuestionID: q.ID, Text: *altText, Position: *altPos, Correct: *altRight}
		if weight != nil {
			w, err := decimal.NewFromString(*weight)
			if err != nil {
				return nil, fmt.Errorf("parse weight of alternative %s: %w", alt.ID, err)
			}
			alt.Weight = decimal.NewNullDecimal(w)
		}
		questions[i].Alternatives = append(questions[i].Alternatives, alt)
	}
	return questions, rows.Err()
}
