package postgres

import (
	"context"
	"errors"
	"fmt"

	"forms-response-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Directory resolves respondent names and instructor assignments from the catalog tables.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) DisplayName(ctx context.Context, respondentID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT display_name FROM respondents WHERE id = $1`, respondentID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrRespondentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load respondent: %w", err)
	}
	return name, nil
}

func (d *Directory) ClassesTaughtBy(ctx context.Context, instructorID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT class_id FROM class_instructors
		WHERE instructor_id = $1
		ORDER BY class_id`, instructorID)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, id)
	}
	return classes, rows.Err()
}
