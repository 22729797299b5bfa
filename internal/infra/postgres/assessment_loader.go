package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assessment-attempt-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AssessmentLoader loads assessment content JSONB from Postgres.
type AssessmentLoader struct {
	pool *pgxpool.Pool
}

func NewAssessmentLoader(pool *pgxpool.Pool) *AssessmentLoader {
	return &AssessmentLoader{pool: pool}
}

func (l *AssessmentLoader) LoadAssessment(ctx context.Context, assessmentID string) (domain.AssessmentContent, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM assessments WHERE id=$1`, assessmentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssessmentContent{}, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return domain.AssessmentContent{}, fmt.Errorf("load assessment: %w", err)
	}
	var content domain.AssessmentContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return domain.AssessmentContent{}, fmt.Errorf("unmarshal assessment: %w", err)
	}
	return content, nil
}

// SaveAssessment upserts content keyed by its assessment id.
func (l *AssessmentLoader) SaveAssessment(ctx context.Context, content domain.AssessmentContent) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO assessments (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		content.Assessment.ID, raw)
	if err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}
