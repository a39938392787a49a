package storage

import (
	"context"
	"fmt"
	"time"

	"text2sparql/internal/models"

	"github.com/google/uuid"
)

// CaptureRepo stores captured questions and the query eventually produced
// for them.
type CaptureRepo struct {
	db *DB
}

func NewCaptureRepo(db *DB) *CaptureRepo {
	return &CaptureRepo{db: db}
}

func (r *CaptureRepo) Insert(ctx context.Context, id uuid.UUID, datasetID, question string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO captured_questions(capture_id, dataset_id, question)
VALUES ($1, $2, $3)
ON CONFLICT (capture_id) DO NOTHING`, id, datasetID, question)
	if err != nil {
		return fmt.Errorf("insert captured question: %w", err)
	}
	return nil
}

func (r *CaptureRepo) SetQuery(ctx context.Context, id uuid.UUID, sparql string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE captured_questions SET sparql=$2, updated_at=NOW() WHERE capture_id=$1`, id, sparql)
	if err != nil {
		return fmt.Errorf("update captured question: %w", err)
	}
	return nil
}

// ListByDataset returns the captures of datasetID in challenge order, ids
// numbered from 1.
func (r *CaptureRepo) ListByDataset(ctx context.Context, datasetID string) ([]models.CapturedQuestion, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT question, language, sparql, captured_at
FROM captured_questions
WHERE dataset_id=$1
ORDER BY captured_at, capture_id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list captured questions: %w", err)
	}
	defer rows.Close()

	var out []models.CapturedQuestion
	for rows.Next() {
		var q models.CapturedQuestion
		var text, lang string
		q.Captured = new(time.Time)
		if err := rows.Scan(&text, &lang, &q.Query.SPARQL, q.Captured); err != nil {
			return nil, fmt.Errorf("scan captured question: %w", err)
		}
		q.ID = fmt.Sprint(len(out) + 1)
		q.Dataset = datasetID
		q.Question = []models.LocalizedString{{Language: lang, String: text}}
		q.Answers = []map[string]any{}
		out = append(out, q)
	}
	return out, rows.Err()
}
