package storage

import (
	"context"
	"fmt"

	"text2sparql/internal/models"
)

// AttemptAuditRepo persists one row per generation attempt.
type AttemptAuditRepo struct {
	db *DB
}

func NewAttemptAuditRepo(db *DB) *AttemptAuditRepo {
	return &AttemptAuditRepo{db: db}
}

func (r *AttemptAuditRepo) RecordAttempt(ctx context.Context, rec models.AttemptRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO generation_attempts(request_id, dataset_id, attempt_index, temperature, prompt_hash,
  provider_name, model, query, faulty, error_type, error_text, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), $9, NULLIF($10,''), NULLIF($11,''), $12)`,
		rec.RequestID, rec.DatasetID, rec.Index, rec.Temperature, rec.PromptHash,
		rec.Provider, rec.Model, rec.Query, rec.Faulty, rec.ErrorType, rec.ErrorText, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation attempt: %w", err)
	}
	return nil
}

func (r *AttemptAuditRepo) ListByRequest(ctx context.Context, requestID string) ([]models.AttemptRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT request_id, dataset_id, attempt_index, temperature, prompt_hash, COALESCE(provider_name,''),
       COALESCE(model,''), COALESCE(query,''), faulty, COALESCE(error_type,''), COALESCE(error_text,''), created_at
FROM generation_attempts
WHERE request_id=$1
ORDER BY attempt_index`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list generation attempts: %w", err)
	}
	defer rows.Close()

	var out []models.AttemptRecord
	for rows.Next() {
		var a models.AttemptRecord
		if err := rows.Scan(&a.RequestID, &a.DatasetID, &a.Index, &a.Temperature, &a.PromptHash, &a.Provider,
			&a.Model, &a.Query, &a.Faulty, &a.ErrorType, &a.ErrorText, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
