package storage

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS generation_attempts (
  id            BIGSERIAL PRIMARY KEY,
  request_id    TEXT NOT NULL,
  dataset_id    TEXT NOT NULL,
  attempt_index INT NOT NULL,
  temperature   DOUBLE PRECISION NOT NULL,
  prompt_hash   TEXT NOT NULL,
  provider_name TEXT,
  model         TEXT,
  query         TEXT,
  faulty        BOOLEAN NOT NULL,
  error_type    TEXT,
  error_text    TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS generation_attempts_request_idx ON generation_attempts(request_id);

CREATE TABLE IF NOT EXISTS captured_questions (
  capture_id  UUID PRIMARY KEY,
  dataset_id  TEXT NOT NULL,
  question    TEXT NOT NULL,
  language    TEXT NOT NULL DEFAULT 'en',
  sparql      TEXT NOT NULL DEFAULT '',
  captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS captured_questions_dataset_idx ON captured_questions(dataset_id, captured_at);
`

// EnsureSchema creates the attempt and capture tables when missing.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
