package capture

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type captureStore interface {
	Insert(ctx context.Context, id uuid.UUID, datasetID, question string) error
	SetQuery(ctx context.Context, id uuid.UUID, sparql string) error
}

type PostgresCapturer struct {
	store captureStore
}

func NewPostgresCapturer(store captureStore) *PostgresCapturer {
	return &PostgresCapturer{store: store}
}

func (c *PostgresCapturer) Capture(ctx context.Context, question, datasetID string) (Ref, error) {
	id := uuid.New()
	if err := c.store.Insert(ctx, id, datasetID, question); err != nil {
		return Ref{}, err
	}
	return Ref{ID: id.String(), DatasetID: datasetID}, nil
}

func (c *PostgresCapturer) Complete(ctx context.Context, ref Ref, query string) error {
	if ref.IsZero() {
		return nil
	}
	id, err := uuid.Parse(ref.ID)
	if err != nil {
		return fmt.Errorf("capture ref: %w", err)
	}
	return c.store.SetQuery(ctx, id, query)
}
