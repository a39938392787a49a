package capture

import (
	"context"
	"fmt"

	"text2sparql/internal/config"
	"text2sparql/internal/storage"
	"text2sparql/internal/util"

	"go.uber.org/zap"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendNone     = "none"
)

// Ref identifies one captured question so its query can be filled in later.
type Ref struct {
	ID        string `json:"id"`
	DatasetID string `json:"dataset_id"`
}

func (r Ref) IsZero() bool { return r.ID == "" }

// Capturer records incoming questions in the challenge question format.
type Capturer interface {
	Capture(ctx context.Context, question, datasetID string) (Ref, error)
	Complete(ctx context.Context, ref Ref, query string) error
}

// New builds the capturer named by cfg.CaptureBackend. db is only used by the
// postgres backend.
func New(cfg config.Config, db *storage.DB, log *zap.Logger) (Capturer, error) {
	switch cfg.CaptureBackend {
	case "", BackendFile:
		return NewFileCapturer(cfg.CaptureDir, log), nil
	case BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("%w: postgres capture backend needs T2S_POSTGRES_URL", util.ErrConfiguration)
		}
		return NewPostgresCapturer(storage.NewCaptureRepo(db)), nil
	case BackendS3:
		c, err := NewS3Capturer(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrConfiguration, err)
		}
		return c, nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown capture backend %q", util.ErrConfiguration, cfg.CaptureBackend)
	}
}

// FileName is the per-dataset capture file, e.g. "corporate_captured.json".
func FileName(datasetID string) string {
	return config.Dataset{ID: datasetID}.Name() + "_captured.json"
}

func filePath(dir, datasetID string) string {
	return util.SafeJoin(dir, FileName(datasetID))
}

type Nop struct{}

func (Nop) Capture(context.Context, string, string) (Ref, error) { return Ref{}, nil }

func (Nop) Complete(context.Context, Ref, string) error { return nil }
