package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"text2sparql/internal/logging"
	"text2sparql/internal/models"
	"text2sparql/internal/util"

	"go.uber.org/zap"
)

// FileCapturer appends questions to one JSON file per dataset. Writes are
// serialized and atomic.
type FileCapturer struct {
	dir string
	mu  sync.Mutex
	log *zap.Logger
}

func NewFileCapturer(dir string, log *zap.Logger) *FileCapturer {
	return &FileCapturer{dir: dir, log: logging.OrNop(log)}
}

func (c *FileCapturer) Capture(_ context.Context, question, datasetID string) (Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filePath(c.dir, datasetID)
	f, err := readFile(path)
	if err != nil {
		return Ref{}, err
	}
	id := strconv.Itoa(len(f.Questions) + 1)
	f.Questions = append(f.Questions, models.CapturedQuestion{
		ID:       id,
		Question: []models.LocalizedString{{Language: "en", String: question}},
		Query:    models.CapturedQuery{SPARQL: ""},
		Answers:  []map[string]any{},
	})
	if err := util.WriteJSONAtomic(path, f); err != nil {
		return Ref{}, fmt.Errorf("write capture file: %w", err)
	}
	c.log.Debug("question captured", zap.String("file", path), zap.String("id", id))
	return Ref{ID: id, DatasetID: datasetID}, nil
}

func (c *FileCapturer) Complete(_ context.Context, ref Ref, query string) error {
	if ref.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filePath(c.dir, ref.DatasetID)
	f, err := readFile(path)
	if err != nil {
		return err
	}
	for i := range f.Questions {
		if f.Questions[i].ID == ref.ID {
			f.Questions[i].Query.SPARQL = query
			return util.WriteJSONAtomic(path, f)
		}
	}
	return fmt.Errorf("capture %s not found in %s", ref.ID, path)
}

func readFile(path string) (models.CapturedFile, error) {
	var f models.CapturedFile
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.CapturedFile{Questions: []models.CapturedQuestion{}}, nil
	}
	if err != nil {
		return f, fmt.Errorf("read capture file: %w", err)
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("decode capture file %s: %w", path, err)
	}
	return f, nil
}
