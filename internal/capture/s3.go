package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"text2sparql/internal/config"
	"text2sparql/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Capturer stores each capture as its own object under <dataset name>/.
type S3Capturer struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

func NewS3Capturer(cfg config.S3Config) (*S3Capturer, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Capturer{client: client, bucket: bucket, region: region}, nil
}

func (c *S3Capturer) ensureBucket(ctx context.Context) error {
	c.initOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.initErr = err
			return
		}
		if !exists {
			c.initErr = c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region})
		}
	})
	return c.initErr
}

func (c *S3Capturer) Capture(ctx context.Context, question, datasetID string) (Ref, error) {
	ref := Ref{ID: uuid.NewString(), DatasetID: datasetID}
	now := time.Now().UTC()
	q := models.CapturedQuestion{
		ID:       ref.ID,
		Question: []models.LocalizedString{{Language: "en", String: question}},
		Answers:  []map[string]any{},
		Dataset:  datasetID,
		Captured: &now,
	}
	if err := c.put(ctx, ref, q); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (c *S3Capturer) Complete(ctx context.Context, ref Ref, query string) error {
	if ref.IsZero() {
		return nil
	}
	if err := c.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := c.client.GetObject(ctx, c.bucket, ObjectKey(ref), minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("read capture %s: %w", ref.ID, err)
	}
	var q models.CapturedQuestion
	if err := json.Unmarshal(data, &q); err != nil {
		return fmt.Errorf("decode capture %s: %w", ref.ID, err)
	}
	q.Query.SPARQL = query
	return c.put(ctx, ref, q)
}

func (c *S3Capturer) put(ctx context.Context, ref Ref, q models.CapturedQuestion) error {
	if err := c.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	body, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = c.client.PutObject(ctx, c.bucket, ObjectKey(ref), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func ObjectKey(ref Ref) string {
	return config.Dataset{ID: ref.DatasetID}.Name() + "/" + ref.ID + ".json"
}
