package modelstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/firesight-in/firesight/internal/domain/prediction"
)

const latestKey = "models/latest.json"

// S3Store persists model snapshots in an S3-compatible bucket. Every save
// writes a versioned object plus the well-known latest key that Load reads.
type S3Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewS3Store constructs the store.
func NewS3Store(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := strings.HasPrefix(strings.ToLower(endpoint), "https")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init model store client: %w", err)
	}
	return &S3Store{client: client, bucket: bucket, logger: logger.With("component", "modelstore.s3")}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

func (s *S3Store) Save(ctx context.Context, artifact *prediction.Artifact) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode model snapshot: %w", err)
	}
	for _, key := range []string{"models/" + artifact.Version + ".json", latestKey} {
		reader := bytes.NewReader(payload)
		if _, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(payload)), minio.PutObjectOptions{
			ContentType:      "application/json",
			DisableMultipart: len(payload) < 5*1024*1024,
		}); err != nil {
			return fmt.Errorf("store model snapshot %s: %w", key, err)
		}
	}
	s.logger.Info("model snapshot stored", "model_version", artifact.Version, "bytes", len(payload))
	return nil
}

func (s *S3Store) Load(ctx context.Context) (*prediction.Artifact, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, latestKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read model snapshot: %w", err)
	}
	var artifact prediction.Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, false, fmt.Errorf("decode model snapshot: %w", err)
	}
	return &artifact, true, nil
}

var _ prediction.ArtifactStore = (*S3Store)(nil)

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if strings.Contains(raw, "/") {
		raw = strings.Split(raw, "/")[0]
	}
	return raw
}
