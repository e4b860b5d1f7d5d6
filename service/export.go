package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tautulli/Tautulli-sub004/repository"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

// ExportService serializes completed-session history as JSON lines and
// uploads it to object storage.
type ExportService struct {
	repo    repository.SessionRepository
	storage *minio.Client
	bucket  string
}

func NewExportService(repo repository.SessionRepository, storage *minio.Client, bucket string) *ExportService {
	return &ExportService{
		repo:    repo,
		storage: storage,
		bucket:  bucket,
	}
}

// ExportHistory uploads every history entry stopped at or after since,
// metadata included, and returns the object name and row count.
func (s *ExportService) ExportHistory(ctx context.Context, since time.Time) (string, int, error) {
	entries, err := s.repo.ListHistorySince(ctx, since)
	if err != nil {
		return "", 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return "", 0, err
		}
	}

	objectName := fmt.Sprintf("exports/history-%s-%s.jsonl",
		time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])

	_, err = s.storage.PutObject(ctx, s.bucket, objectName, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("object", objectName).Msg("history export upload failed")
		return "", 0, err
	}

	zerolog.Ctx(ctx).Info().Str("object", objectName).Int("rows", len(entries)).Msg("history export uploaded")
	return objectName, len(entries), nil
}
