// Package storage uploads report and transcript artifacts to Supabase
// Storage, over the REST object API by default or the S3-compatible endpoint
// when S3 credentials are configured.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/config"
)

// ErrNotConfigured is returned by the disabled store when no Supabase
// credentials are present. Callers treat it as "skip upload".
var ErrNotConfigured = errors.New("object storage not configured")

// ObjectStore uploads a named object into a bucket and returns its public URL.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error)
	Type() string
}

// New selects the storage backend from config: S3 protocol when S3 keys are
// set, REST otherwise, disabled when no Supabase project is configured.
func New(cfg *config.Config, log zerolog.Logger) (ObjectStore, error) {
	switch {
	case cfg.S3Enabled():
		return NewS3Store(cfg.SupabaseURL, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageRegion, log)
	case cfg.SupabaseEnabled():
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey(), log), nil
	default:
		return disabledStore{}, nil
	}
}

type disabledStore struct{}

func (disabledStore) Upload(context.Context, string, string, []byte, string) (string, error) {
	return "", ErrNotConfigured
}

func (disabledStore) Type() string { return "disabled" }

// ContentTypeFor maps an artifact filename to its upload content type.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html":
		return "text/html"
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

// PublicURL builds the public object URL for a Supabase Storage bucket.
func PublicURL(baseURL, bucket, name string) string {
	return strings.TrimRight(baseURL, "/") + "/storage/v1/object/public/" + bucket + "/" + name
}
