package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// SupabaseStore uploads objects through the Supabase Storage REST API using
// the service role key.
type SupabaseStore struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
}

// NewSupabaseStore creates a REST storage client for the given project.
func NewSupabaseStore(baseURL, key string, log zerolog.Logger) *SupabaseStore {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(key).
		SetTimeout(60 * time.Second)

	return &SupabaseStore{
		client:  client,
		baseURL: baseURL,
		log:     log.With().Str("component", "supabase-storage").Logger(),
	}
}

// Upload stores the object with upsert semantics and returns its public URL.
func (s *SupabaseStore) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetBody(data).
		Post("/storage/v1/object/" + bucket + "/" + name)
	if err != nil {
		return "", fmt.Errorf("storage upload: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("storage upload failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	url := PublicURL(s.baseURL, bucket, name)
	s.log.Info().Str("bucket", bucket).Str("name", name).Int("bytes", len(data)).Msg("object uploaded")
	return url, nil
}

func (s *SupabaseStore) Type() string { return "supabase-rest" }
