package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// RESTStore inserts meeting rows through the Supabase PostgREST API.
type RESTStore struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewRESTStore creates a PostgREST client for the given project.
func NewRESTStore(baseURL, key string, log zerolog.Logger) *RESTStore {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("apikey", key).
		SetAuthToken(key).
		SetTimeout(30 * time.Second)

	return &RESTStore{
		client: client,
		log:    log.With().Str("component", "supabase-rest").Logger(),
	}
}

// InsertMeeting writes one meetings row over PostgREST.
func (r *RESTStore) InsertMeeting(ctx context.Context, rec MeetingRecord) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=minimal").
		SetBody(rec).
		Post("/rest/v1/meetings")
	if err != nil {
		return fmt.Errorf("meetings insert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("meetings insert failed (status %d): %s", resp.StatusCode(), resp.String())
	}

	r.log.Info().Str("title", rec.Title).Str("platform", rec.Platform).Msg("meeting saved")
	return nil
}

func (r *RESTStore) Close() {}
