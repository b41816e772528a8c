package recorder

import (
	"context"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/ipc"
)

const (
	// A segment upload carries the whole transcription round trip, not just
	// the transfer, so the timeout matches the engine's processing budget.
	uploadTimeout = 300 * time.Second

	speakerWindow = 10.0
	activityTail  = 50
)

// Uploader posts finished segments to the engine's transcription endpoint.
type Uploader struct {
	client *resty.Client
	store  *ipc.Store
	log    zerolog.Logger
}

func NewUploader(serverURL string, store *ipc.Store, log zerolog.Logger) *Uploader {
	client := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(uploadTimeout)
	return &Uploader{client: client, store: store, log: log}
}

// Upload posts one chunk with its attribution metadata. Returns true when
// the engine accepted it.
func (u *Uploader) Upload(ctx context.Context, path string, start, duration float64) bool {
	name := filepath.Base(path)

	req := u.client.R().
		SetContext(ctx).
		SetFile("audio", path).
		SetFormData(map[string]string{
			"start_time": strconv.FormatFloat(start, 'f', -1, 64),
			"duration":   strconv.FormatFloat(duration, 'f', -1, 64),
		})
	if speaker := u.speakerHint(path); speaker != "" {
		req.SetFormData(map[string]string{"speaker_name": speaker})
	}
	if snap := u.store.Participants(); snap.Platform != "" {
		req.SetFormData(map[string]string{"platform": snap.Platform})
	}

	resp, err := req.Post("/transcribe-webm")
	if err != nil {
		u.log.Warn().Err(err).Str("chunk", name).Msg("segment upload failed")
		return false
	}
	if resp.StatusCode() != http.StatusOK {
		u.log.Warn().Int("status", resp.StatusCode()).Str("chunk", name).
			Str("body", firstBytes(resp.String(), 200)).Msg("segment rejected by engine")
		return false
	}
	u.log.Info().Str("chunk", name).Float64("duration", duration).Msg("segment uploaded")
	return true
}

// speakerHint matches the chunk's close time against the speaker activity
// log.
func (u *Uploader) speakerHint(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	ts := float64(info.ModTime().UnixNano()) / float64(time.Second)
	return speakerNear(u.store.Activity(), ts)
}

// speakerNear scans the most recent activity entries in chronological order.
// The first entry within the window decides: an empty one still ends the
// search, so a silent span never borrows an older speaker.
func speakerNear(entries []ipc.ActivityEntry, ts float64) string {
	if len(entries) > activityTail {
		entries = entries[len(entries)-activityTail:]
	}
	for _, e := range entries {
		if math.Abs(e.Timestamp-ts) < speakerWindow {
			if len(e.Speakers) > 0 {
				return e.Speakers[0]
			}
			return ""
		}
	}
	return ""
}

func firstBytes(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
