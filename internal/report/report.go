// Package report builds the end-of-meeting deliverables: per-speaker
// statistics from the transcript and the visual activity log, a Turkish HTML
// analysis report generated by the model (with a deterministic fallback),
// local artifacts under temp_reports/, uploads to the report and transcript
// buckets, and the meetings table row.
package report

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/database"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/storage"
	"github.com/sesly/sesly-engine/internal/transcribe"
)

var errNoModel = errors.New("GEMINI_API_KEY tanımlı değil, model çağrısı yapılamadı")

// Builder generates and publishes the meeting report.
type Builder struct {
	cfg      *config.Config
	store    *ipc.Store
	gen      transcribe.TextGenerator
	objects  storage.ObjectStore
	meetings database.MeetingStore
	log      zerolog.Logger

	now func() time.Time
}

// New creates a Builder. gen may be nil when no model API key is configured;
// the deterministic fallback report is used in that case.
func New(cfg *config.Config, store *ipc.Store, gen transcribe.TextGenerator, objects storage.ObjectStore, meetings database.MeetingStore, log zerolog.Logger) *Builder {
	return &Builder{
		cfg:      cfg,
		store:    store,
		gen:      gen,
		objects:  objects,
		meetings: meetings,
		log:      log.With().Str("component", "report").Logger(),
		now:      time.Now,
	}
}

// Run builds the report for the meeting currently on disk: statistics, the
// model-generated (or fallback) HTML body, the local artifact, uploads, and
// the meetings row. The returned error covers only the local HTML file;
// upload and persistence failures are logged and leave the files in place.
func (b *Builder) Run(ctx context.Context) error {
	transcript := b.store.Transcript()
	job, _ := b.store.Job()
	title := strings.TrimSpace(job.Title)

	participants, source := b.loadParticipants(transcript)
	tstats := analyzeTranscript(transcript, participants)
	activity, hasActivity := loadActivityStats(b.store.ActivityLogPath())

	b.log.Info().
		Str("title", title).
		Int("participants", len(participants)).
		Str("participant_source", source).
		Int("speakers", tstats.TotalSpeakers).
		Int("identified", len(tstats.Identified)).
		Bool("activity_stats", hasActivity).
		Msg("report inputs assembled")

	body := b.reportBody(ctx, title, transcript, participants, tstats, activity, hasActivity)

	now := b.now()
	page, err := renderShell(body, title, now)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	dir := b.cfg.TempReportsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	htmlPath := filepath.Join(dir, fmt.Sprintf("Toplanti_Raporu_%s_%s.html", now.Format("20060102_150405"), shortID()))
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	b.log.Info().Str("path", htmlPath).Float64("size_kb", float64(len(page))/1024).Msg("HTML report written")

	reportURL := b.upload(ctx, b.cfg.ReportBucket, htmlPath, []byte(page))
	if reportURL != "" {
		b.persist(ctx, job, transcript, reportURL)
	}
	return nil
}

// loadParticipants returns the filtered participant list and where it came
// from: the snapshot file, or names scraped from the transcript when no
// snapshot survived.
func (b *Builder) loadParticipants(transcript string) ([]string, string) {
	names := filterParticipants(b.store.Participants().Participants)
	if len(names) > 0 {
		return names, "snapshot"
	}
	if extracted := extractNames(transcript); len(extracted) > 0 {
		return extracted, "transcript"
	}
	return nil, "none"
}

func (b *Builder) reportBody(ctx context.Context, title, transcript string, participants []string, tstats TranscriptStats, activity ActivityStats, hasActivity bool) string {
	if utf8.RuneCountInString(strings.TrimSpace(transcript)) < 10 {
		b.log.Warn().Msg("no usable transcript, writing placeholder report")
		return noTranscriptBody(participants)
	}
	if b.gen == nil {
		b.log.Warn().Msg("no model configured, using fallback report")
		return fallbackBody(participants, tstats.TotalSpeakers, errNoModel)
	}

	text, err := b.gen.GenerateText(ctx, buildPrompt(title, transcript, activity, hasActivity))
	if err != nil {
		b.log.Error().Err(err).Msg("report generation failed, using fallback")
		return fallbackBody(participants, tstats.TotalSpeakers, err)
	}
	if strings.TrimSpace(text) == "" {
		text = "Rapor oluşturulamadı."
	}
	b.log.Info().Int("chars", len(text)).Msg("model report generated")
	return stripFences(text)
}

// upload pushes one artifact and returns its public URL, "" on failure. The
// local file stays either way.
func (b *Builder) upload(ctx context.Context, bucket, path string, data []byte) string {
	name := filepath.Base(path)
	url, err := b.objects.Upload(ctx, bucket, name, data, storage.ContentTypeFor(name))
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			b.log.Info().Str("name", name).Msg("object storage not configured, upload skipped")
		} else {
			b.log.Warn().Err(err).Str("bucket", bucket).Str("name", name).Msg("artifact upload failed")
		}
		return ""
	}
	b.log.Info().Str("url", url).Msg("artifact uploaded")
	return url
}

// persist uploads the transcript artifact and inserts the meetings row.
// Skipped entirely for guest meetings without a user_id.
func (b *Builder) persist(ctx context.Context, job ipc.Job, transcript, reportURL string) {
	if job.UserID == "" {
		b.log.Info().Msg("no user_id on job, skipping meeting record")
		return
	}

	now := b.now()
	txtName := fmt.Sprintf("transcript_%s_%s.txt", now.Format("20060102_150405"), shortID())
	txtPath := filepath.Join(b.cfg.TempReportsDir(), txtName)

	transcriptURL := ""
	if err := os.WriteFile(txtPath, []byte(transcript), 0o644); err != nil {
		b.log.Warn().Err(err).Msg("transcript artifact write failed")
	} else {
		transcriptURL = b.upload(ctx, b.cfg.TranscriptBucket, txtPath, []byte(transcript))
	}

	// Rough duration estimate until the worker records real timings:
	// a thousand transcript characters per minute of meeting.
	minutes := utf8.RuneCountInString(transcript) / 1000
	duration := "1 dk"
	if minutes > 0 {
		duration = fmt.Sprintf("%d dk", minutes)
	}

	title := strings.TrimSpace(job.Title)
	if title == "" {
		title = "İsimsiz Toplantı"
	}
	platform := job.Platform
	if platform == "" {
		platform = "Zoom"
	}

	rec := database.MeetingRecord{
		UserID:        job.UserID,
		Title:         title,
		Platform:      platform,
		StartTime:     now.UTC(),
		Duration:      duration,
		TranscriptURL: transcriptURL,
		ReportURL:     reportURL,
		SummaryText:   "Otomatik oluşturulan toplantı raporu.",
	}
	if err := b.meetings.InsertMeeting(ctx, rec); err != nil {
		if errors.Is(err, database.ErrNotConfigured) {
			b.log.Info().Msg("meeting persistence not configured, row skipped")
		} else {
			b.log.Error().Err(err).Msg("meeting row insert failed")
		}
		return
	}
	b.log.Info().Str("user_id", job.UserID).Str("duration", duration).Msg("meeting saved to database")
}

// shortID returns the 8-hex-char suffix that keeps artifact names unique
// across meetings started in the same second.
func shortID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}
