package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/metrics"
)

// QuotaExhaustedText is written into the transcript when the daily API quota
// runs out. Retrying is pointless until the quota resets, so no retry
// happens and downstream consumers see the condition in the transcript.
const QuotaExhaustedText = "[HATA] Günlük API quota doldu. Yarın tekrar deneyin."

const (
	maxAttempts = 5
	retryDelay  = 30 * time.Second
	dedupWindow = 15000
)

// Service runs the segment transcription pipeline: prompt assembly, model
// call with retry, ghost filtering, name canonicalization and deduplicated
// transcript append.
type Service struct {
	provider Provider
	store    *ipc.Store
	log      zerolog.Logger

	baseDelay time.Duration
}

func NewService(provider Provider, store *ipc.Store, log zerolog.Logger) *Service {
	return &Service{
		provider:  provider,
		store:     store,
		log:       log,
		baseDelay: retryDelay,
	}
}

// Segment is one uploaded recorder chunk.
type Segment struct {
	Audio       []byte
	SpeakerHint string  // last visually detected speaker, may be ""
	Start       float64 // unix seconds at segment open
	Duration    float64 // seconds
	HasWindow   bool    // Start and Duration were provided
	Platform    string
}

// TranscribeSegment transcribes one audio segment. Silence returns ("", nil).
// Quota exhaustion and exhausted retries return sentinel [HATA] text rather
// than an error, so the condition is preserved in the transcript; the error
// return is reserved for context cancellation.
func (s *Service) TranscribeSegment(ctx context.Context, seg Segment) (string, error) {
	snap := s.store.Participants()
	if len(snap.Participants) > 0 {
		s.log.Info().Int("participants", len(snap.Participants)).Msg("participant roster loaded for transcription")
	}

	in := PromptInput{
		Participants: snap.Participants,
		SpeakerHint:  seg.SpeakerHint,
		Platform:     seg.Platform,
	}
	if seg.HasWindow {
		in.TimelineHint = TimelineHint(s.store, seg.Start, seg.Duration)
		if in.TimelineHint != "" {
			s.log.Debug().Int("lines", strings.Count(in.TimelineHint, "\n")+1).Msg("timeline hint attached")
		}
	}

	text, err := s.generateWithRetry(ctx, BuildPrompt(in), seg.Audio)
	if err != nil {
		return "", err
	}

	clean := stripGhosts(text)
	if utf8.RuneCountInString(clean) < 2 {
		s.log.Info().Int("chars", utf8.RuneCountInString(clean)).Msg("silence detected, no transcript produced")
		return "", nil
	}
	clean = canonicalizeNames(clean, snap.Participants)
	return cleanTranscript(clean), nil
}

func (s *Service) generateWithRetry(ctx context.Context, prompt string, audio []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := s.provider.Transcribe(ctx, prompt, audio)
		if err == nil {
			s.log.Debug().Int("attempt", attempt).Msg("transcription succeeded")
			return text, nil
		}
		lastErr = err

		if isQuotaExhausted(err) {
			metrics.QuotaExhaustedTotal.Inc()
			s.log.Error().Err(err).Msg("daily API quota exhausted, not retrying")
			return QuotaExhaustedText, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		// Flat delay for ordinary failures, exponential for rate limits
		// (30s, 60s, 120s, 240s).
		delay := s.baseDelay
		if isRateLimited(err) {
			delay = s.baseDelay << (attempt - 1)
		}
		metrics.TranscriptionRetriesTotal.Inc()
		s.log.Warn().Err(err).Int("attempt", attempt).Int("max", maxAttempts).Dur("delay", delay).
			Msg("transcription attempt failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	s.log.Error().Err(lastErr).Msg("transcription retries exhausted")
	return fmt.Sprintf("[HATA] Transkripsiyon yapılamadı: %s", truncateRunes(lastErr.Error(), 100)), nil
}

func isQuotaExhausted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "current quota") || strings.Contains(msg, "billing")
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}

// AppendResult is the outcome of merging a segment into the transcript.
type AppendResult struct {
	Transcript string // combined transcript after the call
	Appended   bool
	Info       string // skip reason when Appended is false
}

// Append merges cleaned segment text into the accumulated transcript,
// dropping duplicate or mostly-duplicate segments.
func (s *Service) Append(text string) (AppendResult, error) {
	var info string
	appended, err := s.store.AppendTranscript(text, func(existing, candidate string) string {
		out, reason := dedupCheck(existing, candidate)
		info = reason
		return out
	})
	if err != nil {
		return AppendResult{}, err
	}
	if !appended {
		s.log.Info().Int("chars", len(text)).Str("reason", info).Msg("segment content not appended")
	}
	return AppendResult{
		Transcript: s.store.Transcript(),
		Appended:   appended,
		Info:       info,
	}, nil
}
