// Package transcribe turns recorded WebM segments into Turkish meeting
// transcript text. It builds the diarization prompt from what the bot saw in
// the meeting (participant roster, speaker timeline), calls the model with a
// retry policy that respects daily quota exhaustion, filters hallucinated
// non-speech markers, canonicalizes speaker names and merges the result into
// the accumulated transcript with a duplicate guard.
package transcribe

import (
	"context"
	"fmt"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	// Transcribe sends the instruction prompt together with raw WebM/Opus
	// audio and returns the transcript text produced by the model.
	Transcribe(ctx context.Context, prompt string, audio []byte) (string, error)
	Name() string  // "gemini"
	Model() string // model identifier for logs
}

// TextGenerator produces free-form text from a prompt. Used for the
// mid-meeting summary and the final report. *Gemini implements it.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// APIError is a non-200 response from a model endpoint. The status code
// drives the retry policy.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.StatusCode, e.Body)
}
