package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the Google Generative Language REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// SafetySetting is one safetySettings element of a generateContent request.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// Safety presets. Speech-to-text only disables the dangerous-content filter;
// report generation disables all four categories.
var (
	SafetySTT = []SafetySetting{
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
	}
	SafetyAllOff = []SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
	}
)

// Gemini calls models/<model>:generateContent over REST with inline audio
// or plain text. Implements Provider and TextGenerator.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string
	safety  []SafetySetting
	client  *http.Client
}

// NewGemini creates a Gemini REST client. An empty baseURL selects the
// Google endpoint; safety may be nil to send no safetySettings.
func NewGemini(baseURL, apiKey, model string, timeout time.Duration, safety []SafetySetting) *Gemini {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Gemini{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		safety:  safety,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// Wire structures for the v1beta REST API.
type geminiRequest struct {
	Contents       []geminiContent `json:"contents"`
	SafetySettings []SafetySetting `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// Transcribe sends the prompt and the WebM audio as one user turn.
func (g *Gemini) Transcribe(ctx context.Context, prompt string, audio []byte) (string, error) {
	parts := []geminiPart{
		{Text: prompt},
		{InlineData: &geminiInlineData{
			MimeType: "audio/webm",
			Data:     base64.StdEncoding.EncodeToString(audio),
		}},
	}
	return g.generate(ctx, parts)
}

// GenerateText sends a text-only prompt.
func (g *Gemini) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, []geminiPart{{Text: prompt}})
}

func (g *Gemini) generate(ctx context.Context, parts []geminiPart) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents:       []geminiContent{{Role: "user", Parts: parts}},
		SafetySettings: g.safety,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	// A blocked or empty response is not an error; the caller's silence
	// filter decides what to do with "".
	return result.text(), nil
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
