package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/transcribe"
)

// BotHandler serves the control-plane endpoints the frontend calls.
type BotHandler struct {
	cfg        *config.Config
	store      *ipc.Store
	control    WorkerController
	summarizer transcribe.TextGenerator
	log        zerolog.Logger
}

type startBotRequest struct {
	Platform   string `json:"platform"`
	MeetingURL string `json:"meeting_url"`
	Title      string `json:"title"`
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
}

// StartBot validates the submission, parses Zoom identifiers, clears stale
// meeting data and writes the job document the dispatcher picks up.
func (h *BotHandler) StartBot(w http.ResponseWriter, r *http.Request) {
	var req startBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteFail(w, http.StatusBadRequest, "Geçersiz istek gövdesi")
		return
	}

	platformName := strings.ToLower(strings.TrimSpace(req.Platform))
	if platformName == "" {
		platformName = ipc.PlatformZoom
	}
	if !ipc.ValidPlatform(platformName) {
		WriteFail(w, http.StatusBadRequest, fmt.Sprintf("Desteklenmeyen platform: %s", platformName))
		return
	}

	meetingURL := strings.TrimSpace(req.MeetingURL)
	if meetingURL == "" {
		WriteFail(w, http.StatusBadRequest, "meeting_url boş olamaz")
		return
	}

	if h.busy() {
		WriteFail(w, http.StatusConflict, "Bot zaten bir toplantıda. Önce mevcut görevi durdurun.")
		return
	}

	job := ipc.Job{
		Active:         true,
		Platform:       platformName,
		MeetingURL:     meetingURL,
		BotDisplayName: h.cfg.BotName,
		Title:          strings.TrimSpace(req.Title),
		UserID:         strings.TrimSpace(req.UserID),
		CreatedAt:      time.Now(),
	}
	if job.Title == "" {
		job.Title = platformTitle(platformName) + " Toplantısı"
	}

	if platformName == ipc.PlatformZoom {
		meetingID, passcode, ok := ParseZoomLink(meetingURL)
		if !ok {
			WriteFail(w, http.StatusBadRequest, "Zoom Meeting ID bulunamadı")
			return
		}
		job.MeetingID = meetingID
		// A manually supplied password wins over the one in the link.
		if manual := strings.TrimSpace(req.Password); manual != "" {
			job.Passcode = manual
		} else {
			job.Passcode = passcode
		}
	}

	h.cleanBeforeMeeting(r)

	if err := h.store.WriteJob(job); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("job write failed")
		WriteFail(w, http.StatusInternalServerError, "Görev kaydedilemedi")
		return
	}
	hlog.FromRequest(r).Info().Str("platform", platformName).Str("title", job.Title).Msg("meeting job created")

	botID := job.MeetingID
	if botID == "" {
		botID = truncate(meetingURL, 20)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"platform":    platformName,
		"meeting_url": meetingURL,
		"bot_id":      botID,
		"message":     fmt.Sprintf("%s toplantısına katılma görevi oluşturuldu", platformTitle(platformName)),
	})
}

// cleanBeforeMeeting drops the previous meeting's transcript and report
// artifacts so a stale transcript can never leak into the new meeting.
func (h *BotHandler) cleanBeforeMeeting(r *http.Request) {
	h.store.DeleteTranscript()
	dir := h.cfg.TempReportsDir()
	if err := os.RemoveAll(dir); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("temp reports cleanup failed")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("temp reports dir recreate failed")
	}
}

func (h *BotHandler) busy() bool {
	if h.control != nil && h.control.Busy() {
		return true
	}
	if job, ok := h.store.Job(); ok && job.Active {
		return true
	}
	return false
}

type botCommandRequest struct {
	Command string `json:"command"`
}

var commandAcks = map[string]string{
	ipc.CommandPause:  "Kayıt duraklatma komutu gönderildi",
	ipc.CommandResume: "Kayıt devam ettirme komutu gönderildi",
	ipc.CommandStop:   "Bot durdurma komutu gönderildi",
}

// BotCommand queues pause/resume/stop for the worker, or produces an inline
// mid-meeting summary.
func (h *BotHandler) BotCommand(w http.ResponseWriter, r *http.Request) {
	var req botCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteFail(w, http.StatusBadRequest, "Geçersiz istek gövdesi")
		return
	}

	switch req.Command {
	case ipc.CommandPause, ipc.CommandResume, ipc.CommandStop:
		if err := h.store.WriteCommand(req.Command); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("command write failed")
			WriteFail(w, http.StatusInternalServerError, "Komut kaydedilemedi")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": commandAcks[req.Command]})
	case "summary":
		h.summary(w, r)
	default:
		WriteFail(w, http.StatusBadRequest, "Geçersiz komut")
	}
}

// summary runs a one-shot model call over the transcript tail; nothing is
// queued for the worker.
func (h *BotHandler) summary(w http.ResponseWriter, r *http.Request) {
	transcript := strings.TrimSpace(h.store.Transcript())
	if transcript == "" {
		WriteJSON(w, http.StatusOK, failBody{OK: false, Error: "Henüz transkript yok"})
		return
	}
	if h.summarizer == nil {
		WriteJSON(w, http.StatusOK, failBody{OK: false, Error: "Özet servisi yapılandırılmamış (GEMINI_API_KEY)"})
		return
	}

	text, err := h.summarizer.GenerateText(r.Context(), transcribe.SummaryPrompt(transcript))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("summary generation failed")
		WriteJSON(w, http.StatusOK, failBody{OK: false, Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": text})
}

// BotStatus merges the job document and the worker status for the UI.
func (h *BotHandler) BotStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.store.Job()
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{
			"task":   map[string]any{"active": false},
			"worker": h.workerView(""),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"task":   job,
		"worker": h.workerView(job.Platform),
	})
}

func (h *BotHandler) workerView(platformName string) map[string]any {
	ws := h.store.WorkerStatus()
	if platformName == "" {
		platformName = ws.Platform
	}
	view := map[string]any{
		"platform":         platformName,
		"running":          ws.Running,
		"recording":        ws.Recording,
		"paused":           ws.Paused,
		"status_message":   ws.StatusMessage,
		"transcript_ready": utf8.RuneCountInString(strings.TrimSpace(h.store.Transcript())) > 10,
	}
	if ws.Error != "" {
		view["error"] = ws.Error
	}
	return view
}

// ClearWorkerError drops a surfaced error from the status document so the
// UI banner disappears.
func (h *BotHandler) ClearWorkerError(w http.ResponseWriter, r *http.Request) {
	err := h.store.UpdateWorkerStatus(func(ws *ipc.WorkerStatus) {
		ws.Error = ""
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("status update failed")
		WriteFail(w, http.StatusInternalServerError, "Durum güncellenemedi")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func platformTitle(p string) string {
	switch p {
	case ipc.PlatformZoom:
		return "Zoom"
	case ipc.PlatformTeams:
		return "Teams"
	case ipc.PlatformMeet:
		return "Google Meet"
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
