package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sesly/sesly-engine/internal/metrics"
	"github.com/sesly/sesly-engine/internal/transcribe"
)

// Segments below this size carry no speech worth sending to the model.
const minSegmentMB = 0.01

const maxUploadBytes = 64 << 20

// TranscribeHandler receives audio segments from the recorder process and
// runs them through the transcription pipeline.
type TranscribeHandler struct {
	svc Transcriber
	log zerolog.Logger
}

// TranscribeWebM accepts a multipart upload with an "audio" file plus
// optional start_time/duration/speaker_name/platform fields. Rejections and
// silence come back as 200 so the recorder deletes the segment either way;
// non-200 means "keep the file and retry".
func (h *TranscribeHandler) TranscribeWebM(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		WriteFail(w, http.StatusServiceUnavailable, "Transkripsiyon servisi yapılandırılmamış (GEMINI_API_KEY)")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteFail(w, http.StatusBadRequest, "Geçersiz multipart isteği")
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		WriteFail(w, http.StatusBadRequest, "audio dosyası eksik")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		WriteFail(w, http.StatusBadRequest, "audio dosyası okunamadı")
		return
	}

	sizeMB := float64(len(audio)) / (1024 * 1024)
	metrics.SegmentSizeBytes.Observe(float64(len(audio)))
	if sizeMB < minSegmentMB {
		metrics.SegmentsRejectedTotal.Inc()
		WriteJSON(w, http.StatusOK, failBody{OK: false, Error: "WebM dosyası çok küçük (< 0.01 MB)"})
		return
	}
	metrics.SegmentsUploadedTotal.Inc()

	seg := transcribe.Segment{
		Audio:       audio,
		SpeakerHint: r.FormValue("speaker_name"),
		Platform:    r.FormValue("platform"),
	}
	start, startErr := strconv.ParseFloat(r.FormValue("start_time"), 64)
	duration, durErr := strconv.ParseFloat(r.FormValue("duration"), 64)
	if startErr == nil && durErr == nil {
		seg.Start = start
		seg.Duration = duration
		seg.HasWindow = true
	}

	began := time.Now()
	text, err := h.svc.TranscribeSegment(r.Context(), seg)
	elapsed := time.Since(began)
	metrics.TranscriptionDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
		hlog.FromRequest(r).Error().Err(err).Msg("transcription failed")
		WriteFail(w, http.StatusInternalServerError, err.Error())
		return
	}

	if text == "" {
		metrics.TranscriptionsTotal.WithLabelValues("silence").Inc()
		WriteJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"transcript": "",
			"info":       "Silence detected",
		})
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < 10 {
		metrics.TranscriptionsTotal.WithLabelValues("too_short").Inc()
		WriteJSON(w, http.StatusOK, failBody{OK: false, Error: "Transkript oluşturulamadı veya çok kısa"})
		return
	}

	res, err := h.svc.Append(text)
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
		hlog.FromRequest(r).Error().Err(err).Msg("transcript append failed")
		WriteFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.TranscriptionsTotal.WithLabelValues("ok").Inc()

	resp := map[string]any{
		"ok":                      true,
		"transcript":              text,
		"transcript_length":       utf8.RuneCountInString(res.Transcript),
		"segment_length":          utf8.RuneCountInString(text),
		"webm_size_mb":            roundTo(sizeMB, 2),
		"processing_time_seconds": roundTo(elapsed.Seconds(), 1),
	}
	if !res.Appended && res.Info != "" {
		resp["info"] = res.Info
	}
	WriteJSON(w, http.StatusOK, resp)
}

func roundTo(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}
