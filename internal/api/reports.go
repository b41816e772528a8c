package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
)

// ReportFilesHandler serves the HTML reports kept under temp_reports and the
// raw transcript.
type ReportFilesHandler struct {
	cfg   *config.Config
	store *ipc.Store
	log   zerolog.Logger
}

// LatestReport serves the newest HTML report, or 404 when none exists yet.
func (h *ReportFilesHandler) LatestReport(w http.ResponseWriter, r *http.Request) {
	name, ok := h.newestReport()
	if !ok {
		WriteFail(w, http.StatusNotFound, "Henüz rapor oluşturulmadı")
		return
	}
	h.serveReport(w, r, name)
}

// DownloadReport serves a report by file name. The name is reduced to its
// base so the path can't escape the reports directory.
func (h *ReportFilesHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	if name == "." || name == ".." || !strings.HasSuffix(name, ".html") {
		WriteFail(w, http.StatusBadRequest, "Geçersiz rapor adı")
		return
	}
	h.serveReport(w, r, name)
}

func (h *ReportFilesHandler) serveReport(w http.ResponseWriter, r *http.Request, name string) {
	path := filepath.Join(h.cfg.TempReportsDir(), name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			WriteFail(w, http.StatusNotFound, "Rapor bulunamadı")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("report", name).Msg("report read failed")
		WriteFail(w, http.StatusInternalServerError, "Rapor okunamadı")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
	w.Write(data)
}

// DownloadTranscript serves the accumulated transcript as plain text.
func (h *ReportFilesHandler) DownloadTranscript(w http.ResponseWriter, r *http.Request) {
	transcript := h.store.Transcript()
	if strings.TrimSpace(transcript) == "" {
		WriteFail(w, http.StatusNotFound, "Henüz transkript yok")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transkript.txt"`)
	w.Write([]byte(transcript))
}

// newestReport returns the most recently modified .html file name in the
// reports directory.
func (h *ReportFilesHandler) newestReport() (string, bool) {
	entries, err := os.ReadDir(h.cfg.TempReportsDir())
	if err != nil {
		return "", false
	}
	type candidate struct {
		name string
		mod  int64
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{e.Name(), info.ModTime().UnixNano()})
	}
	if len(files) == 0 {
		return "", false
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod > files[j].mod })
	return files[0].name, true
}
