package recorder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/ipc"
)

func newTestStore(t *testing.T) *ipc.Store {
	t.Helper()
	store := ipc.NewStore(t.TempDir(), zerolog.Nop())
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return store
}

func TestUploadPostsSegmentMetadata(t *testing.T) {
	store := newTestStore(t)
	if err := store.AppendActivity("zoom", []string{"Ayşe Yılmaz"}); err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	if err := store.WriteParticipants(ipc.ParticipantSnapshot{Platform: "zoom"}); err != nil {
		t.Fatalf("WriteParticipants: %v", err)
	}

	var (
		gotPath    string
		gotForm    map[string]string
		gotPayload []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotForm = map[string]string{
			"start_time":   r.FormValue("start_time"),
			"duration":     r.FormValue("duration"),
			"speaker_name": r.FormValue("speaker_name"),
			"platform":     r.FormValue("platform"),
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		gotPayload, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// The chunk was just written, so its mtime sits inside the activity
	// entry's matching window.
	path := writeChunk(t, t.TempDir(), "chunk_000.webm", 64)
	u := NewUploader(srv.URL, store, zerolog.Nop())

	if !u.Upload(context.Background(), path, 1700000000.5, 299.8) {
		t.Fatal("Upload returned false for an accepted segment")
	}
	if gotPath != "/transcribe-webm" {
		t.Errorf("posted to %q, want /transcribe-webm", gotPath)
	}
	want := map[string]string{
		"start_time":   "1700000000.5",
		"duration":     "299.8",
		"speaker_name": "Ayşe Yılmaz",
		"platform":     "zoom",
	}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, gotForm[k], v)
		}
	}
	if len(gotPayload) != 64 {
		t.Errorf("payload = %d bytes, want 64", len(gotPayload))
	}
}

func TestUploadOmitsHintsWhenAbsent(t *testing.T) {
	store := newTestStore(t)

	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(32 << 20)
		gotForm = r.MultipartForm.Value
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeChunk(t, t.TempDir(), "chunk_000.webm", 64)
	u := NewUploader(srv.URL, store, zerolog.Nop())

	if !u.Upload(context.Background(), path, 0, 10) {
		t.Fatal("Upload returned false")
	}
	if _, ok := gotForm["speaker_name"]; ok {
		t.Error("speaker_name sent without activity data")
	}
	if _, ok := gotForm["platform"]; ok {
		t.Error("platform sent without a participant snapshot")
	}
}

func TestUploadReturnsFalseOnRejection(t *testing.T) {
	store := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"WebM dosyası çok küçük"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	path := writeChunk(t, t.TempDir(), "chunk_000.webm", 64)
	u := NewUploader(srv.URL, store, zerolog.Nop())

	if u.Upload(context.Background(), path, 0, 10) {
		t.Error("Upload returned true for a rejected segment")
	}
}

func TestUploadReturnsFalseWhenServerUnreachable(t *testing.T) {
	store := newTestStore(t)
	path := writeChunk(t, t.TempDir(), "chunk_000.webm", 64)
	u := NewUploader("http://127.0.0.1:1", store, zerolog.Nop())

	if u.Upload(context.Background(), path, 0, 10) {
		t.Error("Upload returned true with no server listening")
	}
}

func TestSpeakerNear(t *testing.T) {
	entries := []ipc.ActivityEntry{
		{Timestamp: 100, Speakers: []string{"Ahmet"}},
		{Timestamp: 200, Speakers: []string{"Ayşe", "Mehmet"}},
		{Timestamp: 300, Speakers: nil},
	}

	tests := []struct {
		name string
		ts   float64
		want string
	}{
		{name: "inside first window", ts: 105, want: "Ahmet"},
		{name: "first speaker of a crowded entry", ts: 199, want: "Ayşe"},
		{name: "silent entry ends the search", ts: 301, want: ""},
		{name: "outside every window", ts: 500, want: ""},
		{name: "window edge is exclusive", ts: 110, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := speakerNear(entries, tt.ts); got != tt.want {
				t.Errorf("speakerNear(%v) = %q, want %q", tt.ts, got, tt.want)
			}
		})
	}
}

func TestSpeakerNearScansOnlyRecentEntries(t *testing.T) {
	entries := make([]ipc.ActivityEntry, 0, 60)
	for i := 0; i < 60; i++ {
		entries = append(entries, ipc.ActivityEntry{Timestamp: float64(i * 1000), Speakers: []string{"Eski"}})
	}
	// Entry 5 (ts 5000) falls outside the 50-entry tail and must be invisible.
	if got := speakerNear(entries, 5000); got != "" {
		t.Errorf("speakerNear matched a trimmed entry: %q", got)
	}
	if got := speakerNear(entries, 59000); got != "Eski" {
		t.Errorf("speakerNear = %q, want Eski", got)
	}
}
