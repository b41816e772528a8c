package ipc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), zerolog.Nop())
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return s
}

func TestJobRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.Job(); ok {
		t.Fatal("Job() ok on empty store")
	}

	in := Job{
		Active:         true,
		Platform:       PlatformZoom,
		MeetingURL:     "https://zoom.us/j/12345678901",
		MeetingID:      "12345678901",
		BotDisplayName: "Sesly Bot",
		Title:          "Zoom Toplantısı",
	}
	if err := s.WriteJob(in); err != nil {
		t.Fatalf("WriteJob: %v", err)
	}

	out, ok := s.Job()
	if !ok {
		t.Fatal("Job() not ok after write")
	}
	if out.MeetingURL != in.MeetingURL || out.Platform != in.Platform || !out.Active {
		t.Errorf("Job() = %+v, want %+v", out, in)
	}

	s.DeleteJob()
	if _, ok := s.Job(); ok {
		t.Error("Job() ok after delete")
	}
}

func TestMalformedJobTolerated(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.JobPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Job(); ok {
		t.Error("Job() ok on malformed file")
	}
}

func TestConsumeCommandFiresOnce(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.ConsumeCommand(); ok {
		t.Fatal("ConsumeCommand ok on empty store")
	}

	if err := s.WriteCommand(CommandStop); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	// Peek must not consume.
	if c, ok := s.PeekCommand(); !ok || c.Command != CommandStop || c.Processed {
		t.Errorf("PeekCommand = %+v ok=%v", c, ok)
	}

	cmd, ok := s.ConsumeCommand()
	if !ok || cmd != CommandStop {
		t.Fatalf("ConsumeCommand = %q ok=%v, want stop", cmd, ok)
	}

	if _, ok := s.ConsumeCommand(); ok {
		t.Error("ConsumeCommand ok twice for one command")
	}

	// The file stays on disk, marked processed.
	if c, ok := s.PeekCommand(); !ok || !c.Processed {
		t.Errorf("after consume: PeekCommand = %+v ok=%v, want processed", c, ok)
	}
}

func TestWorkerStatusMergeUpdate(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateWorkerStatus(func(ws *WorkerStatus) {
		ws.Platform = PlatformMeet
		ws.Running = true
		ws.StatusMessage = "Toplantıya katılıyor..."
	})
	if err != nil {
		t.Fatalf("UpdateWorkerStatus: %v", err)
	}

	err = s.UpdateWorkerStatus(func(ws *WorkerStatus) {
		ws.Recording = true
	})
	if err != nil {
		t.Fatalf("UpdateWorkerStatus: %v", err)
	}

	ws := s.WorkerStatus()
	if !ws.Running || !ws.Recording {
		t.Errorf("status = %+v, want running and recording", ws)
	}
	if ws.Platform != PlatformMeet {
		t.Errorf("Platform = %q, want meet (merge lost it)", ws.Platform)
	}
	if ws.StatusMessage != "Toplantıya katılıyor..." {
		t.Errorf("StatusMessage = %q (merge lost it)", ws.StatusMessage)
	}
	if ws.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}

	// Clearing the error field persists.
	s.UpdateWorkerStatus(func(ws *WorkerStatus) { ws.Error = "boom" })
	s.UpdateWorkerStatus(func(ws *WorkerStatus) { ws.Error = "" })
	if got := s.WorkerStatus().Error; got != "" {
		t.Errorf("Error = %q, want cleared", got)
	}
}

func TestTimelineAppendAndRange(t *testing.T) {
	s := newTestStore(t)

	if err := s.AppendTimeline([]string{"Ahmet Yılmaz"}); err != nil {
		t.Fatalf("AppendTimeline: %v", err)
	}
	if err := s.AppendTimeline([]string{"Ayşe Demir", "Ahmet Yılmaz"}); err != nil {
		t.Fatalf("AppendTimeline: %v", err)
	}

	all := s.TimelineRange(0, 1e12)
	if len(all) != 2 {
		t.Fatalf("TimelineRange = %d entries, want 2", len(all))
	}
	if all[0].Ts > all[1].Ts {
		t.Error("entries out of order")
	}
	if all[0].Time == "" || len(all[0].Time) != 8 {
		t.Errorf("Time = %q, want HH:MM:SS", all[0].Time)
	}
	if got := s.TimelineRange(all[1].Ts, all[1].Ts); len(got) != 1 {
		t.Errorf("narrow range = %d entries, want 1", len(got))
	}
	if got := s.TimelineRange(1e12, 2e12); len(got) != 0 {
		t.Errorf("future range = %d entries, want 0", len(got))
	}
}

func TestTimelineSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Root(), "speaker_timeline.jsonl")
	content := `{"ts": 100, "time": "10:00:00", "speakers": ["A"]}
garbage line
{"ts": 200, "time": "10:00:05", "speakers": ["B"]}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got := s.TimelineRange(0, 300)
	if len(got) != 2 {
		t.Errorf("TimelineRange = %d entries, want 2 (garbage skipped)", len(got))
	}
}

func TestActivityAppend(t *testing.T) {
	s := newTestStore(t)

	s.AppendActivity(PlatformZoom, []string{"Ahmet Yılmaz"})
	s.AppendActivity(PlatformZoom, []string{"Ayşe Demir"})

	entries := s.Activity()
	if len(entries) != 2 {
		t.Fatalf("Activity = %d entries, want 2", len(entries))
	}
	if entries[0].Speakers[0] != "Ahmet Yılmaz" || entries[1].Speakers[0] != "Ayşe Demir" {
		t.Errorf("entries = %+v", entries)
	}
	if entries[0].Timestamp <= 0 {
		t.Error("Timestamp not stamped")
	}
}

func TestParticipantsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if snap := s.Participants(); len(snap.Participants) != 0 {
		t.Errorf("Participants on empty store = %+v", snap)
	}

	s.WriteParticipants(ParticipantSnapshot{
		Platform:     PlatformTeams,
		Participants: []string{"Ahmet Yılmaz", "Ayşe Demir"},
	})

	snap := s.Participants()
	if snap.Platform != PlatformTeams || len(snap.Participants) != 2 {
		t.Errorf("Participants = %+v", snap)
	}
	if snap.Timestamp == 0 {
		t.Error("Timestamp not stamped")
	}
}

func TestTranscriptAppend(t *testing.T) {
	s := newTestStore(t)

	if got := s.Transcript(); got != "" {
		t.Errorf("Transcript on empty store = %q", got)
	}

	appended, err := s.AppendTranscript("Ahmet: Merhaba.", nil)
	if err != nil || !appended {
		t.Fatalf("AppendTranscript = %v, %v", appended, err)
	}
	appended, err = s.AppendTranscript("Ayşe: Günaydın.", nil)
	if err != nil || !appended {
		t.Fatalf("AppendTranscript = %v, %v", appended, err)
	}

	got := s.Transcript()
	want := "Ahmet: Merhaba.\n\nAyşe: Günaydın."
	if got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}

func TestTranscriptAppendFilterSkips(t *testing.T) {
	s := newTestStore(t)
	s.AppendTranscript("ilk blok", nil)

	appended, err := s.AppendTranscript("ikinci", func(existing, text string) string {
		if !strings.Contains(existing, "ilk blok") {
			t.Errorf("filter existing = %q, want prior content", existing)
		}
		return "" // skip
	})
	if err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}
	if appended {
		t.Error("appended = true, want skip")
	}
	if got := s.Transcript(); got != "ilk blok" {
		t.Errorf("Transcript = %q, want unchanged", got)
	}
}

func TestStopSignal(t *testing.T) {
	s := newTestStore(t)

	if s.StopSignalExists() {
		t.Fatal("signal exists on empty store")
	}
	if err := s.TouchStopSignal(); err != nil {
		t.Fatalf("TouchStopSignal: %v", err)
	}
	if !s.StopSignalExists() {
		t.Error("signal missing after touch")
	}
	s.ClearStopSignal()
	if s.StopSignalExists() {
		t.Error("signal exists after clear")
	}
}

func TestForceResetFiles(t *testing.T) {
	s := newTestStore(t)

	s.WriteJob(Job{Active: true, Platform: PlatformZoom})
	s.WriteCommand(CommandStop)
	s.UpdateWorkerStatus(func(ws *WorkerStatus) { ws.Running = true })
	s.WriteParticipants(ParticipantSnapshot{Platform: PlatformZoom})
	s.AppendActivity(PlatformZoom, []string{"A"})
	s.AppendTranscript("metin", nil)

	removed := s.ForceResetFiles()
	if len(removed) != 5 {
		t.Errorf("removed %d files (%v), want 5", len(removed), removed)
	}

	if _, ok := s.Job(); ok {
		t.Error("job survived force reset")
	}
	if s.Transcript() != "" {
		t.Error("transcript survived force reset")
	}
	if len(s.Activity()) != 0 {
		t.Error("activity log survived force reset")
	}
}

func TestResetMeetingFiles(t *testing.T) {
	s := newTestStore(t)

	s.WriteCommand(CommandPause)
	s.TouchStopSignal()
	s.AppendTimeline([]string{"A"})
	s.AppendActivity(PlatformMeet, []string{"A"})
	s.WriteParticipants(ParticipantSnapshot{Platform: PlatformMeet})
	s.AppendTranscript("eski metin", nil)
	s.WriteRecorderStatus(RecorderStatus{Success: true})

	s.ResetMeetingFiles()

	if _, ok := s.PeekCommand(); ok {
		t.Error("command survived reset")
	}
	if s.StopSignalExists() {
		t.Error("stop signal survived reset")
	}
	if len(s.TimelineRange(0, 1e12)) != 0 {
		t.Error("timeline survived reset")
	}
	if s.Transcript() != "" {
		t.Error("transcript survived reset")
	}
	if _, ok := s.RecorderStatus(); ok {
		t.Error("recorder status survived reset")
	}
}

func TestCleanEphemeralKeepsTranscript(t *testing.T) {
	s := newTestStore(t)

	s.AppendTranscript("kalıcı metin", nil)
	s.AppendTimeline([]string{"A"})
	s.WriteParticipants(ParticipantSnapshot{Platform: PlatformZoom})
	s.TouchStopSignal()

	s.CleanEphemeral()

	if got := s.Transcript(); got != "kalıcı metin" {
		t.Errorf("Transcript = %q, want preserved", got)
	}
	if len(s.TimelineRange(0, 1e12)) != 0 {
		t.Error("timeline survived ephemeral clean")
	}
	if s.StopSignalExists() {
		t.Error("stop signal survived ephemeral clean")
	}
}
