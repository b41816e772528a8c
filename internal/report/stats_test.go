package report

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sesly/sesly-engine/internal/ipc"
)

func TestFilterParticipants(t *testing.T) {
	in := []string{
		"Ahmet Yılmaz",
		"Sesly Bot",
		"frame",
		"Zeynep Kaya",
		"Katılım isteği",
		"",
		"  Google Meet  ",
		"Merve Demir",
	}
	want := []string{"Ahmet Yılmaz", "Zeynep Kaya", "Merve Demir"}

	got := filterParticipants(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("filterParticipants() = %v, want %v", got, want)
	}
}

func TestAnalyzeTranscript(t *testing.T) {
	transcript := "Ahmet Yılmaz: Merhaba arkadaşlar, bugün sprint planlaması yapacağız.\n" +
		"Zeynep Kaya: Tamam, ben hazırım.\n" +
		"a: b\n" +
		"Ahmet Yılmaz: İlk madde ile başlayalım.\n" +
		"Konuşmacı 1: Ben de katılıyorum.\n" +
		"Murat Can: Kısa bir sorum olacak.\n"
	participants := []string{"Ahmet Yılmaz", "Zeynep Kaya"}

	stats := analyzeTranscript(transcript, participants)

	if stats.TotalSpeakers != 4 {
		t.Errorf("TotalSpeakers = %d, want 4", stats.TotalSpeakers)
	}
	if got := stats.Turns["Ahmet Yılmaz"]; got != 2 {
		t.Errorf("Turns[Ahmet Yılmaz] = %d, want 2", got)
	}
	if got := stats.Words["Ahmet Yılmaz"]; got != 10 {
		t.Errorf("Words[Ahmet Yılmaz] = %d, want 10", got)
	}
	if want := []string{"Ahmet Yılmaz", "Zeynep Kaya"}; !reflect.DeepEqual(stats.Identified, want) {
		t.Errorf("Identified = %v, want %v", stats.Identified, want)
	}
	// Generic speaker labels are not unknown names.
	if want := []string{"Murat Can"}; !reflect.DeepEqual(stats.Unknown, want) {
		t.Errorf("Unknown = %v, want %v", stats.Unknown, want)
	}
}

func TestAnalyzeTranscriptEdges(t *testing.T) {
	t.Run("short transcript", func(t *testing.T) {
		stats := analyzeTranscript("kısa", []string{"Ahmet"})
		if stats.TotalSpeakers != 0 {
			t.Errorf("TotalSpeakers = %d, want 0", stats.TotalSpeakers)
		}
	})

	t.Run("no participant list", func(t *testing.T) {
		stats := analyzeTranscript("Ahmet Yılmaz: Uzun bir açılış konuşması yaptı.\n", nil)
		if stats.TotalSpeakers != 1 {
			t.Errorf("TotalSpeakers = %d, want 1", stats.TotalSpeakers)
		}
		if stats.Identified != nil || stats.Unknown != nil {
			t.Errorf("Identified/Unknown = %v/%v, want nil/nil", stats.Identified, stats.Unknown)
		}
	})
}

func TestComputeActivityStats(t *testing.T) {
	base := 1700000000.0
	entries := []ipc.ActivityEntry{
		{Timestamp: base, Speakers: []string{"Ahmet Yılmaz"}},
		{Timestamp: base + 4, Speakers: []string{"Ahmet Yılmaz"}},
		// 25 s gap: only 10 s credited.
		{Timestamp: base + 29, Speakers: []string{"Zeynep Kaya"}},
		{Timestamp: base + 33, Speakers: []string{"Zeynep Kaya", "Ahmet Yılmaz"}},
		{Timestamp: base + 37, Speakers: nil},
	}

	stats := computeActivityStats(entries)

	if stats.MeetingDuration != "0m 37s" {
		t.Errorf("MeetingDuration = %q, want %q", stats.MeetingDuration, "0m 37s")
	}
	if stats.TotalSpeakers != 2 {
		t.Errorf("TotalSpeakers = %d, want 2", stats.TotalSpeakers)
	}

	ahmet := stats.Speakers["Ahmet Yılmaz"]
	if ahmet.Seconds != 18 { // 4 + 10 (clamped) + 4
		t.Errorf("Ahmet seconds = %v, want 18", ahmet.Seconds)
	}
	if ahmet.Turns != 2 { // start, then reappearance at base+33
		t.Errorf("Ahmet turns = %d, want 2", ahmet.Turns)
	}
	if ahmet.Duration != "0m 18s" {
		t.Errorf("Ahmet duration = %q, want %q", ahmet.Duration, "0m 18s")
	}

	zeynep := stats.Speakers["Zeynep Kaya"]
	if zeynep.Seconds != 8 {
		t.Errorf("Zeynep seconds = %v, want 8", zeynep.Seconds)
	}
	if zeynep.Turns != 1 {
		t.Errorf("Zeynep turns = %d, want 1", zeynep.Turns)
	}
	if zeynep.Percentage != 21 { // 8/37
		t.Errorf("Zeynep percentage = %d, want 21", zeynep.Percentage)
	}
}

func TestLoadActivityStats(t *testing.T) {
	dir := t.TempDir()

	write := func(t *testing.T, name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	t.Run("precomputed document", func(t *testing.T) {
		path := write(t, "pre.json", `{
			"statistics": {"Ahmet Yılmaz": {"total_seconds": 42, "duration_formatted": "0m 42s", "turn_count": 3, "percentage": 70}},
			"total_speakers": 1,
			"meeting_duration": "1m 0s"
		}`)
		stats, ok := loadActivityStats(path)
		if !ok {
			t.Fatal("ok = false, want true")
		}
		if stats.MeetingDuration != "1m 0s" {
			t.Errorf("MeetingDuration = %q, want %q", stats.MeetingDuration, "1m 0s")
		}
		if got := stats.Speakers["Ahmet Yılmaz"].durationLabel(); got != "0m 42s" {
			t.Errorf("durationLabel() = %q, want %q", got, "0m 42s")
		}
	})

	t.Run("raw entry list", func(t *testing.T) {
		path := write(t, "raw.json", `[
			{"timestamp": 100, "speakers": ["Zeynep Kaya"]},
			{"timestamp": 105, "speakers": ["Zeynep Kaya"]},
			{"timestamp": 110, "speakers": []}
		]`)
		stats, ok := loadActivityStats(path)
		if !ok {
			t.Fatal("ok = false, want true")
		}
		if got := stats.Speakers["Zeynep Kaya"].Seconds; got != 10 {
			t.Errorf("seconds = %v, want 10", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, ok := loadActivityStats(filepath.Join(dir, "absent.json")); ok {
			t.Error("ok = true for missing file")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		path := write(t, "garbage.json", "not json at all")
		if _, ok := loadActivityStats(path); ok {
			t.Error("ok = true for garbage file")
		}
	})
}

func TestExtractNames(t *testing.T) {
	transcript := "Zeynep Kaya: günaydın herkese.\n" +
		"Ahmet Yılmaz: başlayalım.\n" +
		"Konuşmacı: bilinmeyen biri.\n" +
		"ALI: büyük harfli satır eşleşmez.\n" +
		"Og: çok kısa.\n" +
		"Zeynep Kaya: tekrar ben.\n"

	got := extractNames(transcript)
	want := []string{"Ahmet Yılmaz", "Zeynep Kaya"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extractNames() = %v, want %v", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0m 0s"},
		{59.9, "0m 59s"},
		{125.7, "2m 5s"},
		{3600, "60m 0s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
