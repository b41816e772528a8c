package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/ipc"
)

func TestBuildPrompt_TimelineMeet(t *testing.T) {
	p := BuildPrompt(PromptInput{
		Participants: []string{"Ali", "Ayşe"},
		TimelineHint: "- 00:05: Ali",
		Platform:     ipc.PlatformMeet,
	})

	if !strings.Contains(p, "**KATILIMCI LİSTESİ:** Ali, Ayşe") {
		t.Error("participant list line missing")
	}
	if !strings.Contains(p, "HİBRİT DİARİZATİON TALİMATI") {
		t.Error("hybrid block missing for meet")
	}
	if !strings.Contains(p, "- 00:05: Ali") {
		t.Error("timeline hint not embedded")
	}
	if strings.Contains(p, "KESİN BİLGİ") {
		t.Error("meet prompt must not mark the timeline authoritative")
	}
}

func TestBuildPrompt_TimelineZoom(t *testing.T) {
	p := BuildPrompt(PromptInput{
		TimelineHint: "- 00:10: Ahmet",
		Platform:     ipc.PlatformZoom,
	})

	if !strings.Contains(p, "**GÖRSEL ZAMAN ÇİZELGESİ (KESİN BİLGİ):**") {
		t.Error("authoritative block missing for zoom")
	}
	if !strings.Contains(p, "- 00:10: Ahmet") {
		t.Error("timeline hint not embedded")
	}
	if strings.Contains(p, "HİBRİT") {
		t.Error("zoom prompt must not use the hybrid block")
	}
}

func TestBuildPrompt_SpeakerHint(t *testing.T) {
	p := BuildPrompt(PromptInput{SpeakerHint: "Mehmet"})
	if !strings.Contains(p, "**BİLİNEN KONUŞMACI:** Bu segmentte konuşan kişi büyük ihtimalle: **Mehmet**") {
		t.Error("known-speaker block missing")
	}
}

func TestBuildPrompt_ParticipantsOnly(t *testing.T) {
	p := BuildPrompt(PromptInput{Participants: []string{"Ali", "Veli"}})
	if !strings.Contains(p, "Toplantıda şu kişiler var: Ali, Veli") {
		t.Error("participant block missing")
	}
}

func TestBuildPrompt_Blind(t *testing.T) {
	p := BuildPrompt(PromptInput{})
	if !strings.Contains(p, "Speaker Diarization") {
		t.Error("blind diarization block missing")
	}
	if !strings.Contains(p, "'Konuşmacı 1', 'Konuşmacı 2'") {
		t.Error("label fallback instruction missing")
	}
}

func TestBuildPrompt_TimelineBeatsSpeakerHint(t *testing.T) {
	p := BuildPrompt(PromptInput{
		TimelineHint: "- 00:00: Ali",
		SpeakerHint:  "Mehmet",
		Platform:     ipc.PlatformTeams,
	})
	if strings.Contains(p, "BİLİNEN KONUŞMACI") {
		t.Error("speaker hint must be ignored when a timeline exists")
	}
}

func TestBuildPrompt_AlwaysCarriesSilenceControl(t *testing.T) {
	for _, in := range []PromptInput{
		{},
		{SpeakerHint: "Ali"},
		{TimelineHint: "- 00:00: Ali", Platform: ipc.PlatformMeet},
	} {
		p := BuildPrompt(in)
		if !strings.Contains(p, "**KRİTİK - SESSİZLİK KONTROLÜ:**") {
			t.Errorf("silence control missing for %+v", in)
		}
		if !strings.Contains(p, `SADECE "[KONUŞMA YOK]" yaz`) {
			t.Errorf("silence marker instruction missing for %+v", in)
		}
	}
}

func writeTimeline(t *testing.T, dir string, entries []ipc.TimelineEntry) {
	t.Helper()
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, `{"ts":%f,"time":%q,"speakers":[`, e.Ts, e.Time)
		for i, sp := range e.Speakers {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%q", sp)
		}
		b.WriteString("]}\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "speaker_timeline.jsonl"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTimelineHint(t *testing.T) {
	dir := t.TempDir()
	store := ipc.NewStore(dir, zerolog.Nop())

	writeTimeline(t, dir, []ipc.TimelineEntry{
		{Ts: 1000.5, Speakers: []string{"Ali"}},
		{Ts: 1002.0, Speakers: []string{"Ali"}},          // same set, collapses
		{Ts: 1065.0, Speakers: []string{"Ayşe", "Ali"}},  // 70s in
		{Ts: 1100.0, Speakers: nil},                      // no speakers, skipped
		{Ts: 2000.0, Speakers: []string{"Mehmet"}},       // outside window
	})

	hint := TimelineHint(store, 995, 300)
	want := "- 00:05: Ali\n- 01:10: Ayşe, Ali"
	if hint != want {
		t.Errorf("hint = %q, want %q", hint, want)
	}
}

func TestTimelineHint_ActivityFallback(t *testing.T) {
	dir := t.TempDir()
	store := ipc.NewStore(dir, zerolog.Nop())

	activity := `[{"timestamp":500.0,"platform":"teams","speakers":["Burak"]},{"timestamp":520.0,"platform":"teams","speakers":["Cem"]}]`
	if err := os.WriteFile(filepath.Join(dir, "speaker_activity_log.json"), []byte(activity), 0o644); err != nil {
		t.Fatal(err)
	}

	hint := TimelineHint(store, 490, 300)
	want := "- 00:10: Burak\n- 00:30: Cem"
	if hint != want {
		t.Errorf("hint = %q, want %q", hint, want)
	}
}

func TestTimelineHint_Empty(t *testing.T) {
	store := ipc.NewStore(t.TempDir(), zerolog.Nop())
	if hint := TimelineHint(store, 0, 300); hint != "" {
		t.Errorf("hint = %q, want empty", hint)
	}
}

func TestTimelineHint_EntryAtWindowStart(t *testing.T) {
	dir := t.TempDir()
	store := ipc.NewStore(dir, zerolog.Nop())
	writeTimeline(t, dir, []ipc.TimelineEntry{{Ts: 100.0, Speakers: []string{"Ali"}}})

	hint := TimelineHint(store, 100.0, 300)
	if hint != "- 00:00: Ali" {
		t.Errorf("hint = %q, want %q", hint, "- 00:00: Ali")
	}
}

func TestSummaryPrompt_TruncatesTail(t *testing.T) {
	long := strings.Repeat("ş", 16000)
	p := SummaryPrompt(long)
	if strings.Count(p, "ş") != 15000 {
		t.Errorf("tail length = %d runes, want 15000", strings.Count(p, "ş"))
	}
	if !strings.Contains(p, "Ara Özet Raporu") {
		t.Error("summary header missing")
	}
}
