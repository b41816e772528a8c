package meeting

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSanitizeChatMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "Hello there", "Hello there"},
		{"turkish preserved", "Merhaba! Görüşme kaydı başladı: ğüşiöçİŞĞ", "Merhaba! Görüşme kaydı başladı: ğüşiöçİŞĞ"},
		{"emoji stripped", "Kayıt başladı 🎙️", "Kayıt başladı"},
		{"only emoji falls back", "🎙️🔴", chatFallbackMessage},
		{"empty falls back", "", chatFallbackMessage},
		{"whitespace trimmed", "  selam  ", "selam"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeChatMessage(tc.in); got != tc.want {
				t.Errorf("sanitizeChatMessage(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFindPhrase(t *testing.T) {
	phrases := []string{"meeting has ended", "you have been removed"}

	got, ok := findPhrase("sorry, this meeting has ended for everyone", phrases)
	if !ok || got != "meeting has ended" {
		t.Errorf("findPhrase = %q, %v, want %q, true", got, ok, "meeting has ended")
	}
	if _, ok := findPhrase("all good here", phrases); ok {
		t.Error("findPhrase matched text without any phrase")
	}
}

func TestExcludedName(t *testing.T) {
	excluded := []string{"sesly bot", "localhost", "katılımcı"}

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"exact", "Sesly Bot", true},
		{"uppercase", "SESLY BOT", true},
		{"substring", "Katılımcılar (3)", true},
		{"real person", "Ahmet Yılmaz", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := excludedName(tc.in, excluded); got != tc.want {
				t.Errorf("excludedName(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestOriginOf(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"zoom join url", "https://us05web.zoom.us/wc/81762121012/join?pwd=x", "https://us05web.zoom.us"},
		{"teams live url", "https://teams.live.com/meet/9812734?p=abc", "https://teams.live.com"},
		{"schemeless passthrough", "meet.google.com/abc-defg-hij", "meet.google.com/abc-defg-hij"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := originOf(tc.in); got != tc.want {
				t.Errorf("originOf(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestAloneTracker(t *testing.T) {
	log := zerolog.Nop()

	tr := aloneTracker{timeout: 30 * time.Millisecond}
	if tr.observe(true, log) {
		t.Fatal("first alone observation should only start the timer")
	}
	time.Sleep(40 * time.Millisecond)
	if !tr.observe(true, log) {
		t.Fatal("alone past the timeout should report ended")
	}

	tr = aloneTracker{timeout: 30 * time.Millisecond}
	tr.observe(true, log)
	tr.observe(false, log)
	time.Sleep(40 * time.Millisecond)
	if tr.observe(true, log) {
		t.Fatal("a company observation should have reset the timer")
	}
}

func TestControlTracker(t *testing.T) {
	var tr controlTracker
	if tr.observe(false) || tr.observe(false) {
		t.Fatal("two misses should not report lost controls")
	}
	if !tr.observe(false) {
		t.Fatal("third consecutive miss should report lost controls")
	}

	tr = controlTracker{}
	tr.observe(false)
	tr.observe(false)
	tr.observe(true)
	if tr.observe(false) || tr.observe(false) {
		t.Fatal("a present observation should reset the miss count")
	}
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	if _, err := New("webex", Options{URL: "https://example.com"}); err == nil {
		t.Fatal("New accepted an unsupported platform")
	}
	for _, p := range []string{"zoom", "teams", "meet"} {
		c, err := New(p, Options{URL: "https://example.com", Log: zerolog.Nop()})
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", p, err)
		}
		if c == nil {
			t.Fatalf("New(%q) returned nil client", p)
		}
	}
}
