package transcribe

import (
	"strings"
	"testing"
)

func TestStripGhosts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"pure marker", "[KONUŞMA YOK]", ""},
		{"marker mix", " [MÜZİK] [SESSİZLİK]\n[silence] ", ""},
		{"marker inside speech", "Ali: Merhaba. [GÜRÜLTÜ] Devam edelim.", "Ali: Merhaba.  Devam edelim."},
		{"no markers", "Ali: Merhaba.", "Ali: Merhaba."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripGhosts(tt.in); got != tt.want {
				t.Errorf("stripGhosts(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeNames(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		names []string
		want  string
	}{
		{
			"case variant",
			"ahmet: Proje tamam. AHMET devam etsin.",
			[]string{"Ahmet"},
			"Ahmet: Proje tamam. Ahmet devam etsin.",
		},
		{
			"turkish characters",
			"özgür konuşuyor",
			[]string{"Özgür"},
			"Özgür konuşuyor",
		},
		{
			"no match inside a longer word",
			"Şahmet geldi",
			[]string{"ahmet"},
			"Şahmet geldi",
		},
		{
			"adjacent occurrences",
			"ali ali konuştu",
			[]string{"Ali"},
			"Ali Ali konuştu",
		},
		{
			"at string edges",
			"ayşe selam verdi ayşe",
			[]string{"Ayşe"},
			"Ayşe selam verdi Ayşe",
		},
		{
			"empty roster",
			"kimse yok",
			nil,
			"kimse yok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalizeNames(tt.text, tt.names); got != tt.want {
				t.Errorf("canonicalizeNames(%q, %v) = %q, want %q", tt.text, tt.names, got, tt.want)
			}
		})
	}
}

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"sentence per line",
			"Merhaba.   Nasılsınız? İyiyim!  Devam",
			"Merhaba.\nNasılsınız?\nİyiyim!\nDevam",
		},
		{
			"newlines collapse first",
			"Bir.\n\nİki.",
			"Bir.\nİki.",
		},
		{"empty", "", ""},
		{"no terminator", "tek satır", "tek satır"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanTranscript(tt.in); got != tt.want {
				t.Errorf("cleanTranscript(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTailAndTruncateRunes(t *testing.T) {
	s := "abcçdeğ"
	if got := tailRunes(s, 3); got != "değ" {
		t.Errorf("tailRunes = %q, want %q", got, "değ")
	}
	if got := tailRunes(s, 10); got != s {
		t.Errorf("tailRunes over-length = %q, want %q", got, s)
	}
	if got := truncateRunes(s, 4); got != "abcç" {
		t.Errorf("truncateRunes = %q, want %q", got, "abcç")
	}
}

func TestDedupCheck(t *testing.T) {
	long := "Bugün proje durumunu konuştuk ve yarın tekrar toplanacağız."

	t.Run("exact duplicate skipped", func(t *testing.T) {
		out, info := dedupCheck("Giriş.\n\n"+long, long)
		if out != "" || info != "Duplicate content skipped" {
			t.Errorf("out=%q info=%q", out, info)
		}
	})

	t.Run("short duplicates still append", func(t *testing.T) {
		short := "Kısa bir not." // under the 30-char guard
		out, info := dedupCheck(short, short)
		if out != short || info != "" {
			t.Errorf("out=%q info=%q, want text through", out, info)
		}
	})

	t.Run("partial duplicate skipped", func(t *testing.T) {
		existing := strings.Repeat("Proje planı üzerinde anlaştık. ", 5)
		candidate := strings.Repeat("Proje planı üzerinde anlaştık. ", 3) + "Yeni bir konu daha eklendi buraya."
		out, info := dedupCheck(existing, candidate)
		if out != "" || info != "Partial duplicate skipped" {
			t.Errorf("out=%q info=%q", out, info)
		}
	})

	t.Run("fresh content passes", func(t *testing.T) {
		out, info := dedupCheck(long, "Tamamen farklı bir gündem maddesi görüşüldü bu segmentte.")
		if out == "" || info != "" {
			t.Errorf("out=%q info=%q, want text through", out, info)
		}
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		base := "Bu segment metni birebir aynen tekrar edildi burada efendim."
		out, _ := dedupCheck(base, "  BU SEGMENT METNİ BİREBİR AYNEN TEKRAR EDİLDİ BURADA EFENDİM. ")
		if out != "" {
			t.Errorf("uppercase duplicate passed through: %q", out)
		}
	})
}
