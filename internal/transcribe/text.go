package transcribe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ghostPatterns are the bracket markers the model emits for non-speech
// audio. They are stripped before the minimum-length check so a segment of
// pure markers counts as silence.
var ghostPatterns = []string{
	"[SESSİZLİK]", "[sessizlik]", "[SILENCE]", "[silence]",
	"[MÜZİK]", "[müzik]", "[MUSIC]", "[music]",
	"[GÜRÜLTÜ]", "[gürültü]", "[NOISE]", "[noise]",
	"[KONUŞMA YOK]", "[konuşma yok]",
	"[BOŞ]", "[boş]", "[EMPTY]",
}

func stripGhosts(text string) string {
	for _, p := range ghostPatterns {
		text = strings.ReplaceAll(text, p, "")
	}
	return strings.TrimSpace(text)
}

// canonicalizeNames rewrites case variants of each roster name back to the
// roster spelling so one speaker does not split into "ahmet" and "Ahmet"
// lines. Matches are whole words only; boundaries are checked against
// letters and digits rather than regexp \b, which is ASCII-only and fails
// on Turkish characters.
func canonicalizeNames(text string, names []string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name))
		text = replaceWholeWords(re, text, name)
	}
	return text
}

func replaceWholeWords(re *regexp.Regexp, text, repl string) string {
	locs := re.FindAllStringIndex(text, -1)
	if locs == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if !wholeWord(text, loc[0], loc[1]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func wholeWord(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// cleanTranscript collapses all whitespace runs to single spaces and puts
// each sentence on its own line.
func cleanTranscript(text string) string {
	if text == "" {
		return ""
	}
	t := strings.Join(strings.Fields(text), " ")
	t = sentenceEnd.ReplaceAllString(t, "$1\n")
	return strings.TrimSpace(t)
}

// tailRunes returns the last n characters of s.
func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// truncateRunes returns the first n characters of s.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func normalizeForDedup(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// dedupCheck decides whether a new segment may be appended to the existing
// transcript. Overlapping recordings make the model re-emit previous
// content; a segment fully contained in the recent tail, or whose first
// half is, is dropped. Returns the text to append ("" to skip) and an info
// string naming the reason for a skip.
func dedupCheck(existing, text string) (string, string) {
	tail := tailRunes(existing, dedupWindow)
	normText := normalizeForDedup(text)
	normTail := normalizeForDedup(tail)

	r := []rune(normText)
	if len(r) > 30 && strings.Contains(normTail, normText) {
		return "", "Duplicate content skipped"
	}
	if len(r) > 100 && strings.Contains(normTail, string(r[:len(r)/2])) {
		return "", "Partial duplicate skipped"
	}
	return text, ""
}
