package report

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sesly/sesly-engine/internal/ipc"
)

// Labels that show up in participant panels but are not people: the bot
// itself, platform UI words, icon glyph names.
var excludedLabels = []string{
	"frame", "pen_spark", "pen_spark_io", "spark_io",
	"sesly bot", "sesly", "toplantı botu", "meeting bot",
	"localhost", "panel", "bot panel", "sesly asistan",
	"google meet", "zoom", "meet", "katılım isteği", "join request",
}

// filterParticipants drops non-human labels from the snapshot list.
func filterParticipants(names []string) []string {
	var out []string
	for _, name := range names {
		if name == "" {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(name))
		excluded := false
		for _, ex := range excludedLabels {
			if strings.Contains(lower, ex) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, name)
		}
	}
	return out
}

// speakerLine matches the "Name: speech" transcript line form.
var speakerLine = regexp.MustCompile(`^([^:]+):\s*(.+)$`)

// TranscriptStats summarizes who spoke according to the transcript text.
type TranscriptStats struct {
	TotalSpeakers int
	Turns         map[string]int
	Words         map[string]int
	Identified    []string // speakers matching the participant list
	Unknown       []string // named speakers absent from the list
}

// analyzeTranscript counts turns and words per speaker from "Name: speech"
// lines and cross-checks the names against the participant list. Lines
// shorter than 5 characters are noise and skipped; generic "Konuşmacı N"
// labels never count as unknown names.
func analyzeTranscript(transcript string, participants []string) TranscriptStats {
	stats := TranscriptStats{
		Turns: map[string]int{},
		Words: map[string]int{},
	}
	if utf8.RuneCountInString(transcript) < 10 {
		return stats
	}

	known := make(map[string]bool, len(participants))
	for _, p := range participants {
		known[p] = true
	}
	inIdentified := map[string]bool{}
	inUnknown := map[string]bool{}

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < 5 {
			continue
		}
		m := speakerLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		speaker := strings.TrimSpace(m[1])
		speech := strings.TrimSpace(m[2])

		stats.Turns[speaker]++
		stats.Words[speaker] += len(strings.Fields(speech))

		if len(participants) == 0 {
			continue
		}
		switch {
		case known[speaker]:
			if !inIdentified[speaker] {
				inIdentified[speaker] = true
				stats.Identified = append(stats.Identified, speaker)
			}
		case !strings.Contains(speaker, "Konuşmacı") && !strings.Contains(speaker, "Speaker"):
			if !inUnknown[speaker] {
				inUnknown[speaker] = true
				stats.Unknown = append(stats.Unknown, speaker)
			}
		}
	}

	stats.TotalSpeakers = len(stats.Turns)
	return stats
}

// SpeakerActivity is one speaker's measured share of the meeting.
type SpeakerActivity struct {
	Seconds           float64 `json:"total_seconds"`
	Duration          string  `json:"duration,omitempty"`
	DurationFormatted string  `json:"duration_formatted,omitempty"`
	Turns             int     `json:"turn_count"`
	Percentage        int     `json:"percentage"`
}

func (a SpeakerActivity) durationLabel() string {
	if a.DurationFormatted != "" {
		return a.DurationFormatted
	}
	if a.Duration != "" {
		return a.Duration
	}
	return "0m 0s"
}

// ActivityStats aggregates the visual activity log into per-speaker
// speaking durations.
type ActivityStats struct {
	Speakers        map[string]SpeakerActivity `json:"statistics"`
	TotalSpeakers   int                        `json:"total_speakers"`
	MeetingDuration string                     `json:"meeting_duration"`
}

// loadActivityStats reads the activity log in either of its shapes: a
// document carrying precomputed statistics, or the raw entry list the worker
// writes (aggregated here). ok is false when the file is absent or holds no
// usable data.
func loadActivityStats(path string) (ActivityStats, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ActivityStats{}, false
	}

	var pre ActivityStats
	if err := json.Unmarshal(data, &pre); err == nil && len(pre.Speakers) > 0 {
		return pre, true
	}

	var entries []ipc.ActivityEntry
	if err := json.Unmarshal(data, &entries); err != nil || len(entries) == 0 {
		return ActivityStats{}, false
	}
	return computeActivityStats(entries), true
}

// computeActivityStats walks the raw log in timestamp order. The gap to the
// next entry, clamped to [0, 10] seconds, is credited to every speaker of the
// current entry; longer gaps mean detection stopped, not a long turn. A turn
// starts when a speaker appears without having been in the previous entry.
func computeActivityStats(entries []ipc.ActivityEntry) ActivityStats {
	stats := ActivityStats{
		Speakers:        map[string]SpeakerActivity{},
		MeetingDuration: "0m 0s",
	}
	if len(entries) == 0 {
		return stats
	}

	sorted := make([]ipc.ActivityEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	total := sorted[len(sorted)-1].Timestamp - sorted[0].Timestamp
	if total > 0 {
		stats.MeetingDuration = formatDuration(total)
	}

	type acc struct {
		seconds float64
		turns   int
	}
	byName := map[string]*acc{}
	for i := 0; i < len(sorted)-1; i++ {
		delta := sorted[i+1].Timestamp - sorted[i].Timestamp
		if delta > 10 {
			delta = 10
		}
		if delta < 0 {
			delta = 0
		}
		var prev []string
		if i > 0 {
			prev = sorted[i-1].Speakers
		}
		for _, speaker := range sorted[i].Speakers {
			a := byName[speaker]
			if a == nil {
				a = &acc{}
				byName[speaker] = a
			}
			a.seconds += delta
			if !containsName(prev, speaker) {
				a.turns++
			}
		}
	}

	for name, a := range byName {
		pct := 0
		if total > 0 {
			pct = int(a.seconds / total * 100)
		}
		stats.Speakers[name] = SpeakerActivity{
			Seconds:    a.seconds,
			Duration:   formatDuration(a.seconds),
			Turns:      a.turns,
			Percentage: pct,
		}
	}
	stats.TotalSpeakers = len(byName)
	return stats
}

func containsName(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// formatDuration renders seconds in the "3m 42s" form used in reports.
func formatDuration(seconds float64) string {
	whole := int(seconds)
	return fmt.Sprintf("%dm %ds", whole/60, whole%60)
}

// nameLine matches a capitalized (Turkish alphabet) name before a colon.
var nameLine = regexp.MustCompile(`^([A-ZÇĞİÖŞÜ][a-zçğıöşü]+(?:\s+[A-ZÇĞİÖŞÜ][a-zçğıöşü]+)*?):`)

// extractNames pulls speaker names out of transcript lines, for meetings
// where no participant snapshot survived.
func extractNames(transcript string) []string {
	seen := map[string]bool{}
	for _, line := range strings.Split(transcript, "\n") {
		m := nameLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if utf8.RuneCountInString(name) < 3 || name == "Konuşmacı" || name == "Speaker" {
			continue
		}
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
