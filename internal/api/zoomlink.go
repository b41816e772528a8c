package api

import (
	"net/url"
	"regexp"
	"strings"
)

// Zoom meeting IDs are 9 to 11 digits. Invite text commonly spells the ID
// and passcode in Turkish or English.
const (
	zoomIDMinDigits = 9
	zoomIDMaxDigits = 11
)

var (
	zoomIDLabelRe   = regexp.MustCompile(`(?i)Toplantı Kimliği:|Meeting ID:`)
	zoomPassLabelRe = regexp.MustCompile(`(?i)Parola:|Password:`)
	zoomPassEndRe   = regexp.MustCompile(`\s+|---`)
)

// ParseZoomLink extracts the numeric meeting ID and passcode from a Zoom
// URL, a bare meeting ID, or pasted invite text ("Toplantı Kimliği: ...
// Parola: ..."). Returns ok=false when no plausible meeting ID is found.
func ParseZoomLink(input string) (meetingID, passcode string, ok bool) {
	input = strings.TrimSpace(input)

	if strings.Contains(input, "zoom.us") || strings.Contains(input, "zoommtg://") {
		if u, err := url.Parse(input); err == nil {
			passcode = u.Query().Get("pwd")
			parts := strings.Split(u.Path, "/")
			for i, p := range parts {
				if (p == "j" || p == "join" || p == "wc") && i+1 < len(parts) {
					meetingID = digitsOf(parts[i+1])
					break
				}
			}
		}
	}

	if meetingID == "" {
		if loc := zoomIDLabelRe.FindStringIndex(input); loc != nil {
			idSection := input[loc[1]:]
			if end := zoomPassLabelRe.FindStringIndex(idSection); end != nil {
				idSection = idSection[:end[0]]
			}
			meetingID = digitsOf(idSection)
		}
		if meetingID == "" {
			meetingID = digitsOf(input)
		}
		if passcode == "" {
			if loc := zoomPassLabelRe.FindStringIndex(input); loc != nil {
				rest := strings.TrimSpace(input[loc[1]:])
				passcode = zoomPassEndRe.Split(rest, 2)[0]
			}
		}
	}

	if len(meetingID) < zoomIDMinDigits {
		return "", "", false
	}
	if len(meetingID) > zoomIDMaxDigits {
		meetingID = meetingID[:zoomIDMaxDigits]
	}
	return meetingID, passcode, true
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
