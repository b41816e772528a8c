// Package meeting drives real browser sessions that join Zoom, Microsoft
// Teams and Google Meet calls, keep the camera and microphone off, watch
// who is speaking and notice when the call is over.
//
// Each platform client automates the web UI over the DevTools protocol.
// Meeting UIs change often, so element lookups run through tiered selector
// lists and a miss degrades to the next strategy instead of failing the
// call.
package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EndReasonNormal is the reason reported for an ordinary meeting end (host
// closed it, everyone left, the bot was alone too long). Anything else is a
// diagnostic, typically an invalid-link message.
const EndReasonNormal = "normal"

// ErrStopRequested reports a join abandoned because a stop command arrived
// while the bot was still waiting for admission.
var ErrStopRequested = errors.New("stop requested while joining")

// lobbyWaitLimit bounds how long a client sits in a waiting room.
const lobbyWaitLimit = 600 * time.Second

// Client is one live meeting attendance session.
type Client interface {
	// Join runs the full join flow including any waiting room and returns
	// once the bot is inside the meeting.
	Join(ctx context.Context) error
	// PostJoinSetup arranges the in-meeting UI the pollers depend on:
	// computer audio, the participants panel, live captions.
	PostJoinSetup(ctx context.Context) error
	SendChatMessage(ctx context.Context, text string) error
	// ActiveSpeakers returns display names currently showing a speaking
	// affordance. Best effort; empty means nobody was detected.
	ActiveSpeakers(ctx context.Context) []string
	// Participants returns the roster. Without refresh the last
	// successfully scraped list is served.
	Participants(ctx context.Context, refresh bool) []string
	// MeetingEnded reports whether the meeting is over and why. The reason
	// is EndReasonNormal or a diagnostic string for invalid links.
	MeetingEnded(ctx context.Context) (bool, string)
	Close(ctx context.Context) error
}

// Options configure a meeting session.
type Options struct {
	URL      string
	Passcode string
	BotName  string
	Headless bool
	// ChromePath overrides browser discovery.
	ChromePath string
	// StopRequested is polled during lobby waits so an operator stop
	// command can abort a join stuck in a waiting room.
	StopRequested func() bool
	Log           zerolog.Logger
}

func (o Options) stopRequested() bool {
	return o.StopRequested != nil && o.StopRequested()
}

// New returns the client for the given platform name (zoom, teams, meet).
func New(platformName string, opts Options) (Client, error) {
	if opts.BotName == "" {
		opts.BotName = "Sesly Bot"
	}
	switch platformName {
	case "zoom":
		return newZoomClient(opts), nil
	case "teams":
		return newTeamsClient(opts), nil
	case "meet":
		return newMeetClient(opts), nil
	default:
		return nil, fmt.Errorf("unsupported meeting platform %q", platformName)
	}
}

// chatFallbackMessage replaces chat text that sanitizing emptied out.
const chatFallbackMessage = "Merhaba! Ben Sesly Bot. Bu toplantiyi kaydediyorum."

// sanitizeChatMessage strips characters outside ASCII and Latin Extended
// (Turkish letters included). X11 typing tools mangle anything else, emoji
// in particular.
func sanitizeChatMessage(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= 0x7F || (r >= 0x00C0 && r <= 0x024F) {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return chatFallbackMessage
	}
	return out
}

// findPhrase returns the first phrase contained in text. The caller
// lowercases both sides.
func findPhrase(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// excludedName reports whether name matches an entry on an exclusion list.
// Matching is by lowercase substring, the way the panel scrapers collect
// UI glyphs and self labels.
func excludedName(name string, excluded []string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, ex := range excluded {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}

func appendUnique(list *[]string, v string) {
	for _, have := range *list {
		if have == v {
			return
		}
	}
	*list = append(*list, v)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// originOf reduces a URL to scheme://host for permission grants.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// jsArgs marshals a value for splicing into an IIFE argument list.
func jsArgs(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// aloneTracker ends a meeting that stays single-participant for too long.
type aloneTracker struct {
	since   time.Time
	timeout time.Duration
}

// observe records whether the bot currently appears alone and reports
// whether the condition has persisted past the timeout.
func (a *aloneTracker) observe(alone bool, log zerolog.Logger) bool {
	if !alone {
		if !a.since.IsZero() {
			log.Info().Msg("another participant appeared, alone timer reset")
			a.since = time.Time{}
		}
		return false
	}
	if a.since.IsZero() {
		a.since = time.Now()
		log.Info().Dur("timeout", a.timeout).Msg("alone in the meeting, timer started")
		return false
	}
	if elapsed := time.Since(a.since); elapsed > a.timeout {
		log.Info().Dur("elapsed", elapsed).Msg("alone timeout reached, meeting treated as ended")
		return true
	}
	return false
}

// controlTracker flags a lost meeting UI after three consecutive
// missing-toolbar observations, tolerating momentary re-renders.
type controlTracker struct {
	misses int
}

func (t *controlTracker) observe(present bool) bool {
	if present {
		t.misses = 0
		return false
	}
	t.misses++
	return t.misses >= 3
}
