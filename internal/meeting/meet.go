package meeting

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"
)

const (
	meetNavTimeout   = 60 * time.Second
	meetAloneTimeout = 300 * time.Second
)

// meetInitScript wraps RTCPeerConnection before the Meet bundle loads and
// keeps recent connections reachable at window._rtcConnections.
const meetInitScript = `(function() {
	if (!window.RTCPeerConnection) return;
	const Orig = window.RTCPeerConnection;
	window._rtcConnections = [];
	const Wrapped = function() {
		const pc = new Orig(...arguments);
		window._rtcConnections.push(pc);
		if (window._rtcConnections.length > 20) window._rtcConnections.shift();
		return pc;
	};
	Wrapped.prototype = Orig.prototype;
	Object.setPrototypeOf(Wrapped, Orig);
	window.RTCPeerConnection = Wrapped;
})();`

var meetWaitingTexts = []string{
	"düzenleyen kişi sizi görüşmeye alana kadar bekleyin",
	"waiting for host to join",
	"asking to join",
	"katılma isteği gönderildi",
}

var meetEndPhrases = []string{
	"you left",
	"meeting has ended",
	"toplantıdan ayrıldınız",
	"toplantı sona erdi",
}

var meetInvalidPhrases = []string{
	"invalid video call link",
	"check your meeting code",
	"this video call link is invalid",
	"meeting doesn't exist",
	"couldn't find the meeting",
	"video call has ended",
	"this call has ended",
	"not allowed to join",
	"geçersiz görüntülü arama bağlantısı",
	"toplantı kodu hatalı",
	"bu toplantı artık mevcut değil",
	"toplantı sona ermiş",
	"bu aramaya katılamazsınız",
	"geçersiz toplantı linki",
	"bu görüşme sona erdi",
}

// meetExcludedNames filters UI strings the tile and panel scrapers pick up
// alongside real people.
var meetExcludedNames = []string{
	"sesly", "bot", "meeting bot", "toplantı botu", "frame", "pen_spark",
	"localhost", "siz", "you", "sen", "ben", "katılımcı", "participant",
	"kişi", "people", "toplantı", "meeting", "google meet",
}

var meetTimePattern = regexp.MustCompile(`\d{2}:\d{2}`)

// cleanMeetName validates a scraped display name: plausible length, not a
// UI string, not the clock overlay Meet renders onto tiles.
func cleanMeetName(s string) string {
	name := strings.TrimSpace(s)
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return ""
	}
	if meetTimePattern.MatchString(name) {
		return ""
	}
	if excludedName(name, meetExcludedNames) {
		return ""
	}
	return name
}

// pickSpeakerOption chooses the audio output entry that routes meeting
// audio into the virtual cable. Meet lists the plain device name next to
// numbered duplicates like "CABLE Input 16"; the plain entry is the one
// that routes.
func pickSpeakerOption(options []string) int {
	hasDigit := func(s string) bool {
		for _, r := range s {
			if r >= '0' && r <= '9' {
				return true
			}
		}
		return false
	}
	for i, opt := range options {
		if strings.Contains(strings.ToLower(opt), "cable input") && !hasDigit(opt) {
			return i
		}
	}
	for i, opt := range options {
		lower := strings.ToLower(opt)
		if strings.Contains(lower, "vb-audio") && strings.Contains(lower, "input") && !strings.Contains(opt, "16") {
			return i
		}
	}
	for i, opt := range options {
		if strings.Contains(opt, "16") && i+1 < len(options) {
			return i + 1
		}
	}
	if len(options) > 0 {
		return len(options) - 1
	}
	return -1
}

// meetTileStyle carries the computed style of one video tile; the
// classification happens on this side of the protocol.
type meetTileStyle struct {
	Name          string `json:"name"`
	BorderWidth   string `json:"borderWidth"`
	BorderColor   string `json:"borderColor"`
	OutlineWidth  string `json:"outlineWidth"`
	OutlineColor  string `json:"outlineColor"`
	BoxShadow     string `json:"boxShadow"`
	Aria          string `json:"aria"`
	Classes       string `json:"classes"`
	Wave          bool   `json:"wave"`
	ChildSpeaking bool   `json:"childSpeaking"`
}

// meetTileSpeaking decides whether a tile is rendering any of the visual
// speaking affordances: a colored highlight border or outline, a glow
// shadow, a sound-wave animation, or an explicit aria or class marker.
func meetTileSpeaking(t meetTileStyle) bool {
	if t.Wave || t.ChildSpeaking {
		return true
	}
	if cssPixels(t.BorderWidth) >= 3 && meetColored(t.BorderColor) {
		return true
	}
	if cssPixels(t.OutlineWidth) >= 2 && meetColored(t.OutlineColor) {
		return true
	}
	if shadowGlow(t.BoxShadow) {
		return true
	}
	aria := strings.ToLower(t.Aria)
	for _, kw := range []string{"konuşuyor", "speaking", "presenting"} {
		if strings.Contains(aria, kw) {
			return true
		}
	}
	cls := strings.ToLower(t.Classes)
	// "active" used to be on this list and lit up every focused tile.
	for _, kw := range []string{"speaking", "talking"} {
		if strings.Contains(cls, kw) {
			return true
		}
	}
	return false
}

var rgbPattern = regexp.MustCompile(`rgba?\((\d+),\s*(\d+),\s*(\d+)`)

// meetColored reports whether a CSS color is an actual highlight color:
// not black, not white, not near-gray.
func meetColored(color string) bool {
	m := rgbPattern.FindStringSubmatch(color)
	if m == nil {
		return false
	}
	r, _ := strconv.Atoi(m[1])
	g, _ := strconv.Atoi(m[2])
	b, _ := strconv.Atoi(m[3])
	if r < 30 && g < 30 && b < 30 {
		return false
	}
	if r > 225 && g > 225 && b > 225 {
		return false
	}
	lo, hi := r, r
	for _, v := range []int{g, b} {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi-lo >= 30
}

func cssPixels(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "px"), 64)
	if err != nil {
		return 0
	}
	return v
}

var shadowPx = regexp.MustCompile(`(-?[\d.]+)px`)

// shadowGlow reports a box-shadow in a highlight color with visible blur
// or spread. Chrome formats the computed value color-first:
// "rgb(26, 115, 232) 0px 0px 8px 2px".
func shadowGlow(shadow string) bool {
	if shadow == "" || shadow == "none" || !meetColored(shadow) {
		return false
	}
	px := shadowPx.FindAllStringSubmatch(shadow, -1)
	for i, m := range px {
		if i < 2 {
			continue
		}
		if v, _ := strconv.ParseFloat(m[1], 64); v > 0 {
			return true
		}
	}
	return false
}

// verifyCaptionSpeaker maps the name line of a caption block onto the
// known roster. Exact match wins, then containment either way; an unknown
// name is returned as scraped.
func verifyCaptionSpeaker(caption string, participants []string) string {
	raw := firstLine(caption)
	if n := utf8.RuneCountInString(raw); n < 2 || n > 50 {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "sesly") || strings.Contains(lower, "bot") {
		return ""
	}
	for _, p := range participants {
		if strings.ToLower(p) == lower {
			return p
		}
	}
	for _, p := range participants {
		pl := strings.ToLower(p)
		if strings.Contains(pl, lower) || strings.Contains(lower, pl) {
			return p
		}
	}
	return raw
}

const meetDismissPopupsJS = `(function() {
	const words = ['anladım', 'anladim', 'got it', 'dismiss', 'kapat', 'close', 'tamam', 'ok', 'understood', 'i understand'];
	let clicked = 0;
	for (const el of document.querySelectorAll("button, div[role='button']")) {
		const text = ((el.textContent || '').trim() + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
		if (!text.trim()) continue;
		if (words.some(w => text.includes(w)) && el.offsetParent !== null) {
			el.click();
			clicked++;
			if (clicked >= 3) break;
		}
	}
	return clicked;
})()`

// meetDeviceOffJS turns a media device off on the pre-join screen; words
// and offWords are matched against the control's aria-label.
const meetDeviceOffJS = `(function(words, offWords) {
	for (const el of document.querySelectorAll("div[role='button'], button")) {
		const label = (el.getAttribute('aria-label') || '').toLowerCase();
		if (!label) continue;
		if (!words.some(w => label.includes(w))) continue;
		if (!offWords.some(w => label.includes(w))) continue;
		if (el.offsetParent === null) continue;
		el.click();
		return true;
	}
	return false;
})(%s, %s)`

const meetOpenSpeakerDropdownJS = `(function() {
	for (const el of document.querySelectorAll("button, div[role='button'], div[role='combobox']")) {
		const label = (el.getAttribute('aria-label') || '').toLowerCase();
		if ((label.includes('hoparlör') || label.includes('speaker')) && el.offsetParent !== null) {
			el.click();
			return true;
		}
	}
	return false;
})()`

const meetSpeakerOptionsJS = `(function() {
	const out = [];
	for (const el of document.querySelectorAll("li[role='option'], div[role='option']")) {
		if (el.offsetParent !== null) out.push((el.textContent || '').trim());
	}
	return out;
})()`

const meetClickOptionJS = `(function(idx) {
	const els = [];
	for (const el of document.querySelectorAll("li[role='option'], div[role='option']")) {
		if (el.offsetParent !== null) els.push(el);
	}
	if (idx < 0 || idx >= els.length) return false;
	els[idx].click();
	return true;
})(%d)`

const meetJoinClickJS = `(function() {
	const words = ['ask to join', 'katıl', 'join'];
	for (const el of document.querySelectorAll("button, div[role='button']")) {
		const text = ((el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
		if (!text.trim()) continue;
		if (words.some(w => text.includes(w)) && el.offsetParent !== null) {
			el.click();
			return true;
		}
	}
	return false;
})()`

const meetJoinPresentJS = `(function() {
	const words = ['ask to join', 'katıl', 'join'];
	for (const el of document.querySelectorAll("button, div[role='button']")) {
		const text = ((el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
		if (words.some(w => text.includes(w)) && el.offsetParent !== null) return true;
	}
	return false;
})()`

const meetJoinedJS = `(function() {
	const sels = [
		"button[aria-label*='chat' i]", "button[aria-label*='sohbet' i]",
		"button[aria-label*='participant' i]", "button[aria-label*='kişi' i]"
	];
	for (const sel of sels) {
		try {
			for (const el of document.querySelectorAll(sel)) {
				if (el.offsetParent !== null) return true;
			}
		} catch (e) {}
	}
	for (const icon of document.querySelectorAll('i, span')) {
		const t = (icon.textContent || '').trim();
		if ((t === 'chat_bubble' || t === 'people') && icon.offsetParent !== null) return true;
	}
	return false;
})()`

// meetCaptionStateJS enables captions: reports 'on' when caption text is
// already rendering or the toggle is pressed, clicks the toggle when it
// can find one, otherwise asks for the keyboard shortcut.
const meetCaptionStateJS = `(function() {
	for (const c of document.querySelectorAll('div[class*="caption"], div[class*="subtitle"]')) {
		if (c.innerText && c.innerText.length > 5 && c.offsetParent !== null) return 'on';
	}
	const words = ['caption', 'altyazı', 'subtitle'];
	for (const btn of document.querySelectorAll("button, div[role='button']")) {
		const raw = (btn.getAttribute('aria-label') || '') + ' ' + (btn.getAttribute('data-tooltip') || '');
		const lower = raw.toLowerCase();
		const icon = btn.querySelector('i');
		const iconText = icon ? icon.textContent.trim() : '';
		if (words.some(w => lower.includes(w)) || raw.includes('CC') ||
			iconText === 'closed_caption' || iconText === 'closed_caption_off') {
			if (btn.getAttribute('aria-pressed') === 'true') return 'on';
			if (btn.offsetParent !== null) { btn.click(); return 'clicked'; }
		}
	}
	return 'missing';
})()`

const meetOpenLanguageMenuJS = `(function() {
	const area = document.querySelector('div[class*="caption"], div[class*="subtitle"]');
	if (!area) return false;
	for (const btn of document.querySelectorAll('button')) {
		const text = btn.textContent || '';
		if ((text.includes('İngilizce') || text.includes('English')) && btn.offsetParent !== null) {
			const r = btn.getBoundingClientRect();
			if (r.x < 300 && r.y < 100) { btn.click(); return true; }
		}
	}
	return false;
})()`

const meetPickTurkishJS = `(function() {
	for (const el of document.querySelectorAll('li, span, div, button')) {
		if (el.childElementCount === 0 && (el.textContent || '').includes('Türkçe') && el.offsetParent !== null) {
			el.scrollIntoView(true);
			el.click();
			return true;
		}
	}
	return false;
})()`

// meetTileScanJS collects every visible participant tile with the style
// values the speaking classifier needs. Children get the colored-border
// check inline because their styles are too many to ship back.
const meetTileScanJS = `(function() {
	const isColored = (color) => {
		const m = (color || '').match(/rgba?\((\d+),\s*(\d+),\s*(\d+)/);
		if (!m) return false;
		const r = +m[1], g = +m[2], b = +m[3];
		if (r < 30 && g < 30 && b < 30) return false;
		if (r > 225 && g > 225 && b > 225) return false;
		return Math.max(r, g, b) - Math.min(r, g, b) >= 30;
	};
	const containers = document.querySelectorAll('[data-participant-id], div[data-self-name], div[jsname][data-requested-participant-id], div[class*="participant"], div[class*="video-tile"], div[class*="avatar"]');
	const out = [];
	const seen = new Set();
	for (const el of containers) {
		let name = el.getAttribute('data-self-name') || '';
		if (!name) {
			const text = (el.innerText || '').trim();
			if (text) name = text.split('\n')[0].trim();
		}
		if (!name) name = (el.getAttribute('aria-label') || '').trim();
		if (!name || seen.has(name)) continue;
		seen.add(name);

		const cs = window.getComputedStyle(el);
		let wave = false;
		let childSpeaking = false;
		for (const child of el.querySelectorAll('div, span, i')) {
			const ccls = (child.className || '').toString().toLowerCase();
			if (ccls.includes('wave') || ccls.includes('speaking') || ccls.includes('talking') || ccls.includes('sound')) wave = true;
			const cstyle = window.getComputedStyle(child);
			if (cstyle.animationName && cstyle.animationName !== 'none') wave = true;
			if (parseFloat(cstyle.borderWidth) >= 3 && isColored(cstyle.borderColor)) childSpeaking = true;
			if (wave && childSpeaking) break;
		}

		out.push({
			name: name,
			borderWidth: cs.borderWidth || '',
			borderColor: cs.borderColor || '',
			outlineWidth: cs.outlineWidth || '',
			outlineColor: cs.outlineColor || '',
			boxShadow: cs.boxShadow || '',
			aria: el.getAttribute('aria-label') || '',
			classes: (el.className || '').toString(),
			wave: wave,
			childSpeaking: childSpeaking
		});
	}
	return out;
})()`

const meetCaptionTextJS = `(function() {
	const sels = ['div[class*="caption"]', 'div[class*="subtitle"]', 'div[jsname][data-caption]', 'div[style*="bottom"]'];
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			const text = (el.innerText || '').trim();
			if (!text) continue;
			const lines = text.split('\n');
			if (lines.length >= 2 && lines[0].trim()) return text;
		}
	}
	return '';
})()`

// meetPanelToggleJS opens the people panel. The participant counter (a
// short digits-only button on the right edge) is the reliable target; the
// labeled buttons are the fallback.
const meetPanelToggleJS = `(function() {
	const visible = Array.from(document.querySelectorAll("button, div[role='button']")).filter(b => b.offsetParent !== null);
	for (const b of visible) {
		const text = (b.textContent || '').trim();
		if (/^\d{1,3}$/.test(text)) {
			const r = b.getBoundingClientRect();
			if (r.x > window.innerWidth * 0.6) {
				if (b.getAttribute('aria-pressed') === 'true') return 'open';
				b.scrollIntoView({block: 'center'});
				b.click();
				return 'clicked';
			}
		}
	}
	const words = ['participant', 'katılımcı', 'kişi', 'people', 'herkes', 'show everyone', 'all', 'everyone'];
	const icons = ['people', 'group', 'supervised_user_circle'];
	for (const b of visible) {
		const label = ((b.getAttribute('aria-label') || '') + ' ' + (b.getAttribute('data-tooltip') || '')).toLowerCase();
		const icon = b.querySelector('i');
		const iconText = icon ? icon.textContent.trim() : '';
		if (words.some(w => label.includes(w)) || icons.includes(iconText)) {
			if (b.getAttribute('aria-pressed') === 'true') return 'open';
			b.scrollIntoView({block: 'center'});
			b.click();
			return 'clicked';
		}
	}
	return 'missing';
})()`

const meetPanelNamesJS = `(function() {
	const sels = ['[data-participant-id]', '[data-requested-participant-id]', 'div[role="listitem"]', 'div[class*="participant"]', '[data-self-name]', 'span[class*="name"]'];
	const out = [];
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			let name = el.getAttribute('data-self-name') || '';
			if (!name) {
				const text = (el.innerText || '').trim();
				if (text) name = text.split('\n')[0].trim();
			}
			if (!name) name = (el.getAttribute('aria-label') || '').trim();
			if (name) out.push(name);
		}
		if (out.length) break;
	}
	return out;
})()`

const meetClosePanelJS = `(function() {
	for (const btn of document.querySelectorAll("button[aria-label*='Close'], button[aria-label*='Kapat']")) {
		if (btn.offsetParent !== null) { btn.click(); return true; }
	}
	return false;
})()`

const meetParticipantCountJS = `(function() {
	for (const b of document.querySelectorAll("button, div[role='button']")) {
		const label = (b.getAttribute('aria-label') || '').toLowerCase();
		if (!label.includes('participant') && !label.includes('katılımcı') && !label.includes('kişi')) continue;
		const m = (b.textContent || '').match(/\d+/);
		if (m) return parseInt(m[0], 10);
	}
	return -1;
})()`

type meetClient struct {
	opts Options
	log  zerolog.Logger
	s    *session

	url          string
	participants []string
	gridRoster   []string
	alone        aloneTracker
	controls     controlTracker
}

func newMeetClient(opts Options) *meetClient {
	url := opts.URL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return &meetClient{
		opts:  opts,
		log:   opts.Log.With().Str("platform", "meet").Logger(),
		url:   url,
		alone: aloneTracker{timeout: meetAloneTimeout},
	}
}

func (c *meetClient) Join(ctx context.Context) error {
	s, err := newSession(c.opts, 1920, 1080, c.log)
	if err != nil {
		return err
	}
	c.s = s
	if err := s.addInitScript(meetInitScript); err != nil {
		c.log.Debug().Err(err).Msg("init script install failed")
	}
	if err := s.denyDownloads(); err != nil {
		c.log.Debug().Err(err).Msg("download deny failed")
	}
	if err := s.grantMediaPermissions(originOf(c.url)); err != nil {
		c.log.Debug().Err(err).Msg("media permission grant failed")
	}

	c.log.Info().Str("url", c.url).Msg("opening meeting page")
	if err := s.navigate(c.url, meetNavTimeout); err != nil {
		return fmt.Errorf("open meet page: %w", err)
	}
	time.Sleep(3 * time.Second)
	c.dismissPopups()

	if s.fillXPath(`//input[@type='text']`, c.opts.BotName, 10*time.Second) {
		c.log.Info().Str("name", c.opts.BotName).Msg("display name entered")
	} else {
		c.log.Debug().Msg("name input not present, probably a signed-in session")
	}

	c.turnDeviceOff([]string{"ikrofon", "icrophone"}, "d", "microphone")
	c.turnDeviceOff([]string{"amera", "ideo"}, "e", "camera")
	c.selectCableSpeaker()

	if err := c.submitJoin(); err != nil {
		return err
	}
	return c.awaitAdmission(ctx)
}

func (c *meetClient) dismissPopups() {
	var clicked int
	_ = c.s.eval(meetDismissPopupsJS, &clicked, 8*time.Second)
	if clicked > 0 {
		c.log.Info().Int("count", clicked).Msg("pre-join popups dismissed")
		time.Sleep(time.Second)
	}
}

// turnDeviceOff clicks the aria-labeled off toggle when one is findable,
// otherwise falls back to the Meet keyboard shortcut (Ctrl+D microphone,
// Ctrl+E camera).
func (c *meetClient) turnDeviceOff(words []string, shortcut, device string) {
	js := fmt.Sprintf(meetDeviceOffJS, jsArgs(words), jsArgs([]string{"kapat", "turn off"}))
	var clicked bool
	_ = c.s.eval(js, &clicked, 8*time.Second)
	if clicked {
		c.log.Info().Str("device", device).Msg("device turned off")
	} else {
		c.s.pressCombo(shortcut, input.ModifierCtrl)
		c.log.Info().Str("device", device).Msg("device toggled via shortcut")
	}
	time.Sleep(time.Second)
}

func (c *meetClient) selectCableSpeaker() {
	var opened bool
	_ = c.s.eval(meetOpenSpeakerDropdownJS, &opened, 8*time.Second)
	if !opened {
		c.log.Debug().Msg("speaker dropdown not found")
		return
	}
	var options []string
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		_ = c.s.eval(meetSpeakerOptionsJS, &options, 5*time.Second)
		if len(options) > 0 {
			break
		}
	}
	idx := pickSpeakerOption(options)
	if idx < 0 {
		c.log.Debug().Msg("no speaker options listed")
		c.s.clickAt(0, 0)
		return
	}
	var clicked bool
	_ = c.s.eval(fmt.Sprintf(meetClickOptionJS, idx), &clicked, 5*time.Second)
	if clicked {
		c.log.Info().Str("device", options[idx]).Msg("speaker device selected")
	}
	time.Sleep(time.Second)
}

// submitJoin clicks the join or ask-to-join button up to three times;
// success is the button disappearing or an in-meeting surface appearing.
func (c *meetClient) submitJoin() error {
	for attempt := 1; attempt <= 3; attempt++ {
		var clicked bool
		_ = c.s.eval(meetJoinClickJS, &clicked, 10*time.Second)
		if !clicked {
			if attempt == 1 {
				return errors.New("join button not found")
			}
			return nil
		}
		c.log.Info().Int("attempt", attempt).Msg("join button clicked")
		time.Sleep(5 * time.Second)
		if !c.s.evalBool(meetJoinPresentJS, 5*time.Second) || c.s.evalBool(meetJoinedJS, 5*time.Second) {
			return nil
		}
		c.log.Warn().Int("attempt", attempt).Msg("join button still visible")
	}
	return nil
}

func (c *meetClient) awaitAdmission(ctx context.Context) error {
	start := time.Now()
	lastLog := start
	for time.Since(start) < lobbyWaitLimit {
		if c.opts.stopRequested() {
			return ErrStopRequested
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		if c.s.evalBool(meetJoinedJS, 5*time.Second) {
			c.log.Info().Dur("waited", time.Since(start)).Msg("joined the meeting")
			return nil
		}
		if time.Since(lastLog) >= 30*time.Second {
			lastLog = time.Now()
			waiting := c.s.textVisible(3*time.Second, meetWaitingTexts...)
			c.log.Info().Dur("waited", time.Since(start)).Bool("waiting_screen", waiting).Msg("still waiting for admission")
		}
	}
	return errors.New("admission wait timeout after 600s")
}

// PostJoinSetup turns live captions on; the caption stream is the speaker
// fallback when the tile scan sees nothing.
func (c *meetClient) PostJoinSetup(ctx context.Context) error {
	time.Sleep(2 * time.Second)
	var state string
	_ = c.s.eval(meetCaptionStateJS, &state, 8*time.Second)
	switch state {
	case "on":
		c.log.Info().Msg("captions already on")
		return nil
	case "clicked":
		c.log.Info().Msg("captions enabled")
		return nil
	}
	// No toggle found; the keyboard shortcut still works and the language
	// menu only shows up in this path.
	_ = c.s.click("body", 3*time.Second)
	time.Sleep(300 * time.Millisecond)
	c.s.press("c")
	time.Sleep(time.Second)
	c.setCaptionTurkish()
	return nil
}

func (c *meetClient) setCaptionTurkish() {
	c.s.mouseWake()
	var opened bool
	_ = c.s.eval(meetOpenLanguageMenuJS, &opened, 5*time.Second)
	if !opened {
		return
	}
	time.Sleep(1500 * time.Millisecond)
	var picked bool
	_ = c.s.eval(meetPickTurkishJS, &picked, 5*time.Second)
	if picked {
		c.log.Info().Msg("caption language set to Turkish")
	}
}

func (c *meetClient) SendChatMessage(ctx context.Context, text string) error {
	var state string
	_ = c.s.eval(`(function() {
		for (const btn of document.querySelectorAll("button, div[role='button']")) {
			const label = (btn.getAttribute('aria-label') || '').toLowerCase();
			if ((label.includes('chat') || label.includes('sohbet')) && btn.offsetParent !== null) {
				if (btn.getAttribute('aria-pressed') === 'true') return 'open';
				btn.click();
				return 'clicked';
			}
		}
		return 'missing';
	})()`, &state, 8*time.Second)
	if state == "missing" {
		return errors.New("chat button not found")
	}
	if state == "clicked" {
		time.Sleep(1500 * time.Millisecond)
	}

	var focused bool
	_ = c.s.eval(`(function() {
		const sels = ["textarea[placeholder*='Send']", "textarea[placeholder*='İlet']", "textarea[placeholder*='mesaj']",
			"textarea", "div[contenteditable='true'][data-placeholder]", "div[contenteditable='true']", "input[type='text']"];
		for (const sel of sels) {
			for (const el of document.querySelectorAll(sel)) {
				if (el.offsetParent !== null) { el.focus(); el.click(); return true; }
			}
		}
		return false;
	})()`, &focused, 8*time.Second)
	if !focused {
		return errors.New("chat input not found")
	}
	time.Sleep(500 * time.Millisecond)

	c.s.typeMessage(sanitizeChatMessage(text))
	time.Sleep(500 * time.Millisecond)
	c.s.press(kb.Enter)
	c.log.Info().Msg("chat message sent")

	if state == "clicked" {
		time.Sleep(time.Second)
		var closed string
		_ = c.s.eval(`(function() {
			for (const btn of document.querySelectorAll("button, div[role='button']")) {
				const label = (btn.getAttribute('aria-label') || '').toLowerCase();
				if ((label.includes('chat') || label.includes('sohbet')) && btn.getAttribute('aria-pressed') === 'true') {
					btn.click();
					return 'closed';
				}
			}
			return 'left-open';
		})()`, &closed, 5*time.Second)
	}
	return nil
}

func (c *meetClient) ActiveSpeakers(ctx context.Context) []string {
	var tiles []meetTileStyle
	if err := c.s.eval(meetTileScanJS, &tiles, 8*time.Second); err == nil {
		var speakers, roster []string
		for _, t := range tiles {
			name := cleanMeetName(t.Name)
			if name == "" {
				continue
			}
			appendUnique(&roster, name)
			if meetTileSpeaking(t) {
				appendUnique(&speakers, name)
			}
		}
		if len(roster) > 0 {
			c.gridRoster = roster
		}
		if len(speakers) > 0 {
			return speakers
		}
	}
	var caption string
	if err := c.s.eval(meetCaptionTextJS, &caption, 5*time.Second); err != nil || caption == "" {
		return nil
	}
	if sp := verifyCaptionSpeaker(caption, c.participants); sp != "" {
		return []string{sp}
	}
	return nil
}

func (c *meetClient) Participants(ctx context.Context, refresh bool) []string {
	if !refresh && len(c.participants) > 0 {
		return c.participants
	}
	var state string
	_ = c.s.eval(meetPanelToggleJS, &state, 8*time.Second)
	if state == "missing" {
		if len(c.participants) == 0 && len(c.gridRoster) > 0 {
			c.participants = c.gridRoster
		}
		return c.participants
	}
	if state == "clicked" {
		time.Sleep(time.Second)
	}

	var names []string
	_ = c.s.eval(meetPanelNamesJS, &names, 8*time.Second)
	var roster []string
	for _, n := range names {
		if name := cleanMeetName(firstLine(n)); name != "" {
			appendUnique(&roster, name)
		}
	}

	if state == "clicked" {
		// Leaving the panel open is harmless; the tile scan keeps working.
		var closed bool
		_ = c.s.eval(meetClosePanelJS, &closed, 5*time.Second)
	}

	if len(roster) > 0 {
		c.participants = roster
	} else if len(c.participants) == 0 && len(c.gridRoster) > 0 {
		c.participants = c.gridRoster
	}
	return c.participants
}

func (c *meetClient) MeetingEnded(ctx context.Context) (bool, string) {
	if !c.s.alive() {
		return true, EndReasonNormal
	}
	text := strings.ToLower(c.s.pageText(5 * time.Second))
	if phrase, ok := findPhrase(text, meetEndPhrases); ok {
		c.log.Info().Str("phrase", phrase).Msg("meeting end text detected")
		return true, EndReasonNormal
	}
	if phrase, ok := findPhrase(text, meetInvalidPhrases); ok {
		c.log.Warn().Str("phrase", phrase).Msg("invalid meeting detected")
		return true, "Geçersiz Meet toplantısı: " + phrase
	}

	count := -1
	_ = c.s.eval(meetParticipantCountJS, &count, 5*time.Second)
	if c.alone.observe(count >= 0 && count <= 1, c.log) {
		return true, EndReasonNormal
	}

	present := c.s.controlsPresent([]string{
		"button[aria-label*='Leave call']",
		"button[aria-label*='ayrıl']",
		"button[aria-label*='Ayrıl']",
	}, []string{"call_end"})
	if c.controls.observe(present) {
		c.log.Info().Msg("meeting controls gone, treating meeting as ended")
		return true, EndReasonNormal
	}
	return false, ""
}

func (c *meetClient) Close(ctx context.Context) error {
	if c.s != nil {
		c.s.close()
		c.s = nil
	}
	return nil
}
