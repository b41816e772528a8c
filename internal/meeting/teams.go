package meeting

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"
)

const (
	teamsNavTimeout   = 60 * time.Second
	teamsAloneTimeout = 120 * time.Second
)

// teamsInitScript wraps window.WebSocket before the Teams bundle loads.
// Frames mentioning speakers or the roster are buffered on
// window._wsSpeakerData for the poller; both buffers are capped so a long
// meeting cannot grow them without bound.
const teamsInitScript = `(function() {
	const Orig = window.WebSocket;
	if (!Orig) return;
	window._wsMessages = [];
	window._wsSpeakerData = [];
	const Wrapped = function(url, protocols) {
		const ws = protocols === undefined ? new Orig(url) : new Orig(url, protocols);
		ws.addEventListener('message', function(event) {
			try {
				if (typeof event.data !== 'string') return;
				window._wsMessages.push(event.data);
				if (window._wsMessages.length > 1000) window._wsMessages.shift();
				if (/speak|participant|roster/i.test(event.data)) {
					window._wsSpeakerData.push({ time: Date.now(), data: event.data });
					if (window._wsSpeakerData.length > 200) window._wsSpeakerData.shift();
				}
			} catch (e) {}
		});
		return ws;
	};
	Wrapped.prototype = Orig.prototype;
	Wrapped.CONNECTING = Orig.CONNECTING;
	Wrapped.OPEN = Orig.OPEN;
	Wrapped.CLOSING = Orig.CLOSING;
	Wrapped.CLOSED = Orig.CLOSED;
	window.WebSocket = Wrapped;
})();`

const (
	teamsNameInput = "input[data-tid='prejoin-display-name-input'], input[placeholder='Adınızı yazın'], input[aria-label='Adınızı yazın'], input[placeholder='Type your name'], input[type='text']"

	teamsJoinOnWebButton = "button[data-tid='joinOnWeb']"
	teamsJoinOnWebXPath  = `//button[contains(., 'Bu tarayıcıda') or contains(., 'Continue on this browser') or contains(., 'Use the web app')]`
	teamsComputerAudio   = `//*[contains(text(), 'Bilgisayar sesi') or contains(text(), 'Computer audio')]`
	teamsJoinButtonXPath = `//button[@data-tid='prejoin-join-button' or contains(., 'Şimdi katıl') or contains(., 'Join now') or contains(., 'Katıl') or contains(., 'Join')]`
)

var teamsLobbyTexts = []string{
	"Someone in the meeting should let you in soon",
	"Toplantıdaki birisi sizi",
	"sizi içeri almalı",
	"kabul edilmeyi",
	"lobide",
	"Lobi",
	"yakında",
	"bildireceğiz",
	"almasını",
	"ev sahibi",
	"içeri alacak",
	"Kısa sürede",
	"Waiting for people",
	"let you in",
}

var teamsInMeetingIndicators = []string{
	"button[data-tid='hangup-button']",
	"button[data-tid='microphone-mute-button']",
	"div[data-tid='call-controls']",
	"button[aria-label='Leave']",
	"button[aria-label='Ayrıl']",
	"button[aria-label='Sohbet']",
	"button[aria-label='Kişiler']",
	"div[data-tid='participant-avatar']",
	"div[data-stream-type='Video']",
	"button[id='hangup-button']",
}

// teamsSurfaceIndicators wait for anything meeting-shaped after the join
// click; the lobby text check then disambiguates.
var teamsSurfaceIndicators = []string{
	"button[data-tid='hangup-button']",
	"button[data-tid='microphone-mute-button']",
	"div[data-tid='call-controls']",
	"button[aria-label='Leave']",
	"button[aria-label='Ayrıl']",
	"button[aria-label='Sohbet']",
	"button[aria-label='Chat']",
	"button[aria-label='Kişiler']",
	"button[aria-label='People']",
	"video",
	"canvas",
	"ul[role='list']",
}

var teamsEndTexts = []string{
	"Meeting ended",
	"Toplantı bitti",
	"You have been removed",
	"Toplantıdan kaldırıldınız",
	"Çağrınızdan memnun musunuz?",
	"Teams'e bugün ücretsiz katılın",
	"Daha fazla bilgi edinin",
}

var teamsInvalidPhrases = []string{
	"this meeting doesn't exist",
	"meeting doesn't exist",
	"this meeting has expired",
	"meeting has expired",
	"invalid meeting link",
	"meeting link is no longer valid",
	"meeting not found",
	"unable to join this meeting",
	"this meeting id is invalid",
	"couldn't find the meeting",
	"bu toplantı mevcut değil",
	"toplantı bulunamadı",
	"geçersiz toplantı linki",
	"bu toplantı süresi dolmuş",
	"toplantı bağlantısı geçersiz",
}

var teamsAloneTexts = []string{
	"Başkalarının katılması bekleniyor",
	"Waiting for others to join",
	"When the meeting starts, we'll let people know",
	"Bu toplantıda (1)",
}

var teamsExcludedNames = []string{
	"frame", "pen_spark", "pen_spark_io", "spark_io",
	"sesly bot", "sesly", "toplantı botu", "meeting bot",
	"localhost", "panel", "bot panel", "sesly asistan",
	"microsoft teams", "teams", "katılım isteği", "join request",
}

// cleanTeamsName extracts a display name from a roster row. Aria labels
// read like "Ahmet Yılmaz, Konuşuyor" or "Katılımcı: Ahmet Yılmaz"; plain
// text rows carry the name on the first line.
func cleanTeamsName(text, aria string) string {
	var name string
	if aria != "" {
		clean := strings.NewReplacer("Konuşuyor", "", "Speaking", "", ",", "").Replace(aria)
		if i := strings.LastIndex(clean, ":"); i >= 0 {
			clean = clean[i+1:]
		}
		name = strings.TrimSpace(clean)
	} else if text != "" {
		name = firstLine(text)
	}
	if name == "" || excludedName(name, teamsExcludedNames) {
		return ""
	}
	return name
}

// Teams signaling frames look like "3:::{json}". A rosterUpdate body is
// base64 over gzip over JSON.
type teamsRosterFrame struct {
	URL  string `json:"url"`
	Body string `json:"body"`
}

type teamsRosterBody struct {
	Participants map[string]teamsRosterParticipant `json:"participants"`
}

type teamsRosterParticipant struct {
	Details struct {
		DisplayName string `json:"displayName"`
	} `json:"details"`
	Endpoints map[string]teamsRosterEndpoint `json:"endpoints"`
}

type teamsRosterEndpoint struct {
	Call  teamsRosterLocation `json:"call"`
	Lobby teamsRosterLocation `json:"lobby"`
}

type teamsRosterLocation struct {
	MediaStreams []teamsRosterStream `json:"mediaStreams"`
}

type teamsRosterStream struct {
	Type            string `json:"type"`
	IsActiveSpeaker bool   `json:"isActiveSpeaker"`
	IsSpeaking      bool   `json:"isSpeaking"`
	Speaking        bool   `json:"speaking"`
	ServerMuted     *bool  `json:"serverMuted"`
}

// decodeRosterSpeakers extracts active speaker names from buffered
// signaling frames. Undecodable frames are skipped; the buffer always
// mixes roster updates with unrelated traffic.
func decodeRosterSpeakers(frames []string) []string {
	var speakers []string
	for _, frame := range frames {
		_, payload, ok := strings.Cut(frame, ":::")
		if !ok {
			continue
		}
		var f teamsRosterFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			continue
		}
		if !strings.Contains(f.URL, "/rosterUpdate/") || f.Body == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(f.Body)
		if err != nil {
			continue
		}
		zr, err := gzip.NewReader(bytes.NewReader(decoded))
		if err != nil {
			continue
		}
		text, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			continue
		}
		var body teamsRosterBody
		if err := json.Unmarshal(text, &body); err != nil {
			continue
		}
		for _, p := range body.Participants {
			if p.Details.DisplayName == "" {
				continue
			}
			if rosterParticipantSpeaking(p) {
				appendUnique(&speakers, p.Details.DisplayName)
			}
		}
	}
	sort.Strings(speakers)
	return speakers
}

func rosterParticipantSpeaking(p teamsRosterParticipant) bool {
	for _, ep := range p.Endpoints {
		for _, loc := range []teamsRosterLocation{ep.Call, ep.Lobby} {
			for _, st := range loc.MediaStreams {
				if st.Type != "audio" {
					continue
				}
				if st.IsActiveSpeaker || st.IsSpeaking || st.Speaking {
					return true
				}
				// An unmuted mic with no explicit speaking flag still
				// counts; the flags only show up on some tenants.
				if st.ServerMuted != nil && !*st.ServerMuted {
					return true
				}
			}
		}
	}
	return false
}

// teamsDOMScan is one pass over the meeting DOM: the video grid, global
// speaking markers, React fiber props and the roster list.
type teamsDOMScan struct {
	Grid   []teamsGridTile `json:"grid"`
	Global []teamsTextHit  `json:"global"`
	List   []teamsListRow  `json:"list"`
	Fiber  []string        `json:"fiber"`
}

type teamsGridTile struct {
	Name          string `json:"name"`
	StyleSpeaking bool   `json:"styleSpeaking"`
	Unmuted       bool   `json:"unmuted"`
}

type teamsTextHit struct {
	Text string `json:"text"`
	Aria string `json:"aria"`
}

type teamsListRow struct {
	Text         string `json:"text"`
	Aria         string `json:"aria"`
	SpeakingAttr bool   `json:"speakingAttr"`
	ActiveID     bool   `json:"activeId"`
	Unmuted      bool   `json:"unmuted"`
}

// teamsSpeakers classifies a DOM scan into speakers and roster. Unmuted
// mic icons are a last resort used only when nothing stronger fired.
func teamsSpeakers(scan teamsDOMScan) (speakers, roster []string) {
	var unmutedOnly []string

	for _, tile := range scan.Grid {
		name := cleanTeamsName(tile.Name, "")
		if name == "" {
			continue
		}
		appendUnique(&roster, name)
		switch {
		case tile.StyleSpeaking:
			appendUnique(&speakers, name)
		case tile.Unmuted:
			appendUnique(&unmutedOnly, name)
		}
	}
	for _, hit := range scan.Global {
		name := cleanTeamsName(hit.Text, "")
		if name == "" {
			name = cleanTeamsName("", hit.Aria)
		}
		if name != "" {
			appendUnique(&speakers, name)
			appendUnique(&roster, name)
		}
	}
	for _, raw := range scan.Fiber {
		if name := cleanTeamsName(raw, ""); name != "" {
			appendUnique(&speakers, name)
			appendUnique(&roster, name)
		}
	}
	for _, row := range scan.List {
		// The name sits on the row's first text line; the aria-label mixes
		// it with mute state, so it only serves as the fallback.
		name := cleanTeamsName(row.Text, "")
		if name == "" {
			name = cleanTeamsName("", row.Aria)
		}
		if name == "" {
			continue
		}
		appendUnique(&roster, name)
		aria := strings.ToLower(row.Aria)
		muted := strings.Contains(aria, "muted") && !strings.Contains(aria, "unmuted")
		switch {
		case row.SpeakingAttr || row.ActiveID:
			appendUnique(&speakers, name)
		case muted:
		case strings.Contains(aria, "konuşuyor") || strings.Contains(aria, "speaking"):
			appendUnique(&speakers, name)
		case row.Unmuted:
			appendUnique(&unmutedOnly, name)
		}
	}

	if len(speakers) == 0 {
		speakers = unmutedOnly
	}
	return speakers, roster
}

// teamsDOMScanJS collects the raw signals teamsSpeakers classifies. Mic
// icon paths containing the "15 15" slash segment are the muted variant.
const teamsDOMScanJS = `(function() {
	const out = { grid: [], global: [], list: [], fiber: [] };

	for (const el of document.querySelectorAll('div[data-tid][data-stream-type]')) {
		const style = el.getAttribute('style') || '';
		let unmuted = false;
		for (const path of el.querySelectorAll('.ui-icon svg path')) {
			const d = path.getAttribute('d') || '';
			if (d.includes('15 15') || d.includes('16 16') || d.includes('l15 15')) continue;
			if ((path.getAttribute('class') || '').includes('ui-icon__filled')) { unmuted = true; break; }
		}
		out.grid.push({
			name: el.getAttribute('data-tid') || '',
			styleSpeaking: style.includes('outline') || style.includes('box-shadow') || style.includes('border'),
			unmuted: unmuted
		});
	}

	for (const el of document.querySelectorAll("[data-is-speaking='true'], [data-active-speaker-id]")) {
		out.global.push({ text: el.innerText || '', aria: el.getAttribute('aria-label') || '' });
	}
	for (const el of document.querySelectorAll("div[style*='outline'], div[style*='box-shadow']")) {
		const style = el.getAttribute('style') || '';
		if (!style.includes('rgb')) continue;
		let text = el.innerText || '';
		if (!text) {
			const img = el.querySelector('img');
			if (img) text = img.getAttribute('alt') || img.getAttribute('title') || '';
		}
		out.global.push({ text: text, aria: el.getAttribute('aria-label') || '' });
	}

	try {
		for (const root of document.querySelectorAll("div.video-container, div[data-tid='video-tile']")) {
			const key = Object.keys(root).find(k => k.startsWith('__reactFiber'));
			if (!key) continue;
			const fiber = root[key];
			const props = fiber.memoizedProps || fiber.pendingProps;
			if (props && (props.activeSpeaker || props.isSpeaking || props.speaking)) {
				const name = props.displayName || props.name || root.innerText || '';
				if (name) out.fiber.push(String(name));
			}
		}
	} catch (e) {}

	const lists = document.querySelectorAll("ul[role='list'], div[role='list']");
	if (lists.length) {
		const list = lists[lists.length - 1];
		for (const li of list.querySelectorAll("li[role='listitem'], div[role='listitem']")) {
			let muteSlash = false;
			const paths = li.querySelectorAll('svg path');
			for (const path of paths) {
				const d = path.getAttribute('d') || '';
				if (d.includes('15 15') || d.includes('15-15')) { muteSlash = true; break; }
			}
			out.list.push({
				text: li.innerText || '',
				aria: li.getAttribute('aria-label') || '',
				speakingAttr: li.getAttribute('data-is-speaking') === 'true',
				activeId: !!li.getAttribute('data-active-speaker-id'),
				unmuted: paths.length > 0 && !muteSlash
			});
		}
	}
	return out;
})()`

// teamsCameraToggleJS finds the camera switch, reads its state and turns
// it off. The switch has no stable selector; the background-filters label
// anchors the fallback because it always sits right after the switch.
// first gates the blind click for unlabeled toggles to one attempt.
const teamsCameraToggleJS = `(function(first) {
	const sels = [
		"[role='switch'][aria-label*='amera']",
		"[role='switch'][aria-label*='ideo']",
		"[aria-label*='amera'][role='button']",
		"button[title*='amera']",
		"button[title*='ideo']"
	];
	let toggle = null;
	for (const sel of sels) {
		try {
			const el = document.querySelector(sel);
			if (el) { toggle = el; break; }
		} catch (e) {}
	}
	if (!toggle) {
		const anchor = Array.from(document.querySelectorAll('*')).find(el =>
			el.childElementCount === 0 &&
			((el.textContent || '').includes('Arka plan filtreleri') || (el.textContent || '').includes('Background filters')));
		if (anchor) {
			for (const sw of document.querySelectorAll("[role='switch']")) {
				if (anchor.compareDocumentPosition(sw) & Node.DOCUMENT_POSITION_PRECEDING) toggle = sw;
			}
		}
	}
	if (!toggle) toggle = document.querySelector(".ui-icon__filled[data-icon='Video']");
	if (!toggle) return 'missing';

	const pressed = toggle.getAttribute('aria-pressed');
	const checked = toggle.getAttribute('aria-checked');
	const title = (toggle.getAttribute('title') || '').toLowerCase();
	if (pressed === null && checked === null && !title) {
		if (first) { toggle.click(); return 'unknown'; }
		return 'unknown-skip';
	}
	const on = pressed === 'true' || checked === 'true' || title.includes('kapat') || title.includes('turn off');
	if (on) { toggle.click(); return 'turned-off'; }
	return 'off';
})(%t)`

const teamsJoinVisibleJS = `(function() {
	const xp = "//button[@data-tid='prejoin-join-button' or contains(., 'Şimdi katıl') or contains(., 'Join now') or contains(., 'Katıl') or contains(., 'Join')]";
	const hit = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	return !!(hit && hit.offsetParent !== null);
})()`

const teamsSpeakerRowJS = `(function() {
	const els = Array.from(document.querySelectorAll('*')).filter(el => {
		if (el.childElementCount > 0) return false;
		const t = (el.textContent || '').trim();
		return (t.includes('Hoparlör') || t.includes('Speaker')) && el.offsetParent !== null;
	});
	if (!els.length) return 'missing';
	const el = els[els.length - 1];
	const row = el.closest('div') || el;
	if ((row.textContent || '').includes('CABLE Input')) return 'done';
	el.click();
	return 'opened';
})()`

const teamsCableOptionJS = `(function() {
	for (const li of document.querySelectorAll("li[role='option'], div[role='option']")) {
		if ((li.textContent || '').includes('CABLE Input') && li.offsetParent !== null) {
			li.click();
			return true;
		}
	}
	return false;
})()`

const teamsChatToggleJS = `(function() {
	const sels = ["button[aria-label='Sohbet']", "button[aria-label='Chat']", "button[data-tid='chat-button']"];
	let btn = null;
	for (const sel of sels) {
		const el = document.querySelector(sel);
		if (el && el.offsetParent !== null) { btn = el; break; }
	}
	if (!btn) {
		for (const el of document.querySelectorAll('button')) {
			const t = (el.textContent || '').trim();
			if ((t === 'Sohbet' || t === 'Chat') && el.offsetParent !== null) { btn = el; break; }
		}
	}
	if (!btn) return 'missing';
	if (btn.getAttribute('aria-pressed') === 'true') return 'open';
	btn.click();
	return 'clicked';
})()`

const teamsCloseChatJS = `(function() {
	const sels = ["button[aria-label='Sohbet']", "button[aria-label='Chat']", "button[data-tid='chat-button']"];
	for (const sel of sels) {
		const el = document.querySelector(sel);
		if (el && el.getAttribute('aria-pressed') === 'true') { el.click(); return true; }
	}
	return false;
})()`

const teamsChatEditorJS = `(function() {
	const els = document.querySelectorAll("div[role='textbox'], div[contenteditable='true'], textarea[data-tid='ckeditor-new-message']");
	if (!els.length) return false;
	const el = els[els.length - 1];
	el.focus();
	el.click();
	return true;
})()`

const teamsSendButtonJS = `(function() {
	const els = document.querySelectorAll("button[aria-label='Gönder'], button[aria-label='Send'], button[data-tid='newMessage-send-button']");
	for (let i = els.length - 1; i >= 0; i--) {
		if (els[i].offsetParent !== null) { els[i].click(); return true; }
	}
	return false;
})()`

const teamsPeopleToggleJS = `(function() {
	const sels = ["button[aria-label='Kişiler']", "button[aria-label='People']", "button[aria-label='Katılımcılar']", "button[data-tid='participants-button']"];
	let btn = null;
	for (const sel of sels) {
		const el = document.querySelector(sel);
		if (el && el.offsetParent !== null) { btn = el; break; }
	}
	if (!btn) {
		for (const el of document.querySelectorAll('button')) {
			const t = (el.textContent || '').trim();
			if ((t === 'Kişiler' || t === 'People' || t === 'Katılımcılar') && el.offsetParent !== null) { btn = el; break; }
		}
	}
	if (!btn) return 'missing';
	if (btn.getAttribute('aria-pressed') === 'true') return 'open';
	btn.click();
	return 'clicked';
})()`

const teamsListCountJS = `(function() {
	const lists = document.querySelectorAll("ul[role='list']");
	if (!lists.length) return -1;
	return lists[lists.length - 1].querySelectorAll("li[role='listitem']").length;
})()`

const teamsWSFramesJS = `(window._wsSpeakerData || []).slice(-50).map(m => m.data)`

type teamsClient struct {
	opts Options
	log  zerolog.Logger
	s    *session

	participants []string
	alone        aloneTracker
	controls     controlTracker
}

func newTeamsClient(opts Options) *teamsClient {
	return &teamsClient{
		opts:  opts,
		log:   opts.Log.With().Str("platform", "teams").Logger(),
		alone: aloneTracker{timeout: teamsAloneTimeout},
	}
}

func (c *teamsClient) Join(ctx context.Context) error {
	s, err := newSession(c.opts, 1280, 800, c.log)
	if err != nil {
		return err
	}
	c.s = s
	if err := s.addInitScript(teamsInitScript); err != nil {
		c.log.Debug().Err(err).Msg("init script install failed")
	}
	if err := s.denyDownloads(); err != nil {
		c.log.Debug().Err(err).Msg("download deny failed")
	}
	if err := s.grantMediaPermissions(originOf(c.opts.URL)); err != nil {
		c.log.Debug().Err(err).Msg("media permission grant failed")
	}

	c.log.Info().Str("url", c.opts.URL).Msg("opening meeting page")
	if err := s.navigate(c.opts.URL, teamsNavTimeout); err != nil {
		return fmt.Errorf("open teams page: %w", err)
	}
	time.Sleep(3 * time.Second)
	s.press(kb.Escape)

	if s.click(teamsJoinOnWebButton, 5*time.Second) || s.clickXPath(teamsJoinOnWebXPath, 5*time.Second) {
		c.log.Info().Msg("continue-on-browser clicked")
		time.Sleep(5 * time.Second)
	}

	if s.fill(teamsNameInput, c.opts.BotName, 10*time.Second) {
		c.log.Info().Str("name", c.opts.BotName).Msg("display name entered")
		s.press(kb.Enter)
		time.Sleep(time.Second)
	} else {
		c.log.Debug().Msg("name input not present")
	}

	if s.clickXPath(teamsComputerAudio, 3*time.Second) {
		c.log.Info().Msg("computer audio selected")
	}
	c.selectCableSpeaker()
	c.turnCameraOff()
	c.muteMicrophone()
	s.press(kb.PageDown)

	if err := c.submitJoin(); err != nil {
		return err
	}
	return c.verifyJoined(ctx)
}

// selectCableSpeaker points the speaker device at the virtual cable. Three
// passes because the device row only renders after the audio section
// expands.
func (c *teamsClient) selectCableSpeaker() {
	for attempt := 0; attempt < 3; attempt++ {
		var state string
		if err := c.s.eval(teamsSpeakerRowJS, &state, 8*time.Second); err != nil {
			time.Sleep(time.Second)
			continue
		}
		switch state {
		case "done":
			c.log.Info().Msg("virtual cable already selected")
			return
		case "opened":
			time.Sleep(time.Second)
			var picked bool
			_ = c.s.eval(teamsCableOptionJS, &picked, 5*time.Second)
			c.s.clickAt(0, 0)
			if picked {
				c.log.Info().Msg("virtual cable selected as speaker")
				return
			}
		case "missing":
			c.log.Debug().Int("attempt", attempt+1).Msg("speaker row not found")
		}
		time.Sleep(time.Second)
	}
}

func (c *teamsClient) turnCameraOff() {
	for attempt := 0; attempt < 3; attempt++ {
		var state string
		js := fmt.Sprintf(teamsCameraToggleJS, attempt == 0)
		if err := c.s.eval(js, &state, 8*time.Second); err != nil {
			time.Sleep(time.Second)
			continue
		}
		switch state {
		case "off":
			c.log.Info().Msg("camera already off")
			return
		case "turned-off":
			time.Sleep(time.Second)
			c.log.Info().Msg("camera turned off")
			return
		case "unknown":
			c.log.Debug().Msg("camera toggle state unreadable, clicked once")
		case "missing":
			c.log.Debug().Int("attempt", attempt+1).Msg("camera toggle not found")
		}
		time.Sleep(time.Second)
	}
}

// muteMicrophone uses the keyboard shortcut only. The prejoin mute button
// moves between Teams revisions; Ctrl+Shift+M has been stable for years.
func (c *teamsClient) muteMicrophone() {
	_ = c.s.click("body", 3*time.Second)
	time.Sleep(500 * time.Millisecond)
	c.s.pressCombo("m", input.ModifierCtrl|input.ModifierShift)
	c.log.Info().Msg("microphone muted via shortcut")
	time.Sleep(time.Second)
}

// submitJoin clicks the prejoin join button up to three times; success is
// the button disappearing or a lobby surface appearing.
func (c *teamsClient) submitJoin() error {
	if !c.s.waitVisibleXPath(teamsJoinButtonXPath, 30*time.Second) {
		return errors.New("join button never appeared")
	}
	for attempt := 1; attempt <= 3; attempt++ {
		if !c.s.clickXPath(teamsJoinButtonXPath, 10*time.Second) {
			// Gone already; the click registered.
			return nil
		}
		time.Sleep(5 * time.Second)
		if !c.s.evalBool(teamsJoinVisibleJS, 5*time.Second) {
			return nil
		}
		if c.s.anyVisible(3*time.Second, "button[data-tid='hangup-button']") ||
			c.s.textVisible(3*time.Second, teamsLobbyTexts...) {
			return nil
		}
		c.log.Warn().Int("attempt", attempt).Msg("join button still visible, clicking again")
	}
	return nil
}

// verifyJoined waits for a meeting-shaped surface, then distinguishes the
// lobby from the call and sits out the lobby when needed.
func (c *teamsClient) verifyJoined(ctx context.Context) error {
	c.s.mouseWake()

	surfaceDeadline := time.Now().Add(60 * time.Second)
	for {
		if c.s.anyVisible(3*time.Second, teamsSurfaceIndicators...) ||
			c.s.textVisible(3*time.Second, teamsLobbyTexts...) {
			break
		}
		if time.Now().After(surfaceDeadline) {
			return errors.New("no meeting surface after join click")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if !c.s.textVisible(5*time.Second, teamsLobbyTexts...) {
		c.log.Info().Msg("joined the meeting")
		return nil
	}

	c.log.Info().Msg("lobby detected, waiting to be let in")
	start := time.Now()
	lastLog := start
	for time.Since(start) < lobbyWaitLimit {
		if c.opts.stopRequested() {
			return ErrStopRequested
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}

		if c.s.anyVisible(3*time.Second, teamsInMeetingIndicators...) {
			c.log.Info().Dur("waited", time.Since(start)).Msg("admitted from the lobby")
			return nil
		}
		if time.Since(lastLog) >= 30*time.Second {
			lastLog = time.Now()
			c.log.Info().Dur("waited", time.Since(start)).Msg("still in the lobby")
		}
	}
	return errors.New("lobby timeout after 600s")
}

// PostJoinSetup is a no-op for Teams: the WebSocket hook installed before
// navigation already feeds the speaker poller.
func (c *teamsClient) PostJoinSetup(ctx context.Context) error {
	return nil
}

func (c *teamsClient) SendChatMessage(ctx context.Context, text string) error {
	c.s.mouseWake()
	var state string
	_ = c.s.eval(teamsChatToggleJS, &state, 15*time.Second)
	if state == "missing" {
		return errors.New("chat button not found")
	}
	if state == "clicked" {
		time.Sleep(2 * time.Second)
	}

	var focused bool
	_ = c.s.eval(teamsChatEditorJS, &focused, 10*time.Second)
	if !focused {
		return errors.New("chat editor not found")
	}
	time.Sleep(500 * time.Millisecond)

	c.s.typeMessage(sanitizeChatMessage(text))
	time.Sleep(500 * time.Millisecond)
	c.s.press(kb.Enter)

	var sent bool
	_ = c.s.eval(teamsSendButtonJS, &sent, 3*time.Second)
	c.log.Info().Msg("chat message sent")

	if state == "clicked" {
		time.Sleep(time.Second)
		var closed bool
		_ = c.s.eval(teamsCloseChatJS, &closed, 5*time.Second)
	}
	return nil
}

// ActiveSpeakers prefers the decoded signaling roster; when the buffer is
// quiet it retries once after a short wait, then falls back to the DOM.
func (c *teamsClient) ActiveSpeakers(ctx context.Context) []string {
	speakers := c.rosterSpeakers()
	if len(speakers) == 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
		speakers = c.rosterSpeakers()
	}
	if len(speakers) > 0 {
		return speakers
	}
	return c.domSpeakers()
}

func (c *teamsClient) rosterSpeakers() []string {
	var frames []string
	if err := c.s.eval(teamsWSFramesJS, &frames, 5*time.Second); err != nil {
		return nil
	}
	speakers := decodeRosterSpeakers(frames)
	if len(speakers) > 0 {
		c.log.Debug().Strs("speakers", speakers).Msg("active speakers from signaling roster")
	}
	return speakers
}

func (c *teamsClient) domSpeakers() []string {
	scan, ok := c.scanDOM()
	if !ok {
		return nil
	}
	speakers, roster := teamsSpeakers(scan)
	if len(roster) > 0 {
		c.participants = roster
	}
	if len(speakers) > 0 {
		c.log.Debug().Strs("speakers", speakers).Msg("active speakers from DOM scan")
	}
	return speakers
}

func (c *teamsClient) scanDOM() (teamsDOMScan, bool) {
	var scan teamsDOMScan
	if err := c.s.eval(teamsDOMScanJS, &scan, 10*time.Second); err != nil {
		return scan, false
	}
	if len(scan.Grid) == 0 && len(scan.List) == 0 {
		c.openParticipantsList()
		if err := c.s.eval(teamsDOMScanJS, &scan, 10*time.Second); err != nil {
			return scan, false
		}
	}
	return scan, true
}

func (c *teamsClient) openParticipantsList() {
	c.s.mouseWake()
	var state string
	_ = c.s.eval(teamsPeopleToggleJS, &state, 8*time.Second)
	if state == "clicked" {
		c.log.Info().Msg("participants list opened")
		time.Sleep(2 * time.Second)
	}
}

func (c *teamsClient) Participants(ctx context.Context, refresh bool) []string {
	if !refresh && len(c.participants) > 0 {
		return c.participants
	}
	scan, ok := c.scanDOM()
	if !ok {
		return c.participants
	}
	_, roster := teamsSpeakers(scan)
	if len(roster) > 0 {
		c.participants = roster
	}
	return c.participants
}

func (c *teamsClient) MeetingEnded(ctx context.Context) (bool, string) {
	if !c.s.alive() {
		return true, EndReasonNormal
	}
	text := strings.ToLower(c.s.pageText(5 * time.Second))
	if phrase, ok := findPhrase(text, lowered(teamsEndTexts)); ok {
		c.log.Info().Str("phrase", phrase).Msg("meeting end text detected")
		return true, EndReasonNormal
	}
	if phrase, ok := findPhrase(text, teamsInvalidPhrases); ok {
		c.log.Warn().Str("phrase", phrase).Msg("invalid meeting detected")
		return true, "Geçersiz Teams toplantısı: " + phrase
	}

	alone := false
	if _, ok := findPhrase(text, lowered(teamsAloneTexts)); ok {
		alone = true
	} else {
		count := -1
		_ = c.s.eval(teamsListCountJS, &count, 5*time.Second)
		alone = count == 1
	}
	if c.alone.observe(alone, c.log) {
		return true, EndReasonNormal
	}

	present := c.s.controlsPresent([]string{
		"button[data-tid='hangup-button']",
		"button[id='hangup-button']",
		"button[aria-label='Leave']",
		"button[aria-label='Ayrıl']",
		"div[data-tid='call-controls']",
	}, nil)
	if c.controls.observe(present) {
		c.log.Info().Msg("meeting controls gone, treating meeting as ended")
		return true, EndReasonNormal
	}
	return false, ""
}

func (c *teamsClient) Close(ctx context.Context) error {
	if c.s != nil {
		c.s.close()
		c.s = nil
	}
	return nil
}

func lowered(phrases []string) []string {
	out := make([]string, len(phrases))
	for i, p := range phrases {
		out[i] = strings.ToLower(p)
	}
	return out
}
