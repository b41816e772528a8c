package meeting

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"
)

const (
	zoomNavTimeout   = 60 * time.Second
	zoomAloneTimeout = 300 * time.Second
)

// Pre-join selectors. The web client serves English or Turkish depending
// on the account region, so every lookup carries both.
const (
	zoomNameInput     = "input[id='inputname'], input[name='inputname'], input[id='input-name'], input[type='text']"
	zoomPasscodeInput = "input[id='inputpasscode'], input[name='inputpasscode'], input[id='input-passcode'], input[type='password']"

	zoomBrowserLink     = `//a[contains(., 'Join from Your Browser') or contains(., 'Tarayıcınızdan Katılın') or contains(., 'tarayıcıdan katıl')]`
	zoomLaunchButton    = `//div[@role='button'][contains(., 'Launch Meeting') or contains(., 'Zoom Meetings adlı uygulamayı başlat') or contains(., 'Toplantıyı Başlat')]`
	zoomJoinButton      = `//button[contains(., 'Join') or contains(., 'Katıl') or contains(@class, 'preview-join-button')]`
	zoomAgreeButton     = `//button[contains(., 'I Agree') or contains(., 'Kabul Ediyorum')]`
	zoomJoinAudioButton = `//button[contains(., 'Join Audio by Computer') or contains(., 'Bilgisayarın Sesiyle Katıl')]`
)

var zoomAudioDropdownSelectors = []string{
	"button[class*='arrowDown']",
	"button[class*='arrow-down']",
	"button[aria-label*='Select a microphone']",
	"button[aria-label*='Select a speaker']",
	"button[aria-label*='audio settings']",
}

var zoomAudioDropdownXPaths = []string{
	`//button[contains(@class, 'audio')]//following-sibling::button`,
	`//button[contains(@aria-label, 'audio')]`,
}

var zoomVideoOffSelectors = []string{
	"button[aria-label*='Stop Video']",
	"button[aria-label*='Turn off camera']",
	"button[aria-label*='Kamerayı kapat']",
	"button[aria-label*='Video Durdur']",
	"button[aria-label*='Videoyu Durdur']",
	"button[class*='video'][class*='off']",
	"[class*='video'][class*='stop']",
}

// zoomWaitingIndicators mark the waiting room right after the join click.
var zoomWaitingIndicators = []string{
	"host has joined",
	"we've let them know",
	"you're here",
	"waiting for the host",
	"waiting room",
	"please wait",
	"bekle",
	"bekleme odası",
}

// zoomWaitingTexts are the banners that must disappear before admission
// counts.
var zoomWaitingTexts = []string{
	"Host has joined",
	"We've let them know",
	"Waiting for the host",
	"Please wait",
}

var zoomMeetingControls = []string{
	"button[aria-label*='Mute']",
	"button[aria-label*='Chat']",
	"button[aria-label*='Share']",
}

var zoomEndPhrases = []string{
	"the meeting has ended",
	"this meeting has been ended by host",
	"meeting has been ended by host",
	"toplantı sahibi tarafından sonlandırıldı",
	"you have been removed",
	"leave meeting",
}

var zoomInvalidPhrases = []string{
	"this meeting id is not valid",
	"invalid meeting id",
	"meeting does not exist",
	"meeting not found",
	"this meeting link is not valid",
	"the meeting has expired",
	"meeting has already ended",
	"this meeting has not started",
	"please wait for the host to start this meeting",
	"waiting for host to start",
	"this link has expired",
	"geçersiz toplantı",
	"toplantı bulunamadı",
	"toplantı mevcut değil",
	"bu toplantı linki geçersiz",
}

// UI artifacts the panel scraper must never report as people.
var zoomSpeakerExcluded = []string{
	"frame", "pen_spark", "pen_spark_io", "spark_io",
	"sesly bot", "toplantı botu", "meeting bot",
	"localhost", "panel", "bot panel", "sesly asistan",
	"zoom", "katılım isteği", "join request",
}

var zoomRosterExcluded = []string{
	"frame", "pen_spark", "pen_spark_io", "spark_io",
	"sesly bot", "sesly", "toplantı botu", "meeting bot",
	"localhost", "panel", "bot panel", "sesly asistan",
}

var zoomLauncherPath = regexp.MustCompile(`/j/(\d+)`)

// zoomWebURL rewrites a Zoom launcher URL (/j/<id>) to the direct web
// client join page (/wc/<id>/join), skipping the "Open Zoom?" prompt and
// the Launch Meeting interstitial. The domain and query survive so
// vanity subdomains and pwd parameters keep working; anything that is not
// a launcher URL passes through unchanged.
func zoomWebURL(raw string) string {
	m := zoomLauncherPath.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	base, query, _ := strings.Cut(raw, "?")
	domain, _, ok := strings.Cut(base, "/j/")
	if !ok {
		return raw
	}
	out := domain + "/wc/" + m[1] + "/join"
	if query != "" {
		out += "?" + query
	}
	return out
}

// cleanZoomName strips the role suffixes Zoom appends to display names.
func cleanZoomName(s string) string {
	for _, suffix := range []string{"(Me)", "(Host)", "(Co-host)"} {
		s = strings.ReplaceAll(s, suffix, "")
	}
	return strings.TrimSpace(s)
}

// zoomPanelItem is one row scraped from the participants panel.
type zoomPanelItem struct {
	Name         string `json:"name"`
	Aria         string `json:"aria"`
	SpeakingIcon bool   `json:"speakingIcon"`
	UnmutedIcon  bool   `json:"unmutedIcon"`
}

type zoomPanelScan struct {
	Open  bool            `json:"open"`
	Items []zoomPanelItem `json:"items"`
}

// zoomSpeakers classifies panel rows into active speakers and the roster.
// The speaking icon and a talking aria-label are primary signals; rows
// whose only signal is an open microphone count as speakers only when no
// primary signal fired anywhere on the panel.
func zoomSpeakers(items []zoomPanelItem) (speakers, participants []string) {
	var unmutedOnly []string
	for _, it := range items {
		name := it.Name
		aria := strings.ToLower(it.Aria)
		if name == "" && it.Aria != "" {
			name = cleanZoomName(firstField(it.Aria))
		}
		if name == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), "sesly") || strings.Contains(aria, "(me)") {
			continue
		}
		if excludedName(name, zoomSpeakerExcluded) {
			continue
		}
		appendUnique(&participants, name)

		switch {
		case it.SpeakingIcon:
			appendUnique(&speakers, name)
		case strings.Contains(aria, "talking") || strings.Contains(aria, "speaking"):
			appendUnique(&speakers, name)
		case it.UnmutedIcon:
			appendUnique(&unmutedOnly, name)
		}
	}
	if len(speakers) == 0 {
		speakers = unmutedOnly
	}
	return speakers, participants
}

func firstField(aria string) string {
	field, _, _ := strings.Cut(aria, ",")
	return field
}

const zoomPanelScanJS = `(function() {
	const panel = document.querySelector('#participants-ul, .participants-list-container');
	if (!panel) return { open: false, items: [] };
	const items = [];
	for (const item of panel.querySelectorAll('.participants-li')) {
		const nameEl = item.querySelector('.participants-item__display-name');
		items.push({
			name: nameEl ? nameEl.textContent.trim() : '',
			aria: item.getAttribute('aria-label') || '',
			speakingIcon: !!item.querySelector('.participants-icon__voip-speaking-icon'),
			unmutedIcon: !!item.querySelector("svg[class*='audio-unmuted']")
		});
	}
	return { open: true, items: items };
})()`

const zoomOpenPanelJS = `(function() {
	const sels = [
		"button[aria-label='Participants']",
		"button[aria-label*='Participants' i]",
		"button[aria-label*='Katılımcılar' i]",
		"div[role='button'][aria-label*='Participants']"
	];
	for (const sel of sels) {
		try {
			const btn = document.querySelector(sel);
			if (btn) { btn.click(); return true; }
		} catch (e) {}
	}
	return false;
})()`

const zoomOpenChatJS = `(function() {
	const sels = [
		"button[aria-label='Chat']",
		"button[aria-label*='Chat' i]",
		"div[role='button'][aria-label*='Chat']"
	];
	for (const sel of sels) {
		try {
			const btn = document.querySelector(sel);
			if (btn) { btn.click(); return true; }
		} catch (e) {}
	}
	const xp = "//button[contains(translate(@aria-label, 'CHAT', 'chat'), 'chat')]";
	const hit = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	if (hit.singleNodeValue) { hit.singleNodeValue.click(); return true; }
	return false;
})()`

const zoomFocusChatInputJS = `(function() {
	const input = document.querySelector('textarea[placeholder*="message" i]') ||
		document.querySelector('textarea') ||
		document.querySelector('div[contenteditable="true"]');
	if (input) { input.focus(); input.click(); return true; }
	return false;
})()`

const zoomToggleChatJS = `(function() {
	for (const btn of document.querySelectorAll("button[aria-label*='Chat' i]")) {
		if (btn.getAttribute('aria-expanded') === 'true') { btn.click(); return true; }
	}
	return false;
})()`

const zoomPickCableJS = `(function() {
	const exact = ['CABLE Input (VB-Audio Virtual Cable)', 'CABLE Input'];
	const nodes = document.querySelectorAll('li, div, span, a');
	for (const want of exact) {
		for (const el of nodes) {
			if (el.childElementCount === 0 && el.textContent.trim() === want && el.offsetParent !== null) {
				el.click();
				return true;
			}
		}
	}
	for (const el of nodes) {
		if (el.childElementCount === 0 && el.textContent.includes('CABLE Input') && el.offsetParent !== null) {
			el.click();
			return true;
		}
	}
	return false;
})()`

const zoomStopVideoScanJS = `(function() {
	for (const btn of document.querySelectorAll('button')) {
		const aria = (btn.getAttribute('aria-label') || '').toLowerCase();
		if (!aria) continue;
		if ((aria.includes('stop') && aria.includes('video')) ||
			(aria.includes('turn off') && (aria.includes('video') || aria.includes('camera')))) {
			btn.click();
			return true;
		}
	}
	return false;
})()`

var zoomChatCloseSelectors = []string{
	"button[aria-label='Close']",
	"button[aria-label='Close Chat']",
	"button[aria-label='Kapat']",
	"button[aria-label='Sohbeti Kapat']",
	"button.footer-button__chat-icon.is-active",
	"div.chat-header__action button",
}

type zoomClient struct {
	opts Options
	log  zerolog.Logger
	s    *session

	url            string
	participants   []string
	lastPanelCheck time.Time
	alone          aloneTracker
	controls       controlTracker
}

func newZoomClient(opts Options) *zoomClient {
	return &zoomClient{
		opts:  opts,
		log:   opts.Log.With().Str("platform", "zoom").Logger(),
		url:   zoomWebURL(opts.URL),
		alone: aloneTracker{timeout: zoomAloneTimeout},
	}
}

func (c *zoomClient) Join(ctx context.Context) error {
	s, err := newSession(c.opts, 1920, 1080, c.log)
	if err != nil {
		return err
	}
	c.s = s
	if err := s.denyDownloads(); err != nil {
		c.log.Debug().Err(err).Msg("download deny failed")
	}
	if err := s.grantMediaPermissions(originOf(c.url)); err != nil {
		c.log.Debug().Err(err).Msg("media permission grant failed")
	}

	c.log.Info().Str("url", c.url).Msg("opening meeting page")
	if err := s.navigate(c.url, zoomNavTimeout); err != nil {
		return fmt.Errorf("open zoom page: %w", err)
	}
	time.Sleep(time.Second)
	s.scrollTop()
	s.press(kb.Escape)

	// A /wc/ URL usually lands straight on the name form; hunt for the
	// launcher links only when it does not.
	if !s.waitVisible(zoomNameInput, 3*time.Second) {
		if s.clickXPath(zoomBrowserLink, 3*time.Second) {
			c.log.Info().Msg("join-from-browser link clicked")
		} else if s.clickXPath(zoomLaunchButton, 3*time.Second) {
			time.Sleep(2 * time.Second)
			if !s.clickXPath(zoomBrowserLink, 5*time.Second) {
				return errors.New("join from browser link never appeared")
			}
			c.log.Info().Msg("join-from-browser link clicked after launch prompt")
		}
	}

	if c.opts.Passcode != "" {
		if s.fill(zoomPasscodeInput, c.opts.Passcode, 3*time.Second) {
			c.log.Info().Msg("passcode entered")
			_ = s.clickXPath(zoomJoinButton, 2*time.Second)
			time.Sleep(2 * time.Second)
		}
	}

	if !s.fill(zoomNameInput, c.opts.BotName, 30*time.Second) {
		return errors.New("display name input never appeared")
	}
	time.Sleep(time.Second)

	c.configureAudio()
	c.muteAndStopVideo()
	_ = s.clickXPath(zoomAgreeButton, 2*time.Second)

	if err := c.submitJoin(); err != nil {
		return err
	}
	return c.awaitAdmission(ctx)
}

// configureAudio opens the audio device dropdown on the preview screen and
// picks the virtual cable so meeting audio lands on the capture sink.
// Best effort throughout; the system default usually already routes there.
func (c *zoomClient) configureAudio() {
	opened := false
	for _, sel := range zoomAudioDropdownSelectors {
		if c.s.click(sel, 2*time.Second) {
			opened = true
			break
		}
	}
	if !opened {
		for _, xp := range zoomAudioDropdownXPaths {
			if c.s.clickXPath(xp, 2*time.Second) {
				opened = true
				break
			}
		}
	}
	if !opened {
		c.log.Debug().Msg("audio device dropdown not found")
		return
	}
	time.Sleep(time.Second)
	var picked bool
	_ = c.s.eval(zoomPickCableJS, &picked, 5*time.Second)
	if picked {
		c.log.Info().Msg("virtual cable selected as audio device")
		time.Sleep(time.Second)
	} else {
		c.log.Debug().Msg("virtual cable not listed, keeping default device")
	}
}

func (c *zoomClient) muteAndStopVideo() {
	if c.s.click("button[aria-label*='Mute']", 2*time.Second) {
		c.log.Info().Msg("microphone muted")
	}
	for _, sel := range zoomVideoOffSelectors {
		if c.s.click(sel, 1500*time.Millisecond) {
			c.log.Info().Msg("camera turned off")
			return
		}
	}
	var ok bool
	_ = c.s.eval(zoomStopVideoScanJS, &ok, 5*time.Second)
	if ok {
		c.log.Info().Msg("camera turned off")
	}
}

// submitJoin clicks the join button up to three times. Success is the
// button disappearing or a waiting-room or meeting surface showing up.
func (c *zoomClient) submitJoin() error {
	for attempt := 1; attempt <= 3; attempt++ {
		if !c.s.clickXPath(zoomJoinButton, 15*time.Second) {
			if attempt == 1 {
				return errors.New("join button not found")
			}
			return nil
		}
		time.Sleep(3 * time.Second)
		if c.s.anyVisible(5*time.Second, "div[class*='footer']", "button[aria-label*='Audio']") ||
			c.s.textVisible(5*time.Second, zoomWaitingIndicators...) {
			return nil
		}
		c.log.Warn().Int("attempt", attempt).Msg("no post-join surface yet, clicking join again")
	}
	return nil
}

// awaitAdmission handles the waiting room. Without one, the meeting
// toolbar has to show up within ten seconds.
func (c *zoomClient) awaitAdmission(ctx context.Context) error {
	time.Sleep(3 * time.Second)
	if !c.s.textVisible(5*time.Second, zoomWaitingIndicators...) {
		if !c.s.waitVisible("div[class*='footer'], button[aria-label*='Audio']", 10*time.Second) {
			return errors.New("meeting toolbar never appeared")
		}
		c.log.Info().Msg("joined the meeting")
		return nil
	}

	c.log.Info().Msg("waiting room detected, waiting for the host")
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

		if !c.s.textVisible(3*time.Second, zoomWaitingTexts...) &&
			c.s.anyVisible(3*time.Second, zoomMeetingControls...) {
			c.log.Info().Dur("waited", time.Since(start)).Msg("admitted from the waiting room")
			return nil
		}
		if time.Since(lastLog) >= 30*time.Second {
			lastLog = time.Now()
			c.log.Info().Dur("waited", time.Since(start)).Msg("still in the waiting room")
		}
	}
	return errors.New("waiting room timeout after 600s")
}

// PostJoinSetup connects computer audio and opens the participants panel
// the speaker scan reads from.
func (c *zoomClient) PostJoinSetup(ctx context.Context) error {
	time.Sleep(500 * time.Millisecond)
	if c.s.clickXPath(zoomJoinAudioButton, 5*time.Second) {
		c.log.Info().Msg("computer audio connected")
	}
	c.openParticipantsPanel()
	return nil
}

func (c *zoomClient) openParticipantsPanel() {
	var clicked bool
	_ = c.s.eval(zoomOpenPanelJS, &clicked, 5*time.Second)
	if !clicked {
		_ = c.s.click("button[aria-label*='Participants']", 3*time.Second)
	}
}

func (c *zoomClient) SendChatMessage(ctx context.Context, text string) error {
	var opened bool
	_ = c.s.eval(zoomOpenChatJS, &opened, 5*time.Second)
	if !opened && !c.s.click("button[aria-label='Chat']", 3*time.Second) {
		return errors.New("chat button not found")
	}
	time.Sleep(2 * time.Second)

	var focused bool
	_ = c.s.eval(zoomFocusChatInputJS, &focused, 5*time.Second)
	if !focused {
		return errors.New("chat input not found")
	}
	time.Sleep(500 * time.Millisecond)

	c.s.typeMessage(sanitizeChatMessage(text))
	time.Sleep(500 * time.Millisecond)
	c.s.press(kb.Enter)
	c.log.Info().Msg("chat message sent")
	time.Sleep(time.Second)
	c.closeChatPanel()
	return nil
}

// closeChatPanel keeps the participants panel in view: the close button
// first, then toggling the toolbar button, then Escape.
func (c *zoomClient) closeChatPanel() {
	for _, sel := range zoomChatCloseSelectors {
		if c.s.click(sel, 800*time.Millisecond) {
			time.Sleep(time.Second)
			return
		}
	}
	var toggled bool
	_ = c.s.eval(zoomToggleChatJS, &toggled, 5*time.Second)
	if toggled {
		return
	}
	c.s.press(kb.Escape)
}

func (c *zoomClient) scanPanel() (zoomPanelScan, bool) {
	var scan zoomPanelScan
	if err := c.s.eval(zoomPanelScanJS, &scan, 5*time.Second); err != nil {
		return scan, false
	}
	return scan, true
}

func (c *zoomClient) ActiveSpeakers(ctx context.Context) []string {
	scan, ok := c.scanPanel()
	if !ok {
		return nil
	}
	if !scan.Open {
		// Panel drifted closed; reopen at most every 3s.
		if time.Since(c.lastPanelCheck) < 3*time.Second {
			return nil
		}
		c.lastPanelCheck = time.Now()
		c.openParticipantsPanel()
		time.Sleep(500 * time.Millisecond)
		if scan, ok = c.scanPanel(); !ok || !scan.Open {
			return nil
		}
		c.log.Info().Msg("participants panel reopened")
	}

	speakers, participants := zoomSpeakers(scan.Items)
	if len(participants) > 0 {
		c.participants = participants
	}
	return speakers
}

func (c *zoomClient) Participants(ctx context.Context, refresh bool) []string {
	if !refresh && len(c.participants) > 0 {
		return c.participants
	}
	scan, ok := c.scanPanel()
	if !ok || !scan.Open {
		return c.participants
	}
	var roster []string
	for _, it := range scan.Items {
		name := it.Name
		if name == "" && it.Aria != "" {
			name = cleanZoomName(firstField(it.Aria))
		}
		if name == "" || excludedName(name, zoomRosterExcluded) {
			continue
		}
		appendUnique(&roster, name)
	}
	if len(roster) > 0 {
		c.participants = roster
	}
	return c.participants
}

func (c *zoomClient) MeetingEnded(ctx context.Context) (bool, string) {
	if !c.s.alive() {
		return true, EndReasonNormal
	}
	if loc := c.s.location(); strings.Contains(loc, "postattendee") || strings.Contains(loc, "ended") {
		c.log.Info().Str("url", loc).Msg("post-meeting redirect detected")
		return true, EndReasonNormal
	}

	text := strings.ToLower(c.s.pageText(5 * time.Second))
	if phrase, ok := findPhrase(text, zoomEndPhrases); ok {
		c.log.Info().Str("phrase", phrase).Msg("meeting end text detected")
		return true, EndReasonNormal
	}
	if phrase, ok := findPhrase(text, zoomInvalidPhrases); ok {
		c.log.Warn().Str("phrase", phrase).Msg("invalid meeting link detected")
		return true, "Geçersiz toplantı linki: " + phrase
	}

	if scan, ok := c.scanPanel(); ok && scan.Open {
		if c.alone.observe(len(scan.Items) == 1, c.log) {
			return true, EndReasonNormal
		}
	}
	present := c.s.controlsPresent([]string{
		"button[aria-label*='Leave']",
		"button[aria-label*='Ayrıl']",
		"div[class*='footer']",
	}, nil)
	if c.controls.observe(present) {
		c.log.Info().Msg("meeting controls gone, treating meeting as ended")
		return true, EndReasonNormal
	}
	return false, ""
}

func (c *zoomClient) Close(ctx context.Context) error {
	if c.s != nil {
		c.s.close()
		c.s = nil
	}
	return nil
}
