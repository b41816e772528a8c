package meeting

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/platform"
)

// desktopUserAgent avoids the mobile and "unsupported browser" variants
// Teams serves to unfamiliar agents.
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultActionTimeout = 10 * time.Second

// session wraps one Chrome instance driven over the DevTools protocol.
// Waits are bounded; helpers returning bool swallow the timeout because
// callers treat missing UI as "try the next strategy".
type session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	dataDir     string
	log         zerolog.Logger
}

// newSession launches Chrome with a throwaway profile. The profile path
// doubles as the process marker for the kill sweep in close.
//
// mute-audio must be forced off: the default allocator options mute the
// browser, and a muted browser never feeds the virtual capture device the
// recorder listens on.
func newSession(opts Options, width, height int, log zerolog.Logger) (*session, error) {
	dataDir, err := os.MkdirTemp("", "sesly-chrome-")
	if err != nil {
		return nil, fmt.Errorf("create browser profile dir: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dataDir),
		chromedp.UserAgent(desktopUserAgent),
		chromedp.WindowSize(width, height),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
	)
	for _, f := range platform.BrowserFlags() {
		allocOpts = append(allocOpts, chromedp.Flag(f.Name, f.Value))
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &session{ctx: ctx, cancel: cancel, allocCancel: allocCancel, dataDir: dataDir, log: log}
	if err := chromedp.Run(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	log.Info().Str("profile", dataDir).Bool("headless", opts.Headless).Msg("browser started")
	return s, nil
}

// close tears the browser down: tab first, then the allocator, then a
// by-profile-dir sweep for any process the allocator missed.
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.dataDir != "" {
		if n := platform.KillProcessesMatching([]string{s.dataDir}, s.log); n > 0 {
			s.log.Warn().Int("killed", n).Msg("leftover browser processes killed")
		}
		if err := os.RemoveAll(s.dataDir); err != nil {
			s.log.Debug().Err(err).Msg("browser profile cleanup failed")
		}
	}
}

func (s *session) run(timeout time.Duration, acts ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, acts...)
}

func (s *session) navigate(url string, timeout time.Duration) error {
	return s.run(timeout, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *session) location() string {
	var url string
	if err := s.run(defaultActionTimeout, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

// alive reports whether the tab still answers the protocol.
func (s *session) alive() bool {
	var state string
	return s.eval("document.readyState", &state, 5*time.Second) == nil
}

// grantMediaPermissions resolves mic and camera prompts for the meeting
// origin so the pre-join screens never block on a permission dialog.
func (s *session) grantMediaPermissions(origin string) error {
	return s.run(defaultActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return browser.GrantPermissions([]browser.PermissionType{
			browser.PermissionTypeAudioCapture,
			browser.PermissionTypeVideoCapture,
		}).WithOrigin(origin).Do(ctx)
	}))
}

// denyDownloads blocks file downloads. Zoom offers its installer on every
// join page.
func (s *session) denyDownloads() error {
	return s.run(defaultActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDeny).Do(ctx)
	}))
}

// addInitScript registers src to run in every new document before page
// scripts, which is how the WebSocket and RTCPeerConnection hooks get in
// ahead of the meeting bundle.
func (s *session) addInitScript(src string) error {
	return s.run(defaultActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
		return err
	}))
}

// waitVisible reports whether an element matching sel became visible in
// time.
func (s *session) waitVisible(sel string, timeout time.Duration) bool {
	return s.run(timeout, chromedp.WaitVisible(sel, chromedp.ByQuery)) == nil
}

func (s *session) waitVisibleXPath(xp string, timeout time.Duration) bool {
	return s.run(timeout, chromedp.WaitVisible(xp, chromedp.BySearch)) == nil
}

// click waits for sel to be visible and clicks the first match.
func (s *session) click(sel string, timeout time.Duration) bool {
	return s.run(timeout, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)) == nil
}

func (s *session) clickXPath(xp string, timeout time.Duration) bool {
	return s.run(timeout, chromedp.Click(xp, chromedp.BySearch, chromedp.NodeVisible)) == nil
}

// fill clicks sel and types value into it. Values are sent as key events;
// the meeting front-ends ignore programmatic value writes.
func (s *session) fill(sel, value string, timeout time.Duration) bool {
	return s.run(timeout,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	) == nil
}

func (s *session) fillXPath(xp, value string, timeout time.Duration) bool {
	return s.run(timeout,
		chromedp.WaitVisible(xp, chromedp.BySearch),
		chromedp.Click(xp, chromedp.BySearch),
		chromedp.Clear(xp, chromedp.BySearch),
		chromedp.SendKeys(xp, value, chromedp.BySearch),
	) == nil
}

// eval runs js in the page. out may be nil when the result is unused.
func (s *session) eval(js string, out any, timeout time.Duration) error {
	return s.run(timeout, chromedp.Evaluate(js, out))
}

func (s *session) evalBool(js string, timeout time.Duration) bool {
	var ok bool
	if err := s.eval(js, &ok, timeout); err != nil {
		return false
	}
	return ok
}

// pageText returns document.body.innerText. Only rendered text comes back,
// so button aria-labels and hidden banners do not leak into phrase
// matching.
func (s *session) pageText(timeout time.Duration) string {
	var text string
	if err := s.eval("document.body ? document.body.innerText : ''", &text, timeout); err != nil {
		return ""
	}
	return text
}

// textVisible reports whether any phrase is currently rendered on the
// page. Matching is case-insensitive.
func (s *session) textVisible(timeout time.Duration, phrases ...string) bool {
	text := strings.ToLower(s.pageText(timeout))
	for _, p := range phrases {
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// anyVisible reports whether at least one selector matches a visible
// element right now.
func (s *session) anyVisible(timeout time.Duration, sels ...string) bool {
	js := fmt.Sprintf(`(function(sels) {
		for (const sel of sels) {
			try {
				for (const el of document.querySelectorAll(sel)) {
					if (el.offsetParent !== null) return true;
				}
			} catch (e) {}
		}
		return false;
	})(%s)`, jsArgs(sels))
	return s.evalBool(js, timeout)
}

// controlsPresent reports whether any selector matches an attached element
// or any <i> glyph carries one of the icon names. Presence, not
// visibility: meeting toolbars fade out on idle but stay in the DOM, and a
// faded toolbar still means the call is alive.
func (s *session) controlsPresent(sels, icons []string) bool {
	js := fmt.Sprintf(`(function(sels, icons) {
		for (const sel of sels) {
			try {
				if (document.querySelector(sel)) return true;
			} catch (e) {}
		}
		for (const i of document.querySelectorAll('i')) {
			if (icons.includes((i.textContent || '').trim())) return true;
		}
		return false;
	})(%s, %s)`, jsArgs(sels), jsArgs(icons))
	return s.evalBool(js, defaultActionTimeout)
}

func (s *session) press(key string) {
	_ = s.run(defaultActionTimeout, chromedp.KeyEvent(key))
}

// pressCombo sends one character with modifier keys held.
func (s *session) pressCombo(key string, mods input.Modifier) {
	_ = s.run(defaultActionTimeout, chromedp.KeyEvent(key, chromedp.KeyModifiers(mods)))
}

// typeText types through synthetic key events one rune at a time, paced
// like a human typist.
func (s *session) typeText(text string, perKey time.Duration) {
	for _, r := range text {
		_ = s.run(defaultActionTimeout, chromedp.KeyEvent(string(r)))
		time.Sleep(perKey)
	}
}

// typeMessage writes text into the currently focused editor. On Linux the
// X11 tools type through the system keyboard, which rich-text editors
// accept as trusted input; synthetic key events are the portable fallback.
func (s *session) typeMessage(text string) {
	if runtime.GOOS == "linux" {
		if _, err := exec.LookPath("xdotool"); err == nil {
			s.pressCombo("a", input.ModifierCtrl)
			cmd := exec.Command("xdotool", "type", "--clearmodifiers", "--delay", "50", text)
			if err := cmd.Run(); err == nil {
				s.log.Debug().Msg("message typed via xdotool")
				return
			}
			s.log.Warn().Msg("xdotool typing failed, trying clipboard")
		}
		if _, err := exec.LookPath("xclip"); err == nil {
			cmd := exec.Command("xclip", "-selection", "clipboard")
			cmd.Stdin = strings.NewReader(text)
			if err := cmd.Run(); err == nil {
				time.Sleep(300 * time.Millisecond)
				s.pressCombo("a", input.ModifierCtrl)
				s.pressCombo("v", input.ModifierCtrl)
				s.log.Debug().Msg("message pasted via xclip")
				return
			}
			s.log.Warn().Msg("clipboard write failed, typing key events")
		}
	}
	s.typeText(text, 50*time.Millisecond)
}

// mouseWake nudges the pointer so auto-hidden toolbars reappear.
func (s *session) mouseWake() {
	_ = s.run(defaultActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, 500, 500).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseMoved, 100, 100).Do(ctx)
	}))
}

func (s *session) clickAt(x, y float64) {
	_ = s.run(defaultActionTimeout, chromedp.MouseClickXY(x, y))
}

func (s *session) scrollTop() {
	_ = s.eval("window.scrollTo(0, 0)", nil, 5*time.Second)
}
