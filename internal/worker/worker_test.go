package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/meeting"
)

// fakeClient scripts a meeting session: speaker sets served in order, an end
// condition after a fixed number of checks.
type fakeClient struct {
	joinErr      error
	participants []string
	speakerSets  [][]string
	speakerIdx   int
	endAfter     int
	endReason    string
	endChecks    int
	chat         []string
	closed       bool
}

func (f *fakeClient) Join(context.Context) error          { return f.joinErr }
func (f *fakeClient) PostJoinSetup(context.Context) error { return nil }
func (f *fakeClient) SendChatMessage(_ context.Context, text string) error {
	f.chat = append(f.chat, text)
	return nil
}

func (f *fakeClient) ActiveSpeakers(context.Context) []string {
	if f.speakerIdx >= len(f.speakerSets) {
		return nil
	}
	s := f.speakerSets[f.speakerIdx]
	f.speakerIdx++
	return s
}

func (f *fakeClient) Participants(context.Context, bool) []string { return f.participants }

func (f *fakeClient) MeetingEnded(context.Context) (bool, string) {
	f.endChecks++
	if f.endAfter > 0 && f.endChecks >= f.endAfter {
		return true, f.endReason
	}
	return false, ""
}

func (f *fakeClient) Close(context.Context) error {
	f.closed = true
	return nil
}

// fakeProcess pretends to be a recorder subprocess that exits as soon as the
// stop signal would reach it.
type fakeProcess struct {
	exited bool
	killed bool
}

func (p *fakeProcess) Wait(time.Duration) bool { return p.exited }
func (p *fakeProcess) Kill()                   { p.killed = true }

type harness struct {
	worker   *Worker
	store    *ipc.Store
	client   *fakeClient
	rec      *fakeProcess
	reports  int
	recErr   error
	recCalls int
}

func newHarness(t *testing.T, client *fakeClient) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{WorkDir: dir, LogDir: "logs", BotName: "Sesly Bot"}
	store := ipc.NewStore(dir, zerolog.Nop())
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	h := &harness{store: store, client: client, rec: &fakeProcess{exited: true}}
	w := New(cfg, store, zerolog.Nop())
	w.poll = time.Millisecond
	w.recorderWait = 10 * time.Millisecond
	w.newClient = func(string, meeting.Options) (meeting.Client, error) { return client, nil }
	w.startRecorder = func(string) (subprocess, error) {
		h.recCalls++
		if h.recErr != nil {
			return nil, h.recErr
		}
		// Pretend the recorder stays alive through the startup grace.
		return &recorderStub{proc: h.rec}, nil
	}
	w.runReport = func(context.Context) error {
		h.reports++
		return nil
	}
	h.worker = w
	return h
}

// recorderStub survives the startup grace but exits on the stop wait.
type recorderStub struct {
	proc  *fakeProcess
	waits int
}

func (s *recorderStub) Wait(d time.Duration) bool {
	s.waits++
	if s.waits == 1 {
		return false // startup grace: still running
	}
	return s.proc.Wait(d)
}

func (s *recorderStub) Kill() { s.proc.Kill() }

func testJob(platformName string) ipc.Job {
	return ipc.Job{
		Active:         true,
		Platform:       platformName,
		MeetingURL:     "https://meet.google.com/abc-defg-hij",
		BotDisplayName: "Sesly Bot",
		CreatedAt:      time.Now(),
	}
}

func TestRunNormalMeeting(t *testing.T) {
	client := &fakeClient{
		participants: []string{"Ali Can", "Ayşe Demir"},
		speakerSets:  [][]string{{"Ali Can"}, {"Ali Can"}, {"Ayşe Demir"}},
		endAfter:     6,
		endReason:    meeting.EndReasonNormal,
	}
	h := newHarness(t, client)

	if err := h.worker.Run(context.Background(), testJob("meet")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !client.closed {
		t.Error("browser was not closed")
	}
	if len(client.chat) != 1 {
		t.Errorf("welcome chat sent %d times, want 1", len(client.chat))
	}
	if h.recCalls != 1 {
		t.Errorf("recorder started %d times, want 1", h.recCalls)
	}
	if h.reports != 1 {
		t.Errorf("report built %d times, want 1", h.reports)
	}
	if _, ok := h.store.Job(); ok {
		t.Error("job document should be deleted after teardown")
	}

	ws := h.store.WorkerStatus()
	if ws.Running {
		t.Error("status still running after teardown")
	}
	if ws.StatusMessage != "Hazır" {
		t.Errorf("final status message = %q", ws.StatusMessage)
	}
}

func TestRunDedupesSpeakerTimeline(t *testing.T) {
	client := &fakeClient{
		participants: []string{"Ali Can", "Ayşe Demir"},
		speakerSets:  [][]string{{"Ali Can"}, {"Ali Can"}, {"Ali Can"}, {"Ayşe Demir"}},
		endAfter:     8,
		endReason:    meeting.EndReasonNormal,
	}
	h := newHarness(t, client)

	if err := h.worker.Run(context.Background(), testJob("zoom")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := h.store.TimelineRange(0, float64(time.Now().Unix()+10))
	if len(entries) != 2 {
		t.Fatalf("timeline entries = %d, want 2 (consecutive duplicates dropped)", len(entries))
	}
	if entries[0].Speakers[0] != "Ali Can" || entries[1].Speakers[0] != "Ayşe Demir" {
		t.Errorf("unexpected timeline order: %v", entries)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Ts < entries[i-1].Ts {
			t.Error("timeline timestamps not monotonic")
		}
	}
}

func TestRunJoinFailure(t *testing.T) {
	client := &fakeClient{joinErr: errors.New("lobby timeout")}
	h := newHarness(t, client)

	if err := h.worker.Run(context.Background(), testJob("teams")); err == nil {
		t.Fatal("expected a join error")
	}

	ws := h.store.WorkerStatus()
	if ws.Running {
		t.Error("status running after a failed join")
	}
	if ws.Error == "" {
		t.Error("join failure must set the status error")
	}
	if h.recCalls != 0 {
		t.Error("recorder must not start when join fails")
	}
	if h.reports != 0 {
		t.Error("report must not run when join fails")
	}
	if !client.closed {
		t.Error("browser should still be closed after a failed join")
	}
}

func TestRunStopCommand(t *testing.T) {
	client := &fakeClient{participants: []string{"Ali Can"}}
	h := newHarness(t, client)

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.store.WriteCommand(ipc.CommandStop)
	}()

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(context.Background(), testJob("meet")) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not react to the stop command")
	}

	if h.reports != 1 {
		t.Error("operator stop should still produce a report")
	}
	if cmd, ok := h.store.PeekCommand(); ok && !cmd.Processed {
		t.Error("stop command left unprocessed")
	}
}

func TestRunInvalidLinkSkipsReport(t *testing.T) {
	client := &fakeClient{
		endAfter:  1,
		endReason: "Geçersiz toplantı linki: this meeting has expired",
	}
	h := newHarness(t, client)

	if err := h.worker.Run(context.Background(), testJob("zoom")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.reports != 0 {
		t.Error("invalid-link end must skip the report")
	}
	ws := h.store.WorkerStatus()
	if ws.Error == "" {
		t.Error("abnormal end reason must survive into the final status")
	}
}

func TestRunRecorderFailureDegrades(t *testing.T) {
	client := &fakeClient{
		participants: []string{"Ali Can"},
		endAfter:     3,
		endReason:    meeting.EndReasonNormal,
	}
	h := newHarness(t, client)
	h.recErr = errors.New("ffmpeg not found")

	if err := h.worker.Run(context.Background(), testJob("meet")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.reports != 1 {
		t.Error("meeting without a recorder should still produce a report")
	}
}

func TestObservePauseSuppressesSpeakerPolling(t *testing.T) {
	client := &fakeClient{
		participants: []string{"Ali Can"},
		speakerSets:  [][]string{{"Ali Can"}},
		endAfter:     30,
		endReason:    meeting.EndReasonNormal,
	}
	h := newHarness(t, client)
	if err := h.store.WriteCommand(ipc.CommandPause); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	reason := h.worker.observe(context.Background(), client, testJob("meet"))
	if reason != meeting.EndReasonNormal {
		t.Fatalf("observe returned %q", reason)
	}

	// The pause command landed before the first poll, so no speaker set was
	// ever consumed.
	if client.speakerIdx != 0 {
		t.Errorf("speakers polled %d times while paused, want 0", client.speakerIdx)
	}
	if ws := h.store.WorkerStatus(); !ws.Paused {
		t.Error("pause command should set the paused flag")
	}
}

func TestEqualNames(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{nil, nil, true},
		{[]string{"a"}, []string{"a"}, true},
		{[]string{"a"}, []string{"b"}, false},
		{[]string{"a"}, []string{"a", "b"}, false},
		{[]string{"a", "b"}, []string{"b", "a"}, false},
	}
	for _, tc := range cases {
		if got := equalNames(tc.a, tc.b); got != tc.want {
			t.Errorf("equalNames(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
