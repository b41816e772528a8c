package recorder

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/platform"
)

const (
	segmentSeconds = 300
	stopTimeout    = 60 * time.Second
	killWait       = 5 * time.Second
)

// ffmpegArgs builds the capture command: platform audio input, mono 16 kHz
// Opus at 16 kbps, five-minute WebM segments with regenerated timestamps so
// every file stands alone.
func ffmpegArgs(segmentDir string) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	args = append(args, platform.FFmpegInputArgs()...)
	args = append(args,
		"-vn", "-sn", "-dn",
		"-c:a", "libopus",
		"-b:a", "16k",
		"-vbr", "off",
		"-compression_level", "10",
		"-application", "voip",
		"-ac", "1",
		"-ar", "16000",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		"-af", "aresample=async=1",
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-segment_format", "webm",
		"-reset_timestamps", "1",
		"-break_non_keyframes", "1",
		filepath.Join(segmentDir, "chunk_%03d.webm"),
	)
	return args
}

// ffmpegProc wraps a running capture process. waitErr is published before
// done closes, so readers must observe done first.
type ffmpegProc struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	waitErr error
}

// startFFmpeg launches the capture process with stderr teed to a debug log,
// since ffmpeg reports device problems there.
func startFFmpeg(bin string, args []string, stderrPath string, log zerolog.Logger) (*ffmpegProc, error) {
	if err := os.MkdirAll(filepath.Dir(stderrPath), 0o755); err != nil {
		return nil, err
	}
	stderr, err := os.Create(stderrPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(bin, args...)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		stderr.Close()
		return nil, err
	}

	log.Info().Str("bin", bin).Strs("args", args).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, err
	}

	p := &ffmpegProc{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		stderr.Close()
		close(p.done)
	}()
	return p, nil
}

// Done closes once ffmpeg has exited.
func (p *ffmpegProc) Done() <-chan struct{} { return p.done }

// Exited reports whether ffmpeg has terminated.
func (p *ffmpegProc) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the exit error, or nil while the process is still running.
func (p *ffmpegProc) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Stop drains ffmpeg: 'q' on stdin lets it close the current segment
// properly, with SIGTERM and SIGKILL as escalations. Safe to call after the
// process has already exited.
func (p *ffmpegProc) Stop(log zerolog.Logger) {
	if p.Exited() {
		return
	}
	if _, err := io.WriteString(p.stdin, "q"); err != nil {
		log.Warn().Err(err).Msg("ffmpeg stdin closed, sending SIGTERM")
		p.cmd.Process.Signal(syscall.SIGTERM)
	}
	p.stdin.Close()

	select {
	case <-p.done:
		log.Info().Msg("ffmpeg finished cleanly")
		return
	case <-time.After(stopTimeout):
	}

	log.Warn().Msg("ffmpeg ignored quit, killing")
	p.cmd.Process.Kill()
	select {
	case <-p.done:
	case <-time.After(killWait):
	}
}
