package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// subprocess is a started child process the worker can wait on or kill.
type subprocess interface {
	// Wait blocks until the process exits or the timeout elapses. Returns
	// true when the process has exited.
	Wait(timeout time.Duration) bool
	Kill()
}

type childProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *childProcess) Wait(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *childProcess) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
}

// startChild launches a sibling binary with its output redirected to a log
// file under logs/.
func startChild(bin string, args []string, logPath string) (*childProcess, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open child log: %w", err)
	}

	cmd := exec.Command(bin, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("start %s: %w", filepath.Base(bin), err)
	}

	p := &childProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		out.Close()
		close(p.done)
	}()
	return p, nil
}

// spawnRecorder starts the sesly-recorder subprocess for the given platform.
func (w *Worker) spawnRecorder(platformName string) (subprocess, error) {
	bin := resolveBin("sesly-recorder", w.cfg.RecorderBin)
	logPath := filepath.Join(w.cfg.AbsLogDir(), fmt.Sprintf("recorder_output_%s.log", platformName))
	w.log.Info().Str("bin", bin).Str("platform", platformName).Msg("starting recorder")
	return startChild(bin, []string{"--platform", platformName, "-workdir", w.cfg.WorkDir}, logPath)
}

// spawnReport runs the sesly-report subprocess to completion. Running it out
// of process keeps a report crash from taking the worker down and yields an
// exit code to log.
func (w *Worker) spawnReport(ctx context.Context) error {
	bin := resolveBin("sesly-report", w.cfg.ReportBin)
	logPath := filepath.Join(w.cfg.AbsLogDir(), "report_output.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open report log: %w", err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, bin, "-workdir", w.cfg.WorkDir)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("report builder (%s): %w", bin, err)
	}
	w.log.Info().Int("exit_code", cmd.ProcessState.ExitCode()).Msg("report builder finished")
	return nil
}

// resolveBin locates a sibling binary: explicit override, then the directory
// of the running executable, then PATH.
func resolveBin(name, override string) string {
	if override != "" {
		return override
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	if found, err := exec.LookPath(name); err == nil {
		return found
	}
	return name
}
