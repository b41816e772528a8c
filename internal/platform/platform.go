// Package platform isolates the host-OS specifics: audio capture devices,
// ffmpeg invocation, binary resolution, display setup, browser launch flags,
// and process sweeps.
package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// AudioDevice returns the capture device for the current OS.
func AudioDevice() string {
	return AudioDeviceFor(runtime.GOOS)
}

// AudioDeviceFor returns the capture device for the given GOOS.
func AudioDeviceFor(goos string) string {
	switch goos {
	case "windows":
		return "CABLE Output (VB-Audio Virtual Cable)"
	case "linux":
		return "pulse"
	default:
		return "default"
	}
}

// FFmpegInputArgs returns the ffmpeg input arguments for the current OS.
func FFmpegInputArgs() []string {
	return FFmpegInputArgsFor(runtime.GOOS, AudioDevice())
}

// FFmpegInputArgsFor returns the ffmpeg input arguments for the given GOOS.
// Linux captures the virtual mic monitor over PulseAudio; Windows captures
// the VB-Audio cable over dshow with generous buffering.
func FFmpegInputArgsFor(goos, device string) []string {
	switch goos {
	case "windows":
		return []string{
			"-f", "dshow",
			"-rtbufsize", "1G",
			"-thread_queue_size", "4096",
			"-use_wallclock_as_timestamps", "1",
			"-i", "audio=" + device,
		}
	case "darwin":
		return []string{"-f", "avfoundation", "-i", ":0"}
	default:
		return []string{"-f", "pulse", "-i", "virtual_mic.monitor"}
	}
}

// ResolveFFmpeg finds the ffmpeg binary: explicit override first, then PATH,
// then a known install location, then the bare name.
func ResolveFFmpeg(override string) string {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p
	}
	for _, cand := range knownFFmpegPaths(runtime.GOOS) {
		if _, err := os.Stat(cand); err == nil {
			return cand
		}
	}
	return "ffmpeg"
}

func knownFFmpegPaths(goos string) []string {
	if goos == "windows" {
		return []string{`C:\ffmpeg\bin\ffmpeg.exe`}
	}
	return []string{"/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg"}
}

// FFprobeFor derives the ffprobe path from a resolved ffmpeg path so both
// come from the same install.
func FFprobeFor(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	probe := strings.Replace(base, "ffmpeg", "ffprobe", 1)
	if probe == base {
		return "ffprobe"
	}
	if dir == "" {
		return probe
	}
	return filepath.Join(dir, probe)
}

// EnsureDisplay points X clients at the virtual display when none is set.
// Returns the DISPLAY value in effect.
func EnsureDisplay() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	if d := os.Getenv("DISPLAY"); d != "" {
		return d
	}
	os.Setenv("DISPLAY", ":99")
	return ":99"
}

// BrowserFlag is a Chromium command line switch.
type BrowserFlag struct {
	Name  string
	Value any
}

// BrowserFlags returns the Chromium switches required for unattended meeting
// capture on the current OS.
func BrowserFlags() []BrowserFlag {
	return BrowserFlagsFor(runtime.GOOS)
}

// BrowserFlagsFor returns the Chromium switches for the given GOOS.
func BrowserFlagsFor(goos string) []BrowserFlag {
	flags := []BrowserFlag{
		{Name: "use-fake-ui-for-media-stream", Value: true},
		{Name: "disable-notifications", Value: true},
		{Name: "autoplay-policy", Value: "no-user-gesture-required"},
	}
	if goos == "linux" {
		flags = append(flags,
			BrowserFlag{Name: "no-sandbox", Value: true},
			BrowserFlag{Name: "disable-dev-shm-usage", Value: true},
			BrowserFlag{Name: "disable-gpu", Value: true},
		)
	}
	return flags
}
