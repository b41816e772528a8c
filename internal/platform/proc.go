package platform

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

// KillStaleFFmpeg terminates ffmpeg processes whose command line references
// the given marker (typically the segment directory). Returns the kill count.
func KillStaleFFmpeg(marker string, log zerolog.Logger) int {
	if marker == "" {
		return 0
	}
	procs, err := process.Processes()
	if err != nil {
		log.Warn().Err(err).Msg("process scan failed")
		return 0
	}

	killed := 0
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !strings.Contains(strings.ToLower(name), "ffmpeg") {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || !strings.Contains(cmdline, marker) {
			continue
		}
		if err := p.Kill(); err != nil {
			log.Warn().Err(err).Int32("pid", p.Pid).Msg("failed to kill stale ffmpeg")
			continue
		}
		log.Info().Int32("pid", p.Pid).Msg("killed stale ffmpeg")
		killed++
	}
	return killed
}

// KillProcessesMatching terminates processes whose name or command line
// contains any of the given substrings. The current process and its parent
// are never touched. Returns the kill count.
func KillProcessesMatching(patterns []string, log zerolog.Logger) int {
	if len(patterns) == 0 {
		return 0
	}
	procs, err := process.Processes()
	if err != nil {
		log.Warn().Err(err).Msg("process scan failed")
		return 0
	}

	self := int32(os.Getpid())
	parent := int32(os.Getppid())

	killed := 0
	for _, p := range procs {
		if p.Pid == self || p.Pid == parent {
			continue
		}
		name, _ := p.Name()
		cmdline, _ := p.Cmdline()
		haystack := strings.ToLower(name + " " + cmdline)

		matched := false
		for _, pat := range patterns {
			if pat != "" && strings.Contains(haystack, strings.ToLower(pat)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if err := p.Kill(); err != nil {
			log.Warn().Err(err).Int32("pid", p.Pid).Str("name", name).Msg("failed to kill process")
			continue
		}
		log.Info().Int32("pid", p.Pid).Str("name", name).Msg("killed leftover process")
		killed++
	}
	return killed
}
