package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Size gates below which a segment cannot hold usable Opus audio.
const (
	minChunkBytes      = 20 * 1024
	shortOverrideBytes = 100 * 1024
	minChunkSeconds    = 0.3
	probeTimeout       = 10 * time.Second
)

// Verdict is the outcome of validating one chunk. Duration is the probed
// audio length in seconds, zero when the probe did not run or report one.
type Verdict struct {
	OK       bool
	Reason   string
	Duration float64
}

type probeInfo struct {
	duration   float64
	packets    int
	hasPackets bool
}

type prober interface {
	probe(ctx context.Context, path string) (probeInfo, error)
}

// Validator decides whether a chunk is worth sending for transcription.
type Validator struct {
	prober prober
	log    zerolog.Logger
}

func NewValidator(ffprobeBin string, log zerolog.Logger) *Validator {
	return &Validator{prober: ffprobeRunner{bin: ffprobeBin}, log: log}
}

// Check validates size and container health. Probe failures accept the
// chunk: the transcription model is the final judge of whether the audio is
// usable.
func (v *Validator) Check(ctx context.Context, path string) Verdict {
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		return Verdict{Reason: "unreadable: " + err.Error()}
	}
	sizeKB := float64(info.Size()) / 1024
	if info.Size() < minChunkBytes {
		return Verdict{Reason: fmt.Sprintf("too small (%.1f KB)", sizeKB)}
	}

	pi, err := v.prober.probe(ctx, path)
	if err != nil {
		v.log.Warn().Err(err).Str("chunk", name).Msg("ffprobe failed, accepting chunk")
		return Verdict{OK: true}
	}
	if pi.duration < minChunkSeconds {
		if info.Size() <= shortOverrideBytes {
			return Verdict{Reason: fmt.Sprintf("too short (%.2fs)", pi.duration), Duration: pi.duration}
		}
		// A large file with a near-zero probed duration usually means the
		// container index is incomplete, not that the audio is missing.
		v.log.Warn().Str("chunk", name).Float64("probed_duration", pi.duration).Float64("size_kb", sizeKB).
			Msg("probed duration suspicious for file size, keeping")
	}
	if pi.hasPackets && pi.packets < 2 {
		return Verdict{Reason: fmt.Sprintf("broken container (%d packets)", pi.packets), Duration: pi.duration}
	}
	return Verdict{OK: true, Duration: pi.duration}
}

type ffprobeRunner struct {
	bin string
}

func (f ffprobeRunner) probe(ctx context.Context, path string) (probeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, f.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return probeInfo{}, err
	}
	return parseProbeOutput(out)
}

// ffprobe emits numeric fields as JSON strings.
type ffprobeDoc struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

func parseProbeOutput(out []byte) (probeInfo, error) {
	var doc ffprobeDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		return probeInfo{}, err
	}

	var pi probeInfo
	pi.duration, _ = strconv.ParseFloat(doc.Format.Duration, 64)
	if len(doc.Streams) > 0 && doc.Streams[0].NbReadPackets != "" {
		if n, err := strconv.Atoi(doc.Streams[0].NbReadPackets); err == nil {
			pi.packets = n
			pi.hasPackets = true
		}
	}
	return pi, nil
}
