// Package ipc implements the file-based document store that the engine's
// processes communicate through: the dispatcher hands jobs to the worker, the
// worker publishes status and speaker data, the recorder reads hints and
// signals, and the HTTP API reads and resets all of it.
package ipc

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	jobFile          = "bot_task.json"
	commandFile      = "bot_command.json"
	workerStatusFile = "worker_status.json"

	timelineFile     = "speaker_timeline.jsonl"
	activityFile     = "speaker_activity_log.json"
	participantsFile = "current_meeting_participants.json"
	transcriptFile   = "latest_transcript.txt"
	recorderFile     = "recorder_status.json"
	stopSignalFile   = "stop_recording.signal"

	// Written by older deployments; only ever deleted here.
	legacyParticipantsFile = "participants.json"
	legacyCacheFile        = "live_transcript_cache.json"
)

// Store reads and writes the IPC documents under a working directory.
// Job, command, and worker status live under <root>/data; the speaker and
// transcript files live at the root. All JSON writes are atomic
// (temp file + rename) and all reads are tolerant: a missing or malformed
// file reads as its zero value.
type Store struct {
	root    string
	dataDir string
	log     zerolog.Logger

	// Serializes read-modify-write cycles (transcript append, activity
	// append, command consume, status merge).
	mu sync.Mutex
}

// NewStore creates a store rooted at workDir.
func NewStore(workDir string, log zerolog.Logger) *Store {
	return &Store{
		root:    workDir,
		dataDir: filepath.Join(workDir, "data"),
		log:     log.With().Str("component", "ipc").Logger(),
	}
}

// EnsureDirs creates the data directory if missing.
func (s *Store) EnsureDirs() error {
	return os.MkdirAll(s.dataDir, 0o755)
}

// Root returns the store's working directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dataPath(name string) string { return filepath.Join(s.dataDir, name) }
func (s *Store) rootPath(name string) string { return filepath.Join(s.root, name) }

// JobPath returns the absolute path of the job document, for watchers.
func (s *Store) JobPath() string { return s.dataPath(jobFile) }

// ActivityLogPath returns the absolute path of the speaker activity log.
// The report builder reads it directly because the file may carry either
// raw entries or precomputed statistics.
func (s *Store) ActivityLogPath() string { return s.rootPath(activityFile) }

// DataDir returns the directory holding job/command/status documents.
func (s *Store) DataDir() string { return s.dataDir }

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readJSON loads path into v. Returns false when the file is missing or
// cannot be parsed; parse failures are logged.
func (s *Store) readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", path).Msg("read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("malformed document")
		return false
	}
	return true
}

func (s *Store) remove(path string) bool {
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", path).Msg("remove failed")
		}
		return false
	}
	return true
}

// ResetMeetingFiles clears every per-meeting artifact before a new meeting:
// command, stop signal, timeline, activity log, participant snapshots,
// transcript, recorder status, and the legacy cache file.
func (s *Store) ResetMeetingFiles() {
	s.remove(s.dataPath(commandFile))
	s.remove(s.rootPath(stopSignalFile))
	s.remove(s.rootPath(timelineFile))
	s.remove(s.rootPath(activityFile))
	s.remove(s.rootPath(participantsFile))
	s.remove(s.rootPath(legacyParticipantsFile))
	s.remove(s.rootPath(transcriptFile))
	s.remove(s.rootPath(recorderFile))
	s.remove(s.rootPath(legacyCacheFile))
}

// CleanEphemeral removes the per-meeting artifacts after teardown while
// keeping the accumulated transcript on disk.
func (s *Store) CleanEphemeral() {
	s.remove(s.dataPath(commandFile))
	s.remove(s.rootPath(stopSignalFile))
	s.remove(s.rootPath(timelineFile))
	s.remove(s.rootPath(activityFile))
	s.remove(s.rootPath(participantsFile))
	s.remove(s.rootPath(legacyParticipantsFile))
	s.remove(s.rootPath(recorderFile))
	s.remove(s.rootPath(legacyCacheFile))
}

// ForceResetFiles removes the full reset file list and reports which files
// were actually deleted (by base name).
func (s *Store) ForceResetFiles() []string {
	targets := []string{
		s.dataPath(jobFile),
		s.dataPath(commandFile),
		s.dataPath(workerStatusFile),
		s.rootPath(legacyParticipantsFile),
		s.rootPath(participantsFile),
		s.rootPath(activityFile),
		s.rootPath(legacyCacheFile),
		s.rootPath(transcriptFile),
	}
	var removed []string
	for _, p := range targets {
		if s.remove(p) {
			removed = append(removed, filepath.Base(p))
		}
	}
	return removed
}
