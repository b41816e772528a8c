package ipc

import (
	"os"
	"strings"
)

// Transcript returns the accumulated meeting transcript, "" when absent.
func (s *Store) Transcript() string {
	data, err := os.ReadFile(s.rootPath(transcriptFile))
	if err != nil {
		return ""
	}
	return string(data)
}

// AppendTranscript merges text into the transcript with a blank-line joiner.
// fn receives the existing transcript and the candidate text and returns the
// text to append ("" to skip); this lets the caller run its dedup check and
// the append under one lock.
func (s *Store) AppendTranscript(text string, fn func(existing, text string) string) (appended bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.rootPath(transcriptFile)
	existing := ""
	if data, rerr := os.ReadFile(path); rerr == nil {
		existing = string(data)
	}

	if fn != nil {
		text = fn(existing, text)
	}
	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	merged := text
	if strings.TrimSpace(existing) != "" {
		merged = strings.TrimRight(existing, "\n") + "\n\n" + text
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(merged), 0o644); err != nil {
		return false, err
	}
	return true, os.Rename(tmp, path)
}

// DeleteTranscript removes the transcript file if present.
func (s *Store) DeleteTranscript() {
	s.remove(s.rootPath(transcriptFile))
}
