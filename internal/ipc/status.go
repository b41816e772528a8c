package ipc

import (
	"os"
	"time"
)

// WorkerStatus is the worker's published state. Updates merge: fields not
// touched by the mutation keep their previous values.
type WorkerStatus struct {
	Platform      string    `json:"platform,omitempty"`
	Running       bool      `json:"running"`
	Recording     bool      `json:"recording"`
	Paused        bool      `json:"paused"`
	StatusMessage string    `json:"status_message"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// WorkerStatus returns the current status document, zero-valued when absent.
func (s *Store) WorkerStatus() WorkerStatus {
	var ws WorkerStatus
	s.readJSON(s.dataPath(workerStatusFile), &ws)
	return ws
}

// UpdateWorkerStatus applies fn to the stored status and writes it back with
// a fresh timestamp.
func (s *Store) UpdateWorkerStatus(fn func(*WorkerStatus)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ws WorkerStatus
	path := s.dataPath(workerStatusFile)
	s.readJSON(path, &ws)
	fn(&ws)
	ws.Timestamp = time.Now()
	return s.writeJSON(path, ws)
}

// ResetWorkerStatus replaces the status document wholesale.
func (s *Store) ResetWorkerStatus(ws WorkerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.Timestamp = time.Now()
	return s.writeJSON(s.dataPath(workerStatusFile), ws)
}

// RecorderStatus is the recorder's final summary document.
type RecorderStatus struct {
	Success         bool      `json:"success"`
	SegmentsSent    int       `json:"segments_sent"`
	SegmentsSkipped int       `json:"segments_skipped"`
	Timestamp       time.Time `json:"timestamp"`
}

// WriteRecorderStatus stores the recorder summary.
func (s *Store) WriteRecorderStatus(rs RecorderStatus) error {
	rs.Timestamp = time.Now()
	return s.writeJSON(s.rootPath(recorderFile), rs)
}

// RecorderStatus returns the recorder summary, zero-valued when absent.
func (s *Store) RecorderStatus() (RecorderStatus, bool) {
	var rs RecorderStatus
	ok := s.readJSON(s.rootPath(recorderFile), &rs)
	return rs, ok
}

// TouchStopSignal creates the stop marker the recorder polls for.
func (s *Store) TouchStopSignal() error {
	return os.WriteFile(s.rootPath(stopSignalFile), nil, 0o644)
}

// StopSignalExists reports whether the stop marker is present.
func (s *Store) StopSignalExists() bool {
	_, err := os.Stat(s.rootPath(stopSignalFile))
	return err == nil
}

// ClearStopSignal removes the stop marker.
func (s *Store) ClearStopSignal() {
	s.remove(s.rootPath(stopSignalFile))
}
