package ipc

import (
	"bufio"
	"encoding/json"
	"os"
	"time"
)

// TimelineEntry is one line of the append-only speaker timeline. Ts is a unix
// timestamp; Time is the wall clock at append, for humans reading the file.
type TimelineEntry struct {
	Ts       float64  `json:"ts"`
	Time     string   `json:"time"`
	Speakers []string `json:"speakers"`
}

// AppendTimeline appends one entry to the speaker timeline.
func (s *Store) AppendTimeline(speakers []string) error {
	now := time.Now()
	entry := TimelineEntry{
		Ts:       float64(now.UnixNano()) / 1e9,
		Time:     now.Format("15:04:05"),
		Speakers: speakers,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.rootPath(timelineFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// TimelineRange returns timeline entries with start <= ts <= end, in file
// order. Malformed lines are skipped.
func (s *Store) TimelineRange(start, end float64) []TimelineEntry {
	f, err := os.Open(s.rootPath(timelineFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []TimelineEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e TimelineEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Ts >= start && e.Ts <= end {
			out = append(out, e)
		}
	}
	return out
}

// ActivityEntry is one element of the speaker activity log array.
type ActivityEntry struct {
	Timestamp float64  `json:"timestamp"`
	Platform  string   `json:"platform,omitempty"`
	Speakers  []string `json:"speakers"`
}

// AppendActivity appends an entry to the activity log array.
func (s *Store) AppendActivity(platform string, speakers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []ActivityEntry
	path := s.rootPath(activityFile)
	s.readJSON(path, &entries)
	entries = append(entries, ActivityEntry{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Platform:  platform,
		Speakers:  speakers,
	})
	return s.writeJSON(path, entries)
}

// Activity returns the full activity log, oldest first.
func (s *Store) Activity() []ActivityEntry {
	var entries []ActivityEntry
	s.readJSON(s.rootPath(activityFile), &entries)
	return entries
}

// ParticipantSnapshot is the latest known participant list for the meeting.
type ParticipantSnapshot struct {
	Platform       string   `json:"platform"`
	Participants   []string `json:"participants"`
	ActiveSpeakers []string `json:"active_speakers,omitempty"`
	Timestamp      float64  `json:"timestamp"`
}

// WriteParticipants stores the participant snapshot.
func (s *Store) WriteParticipants(snap ParticipantSnapshot) error {
	if snap.Timestamp == 0 {
		snap.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	return s.writeJSON(s.rootPath(participantsFile), snap)
}

// Participants returns the participant snapshot, zero-valued when absent.
func (s *Store) Participants() ParticipantSnapshot {
	var snap ParticipantSnapshot
	s.readJSON(s.rootPath(participantsFile), &snap)
	return snap
}
