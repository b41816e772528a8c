package ipc

import "time"

// Platform identifiers accepted in job documents.
const (
	PlatformZoom  = "zoom"
	PlatformTeams = "teams"
	PlatformMeet  = "meet"
)

// ValidPlatform reports whether p names a supported meeting platform.
func ValidPlatform(p string) bool {
	return p == PlatformZoom || p == PlatformTeams || p == PlatformMeet
}

// Job is the meeting task document the API writes and the dispatcher consumes.
type Job struct {
	Active         bool      `json:"active"`
	Platform       string    `json:"platform"`
	MeetingURL     string    `json:"meeting_url"`
	MeetingID      string    `json:"meeting_id,omitempty"`
	Passcode       string    `json:"passcode,omitempty"`
	BotDisplayName string    `json:"bot_display_name"`
	Title          string    `json:"title,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Job returns the current job document. ok is false when the file is missing
// or unreadable.
func (s *Store) Job() (Job, bool) {
	var j Job
	ok := s.readJSON(s.dataPath(jobFile), &j)
	return j, ok
}

// WriteJob stores the job document.
func (s *Store) WriteJob(j Job) error {
	return s.writeJSON(s.dataPath(jobFile), j)
}

// DeleteJob removes the job document if present.
func (s *Store) DeleteJob() {
	s.remove(s.dataPath(jobFile))
}
