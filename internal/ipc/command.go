package ipc

import "time"

// Commands accepted by the control endpoint.
const (
	CommandPause      = "pause"
	CommandResume     = "resume"
	CommandStop       = "stop"
	CommandForceReset = "force_reset"
)

// Command is the one-shot control document. The worker consumes it by
// flipping Processed to true in place.
type Command struct {
	Command   string    `json:"command"`
	IssuedAt  time.Time `json:"issued_at"`
	Processed bool      `json:"processed"`
}

// WriteCommand stores a fresh, unprocessed command.
func (s *Store) WriteCommand(name string) error {
	return s.writeJSON(s.dataPath(commandFile), Command{
		Command:  name,
		IssuedAt: time.Now(),
	})
}

// PeekCommand returns the command document without consuming it.
func (s *Store) PeekCommand() (Command, bool) {
	var c Command
	ok := s.readJSON(s.dataPath(commandFile), &c)
	return c, ok
}

// ConsumeCommand returns the pending command, if any, and marks it processed
// so it fires exactly once.
func (s *Store) ConsumeCommand() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Command
	path := s.dataPath(commandFile)
	if !s.readJSON(path, &c) || c.Processed || c.Command == "" {
		return "", false
	}
	c.Processed = true
	if err := s.writeJSON(path, c); err != nil {
		s.log.Warn().Err(err).Msg("failed to mark command processed")
	}
	return c.Command, true
}

// DeleteCommand removes the command document if present.
func (s *Store) DeleteCommand() {
	s.remove(s.dataPath(commandFile))
}
