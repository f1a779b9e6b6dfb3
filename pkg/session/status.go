package session

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

// Label returns the status line shown to the user.
func (s Status) Label() string {
	switch s {
	case StatusConnecting:
		return "Connecting to Meri..."
	case StatusListening:
		return "I'm listening..."
	case StatusSpeaking:
		return "Meri is speaking..."
	case StatusError:
		return "Connection interrupted."
	case StatusClosed:
		return "Meri is asleep."
	default:
		return string(s)
	}
}

// Final reports whether s ends the session.
func (s Status) Final() bool {
	return s == StatusError || s == StatusClosed
}

// Transcript accumulates both sides of the conversation.
type Transcript struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// Snapshot is what the presentation layer observes. Seq orders the
// snapshots of one session; a higher Seq is newer.
type Snapshot struct {
	ID         string     `json:"id"`
	Seq        uint64     `json:"seq"`
	Status     Status     `json:"status"`
	Label      string     `json:"label"`
	Volume     float64    `json:"volume"`
	Transcript Transcript `json:"transcript"`
	Pending    int        `json:"pending"`
	Error      string     `json:"error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func idleSnapshot() Snapshot {
	return Snapshot{
		Status:    StatusClosed,
		Label:     StatusClosed.Label(),
		UpdatedAt: time.Now(),
	}
}
