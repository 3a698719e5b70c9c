package models

// SessionState tracks where a connection is in the command lifecycle.
// Transitions only move forward through authentication; deselecting a
// mailbox drops back to StateAuthenticated.
type SessionState int

const (
	StateNotAuthenticated SessionState = iota
	StateAuthenticated
	StateSelected
)

func (s SessionState) String() string {
	switch s {
	case StateNotAuthenticated:
		return "not-authenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateSelected:
		return "selected"
	}
	return "unknown"
}

// ClientState is the per-connection session record. One instance lives
// for the duration of a connection and is owned by its session
// goroutine, so no locking is needed.
type ClientState struct {
	State           SessionState
	Username        string
	SelectedMailbox string
	ReadOnly        bool // EXAMINE selects read-only
}

// Select records a mailbox selection.
func (c *ClientState) Select(mailbox string, readOnly bool) {
	c.State = StateSelected
	c.SelectedMailbox = mailbox
	c.ReadOnly = readOnly
}

// Deselect drops back to the authenticated state, clearing any
// selection.
func (c *ClientState) Deselect() {
	if c.State == StateSelected {
		c.State = StateAuthenticated
	}
	c.SelectedMailbox = ""
	c.ReadOnly = false
}
