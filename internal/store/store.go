package store

import "strings"

// MailboxStore is the durable mailbox namespace, per-user. All
// implementations must be safe for concurrent use by independent
// sessions; in particular AppendMessage must allocate the uid and
// persist the content as one atomic step per mailbox, so two
// concurrent appends can never observe the same uid.
//
// Persistence faults surface as false/absent results, never as panics;
// the session layer translates them into tagged BAD responses.
type MailboxStore interface {
	// CreateMailbox creates the mailbox if it does not exist. Creating
	// an existing mailbox succeeds without touching its uid counters.
	// A fresh uidvalidity is allocated only on first creation.
	CreateMailbox(user, name string) bool

	// DeleteMailbox removes the mailbox with all messages and
	// metadata. Returns false if the mailbox does not exist.
	DeleteMailbox(user, name string) bool

	// ListMailboxes returns the user's mailbox names matching the
	// pattern. A user with no mailboxes yields an empty slice.
	ListMailboxes(user, pattern string) []string

	// GetMailboxStatus reports counters for the mailbox, or false if
	// it does not exist.
	GetMailboxStatus(user, name string) (Status, bool)

	// AppendMessage stores content under a freshly allocated uid.
	AppendMessage(user, name string, content []byte, flags []string) (int64, bool)

	// GetMessage retrieves one message by uid.
	GetMessage(user, name string, uid int64) (Message, bool)

	// SearchMessages returns matching uids in ascending order.
	SearchMessages(user, name string, criteria Criteria) []int64

	// UpdateFlags mutates the flag sets of the given uids.
	UpdateFlags(user, name string, uids []int64, flags []string, mode FlagMode) bool
}

// Status holds the counters a STATUS or SELECT response reports.
type Status struct {
	Messages    int
	Recent      int
	Unseen      int
	UIDNext     int64
	UIDValidity int64
}

// Message is one stored message.
type Message struct {
	UID     int64
	Content []byte
	Flags   []string
}

// Criteria narrows a message search. The zero value matches all
// messages; new criteria extend this struct.
type Criteria struct {
	Unseen bool
}

// FlagMode selects how UpdateFlags combines the given flags with the
// stored set.
type FlagMode int

const (
	FlagsReplace FlagMode = iota
	FlagsAdd
	FlagsRemove
)

// FlagSeen marks a message as read; its absence makes a message match
// the UNSEEN search criterion.
const FlagSeen = `\Seen`

// MatchPattern reports whether a mailbox name matches a listing
// pattern. The pattern grammar is a simple prefix filter: "*" and "%"
// act as trailing wildcards, an empty pattern matches everything.
func MatchPattern(name, pattern string) bool {
	prefix := strings.ReplaceAll(strings.ReplaceAll(pattern, "*", ""), "%", "")
	return strings.HasPrefix(name, prefix)
}

// applyFlags combines current and given flags per mode. Used by both
// substrates so they agree on flag semantics.
func applyFlags(current, given []string, mode FlagMode) []string {
	set := make(map[string]bool)
	if mode != FlagsReplace {
		for _, f := range current {
			set[f] = true
		}
	}

	for _, f := range given {
		if mode == FlagsRemove {
			delete(set, f)
		} else {
			set[f] = true
		}
	}

	out := make([]string, 0, len(set))
	for _, f := range current {
		if set[f] {
			out = append(out, f)
			delete(set, f)
		}
	}
	for _, f := range given {
		if set[f] {
			out = append(out, f)
			delete(set, f)
		}
	}
	return out
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
