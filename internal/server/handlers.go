package server

import (
	"fmt"
	"strings"

	"kestrel/internal/models"
	"kestrel/internal/protocol"
)

func (sess *session) handleCapability(tag string, args []string) outcome {
	sess.send(protocol.Capability(sess.server.capabilities))
	sess.send(protocol.OK(tag, "CAPABILITY completed"))
	return outcomeContinue
}

func (sess *session) handleNoop(tag string, args []string) outcome {
	sess.send(protocol.OK(tag, "NOOP completed"))
	return outcomeContinue
}

func (sess *session) handleLogin(tag string, args []string) outcome {
	if sess.state.State == models.StateSelected {
		sess.send(protocol.Bad(tag, "LOGIN not allowed with a mailbox selected"))
		return outcomeContinue
	}
	if len(args) < 2 {
		sess.send(protocol.Bad(tag, "LOGIN requires username and password"))
		return outcomeContinue
	}

	username, password := args[0], args[1]
	if !sess.server.verifier.Authenticate("PLAIN", username, password) {
		// Same answer for bad credentials and unknown mechanism.
		sess.send(protocol.Bad(tag, "LOGIN failed"))
		return outcomeContinue
	}

	sess.state.State = models.StateAuthenticated
	sess.state.Username = username
	sess.server.logf("User %s authenticated", username)
	sess.send(protocol.OK(tag, "LOGIN completed"))
	return outcomeContinue
}

func (sess *session) handleLogout(tag string, args []string) outcome {
	sess.send(protocol.Bye("IMAP4rev1 Server logging out"))
	sess.send(protocol.OK(tag, "LOGOUT completed"))
	return outcomeTerminate
}

func (sess *session) handleSelect(tag string, args []string) outcome {
	return sess.doSelect(tag, args, "SELECT", false)
}

func (sess *session) handleExamine(tag string, args []string) outcome {
	return sess.doSelect(tag, args, "EXAMINE", true)
}

func (sess *session) doSelect(tag string, args []string, command string, readOnly bool) outcome {
	if !sess.authenticated() {
		sess.send(protocol.Bad(tag, "Please authenticate first"))
		return outcomeContinue
	}
	if len(args) < 1 {
		sess.send(protocol.Bad(tag, command+" requires a mailbox name"))
		return outcomeContinue
	}

	name := args[0]
	status, ok := sess.server.store.GetMailboxStatus(sess.state.Username, name)
	if !ok {
		// Selection only changes on success.
		sess.send(protocol.Bad(tag, command+" failed: no such mailbox"))
		return outcomeContinue
	}

	sess.state.Select(name, readOnly)

	mode := "[READ-WRITE]"
	if readOnly {
		mode = "[READ-ONLY]"
	}
	sess.send(protocol.Untagged(fmt.Sprintf("%s %s selected", mode, name)))
	sess.send(protocol.Untagged(fmt.Sprintf("%d EXISTS", status.Messages)))
	sess.send(protocol.Untagged(fmt.Sprintf("%d RECENT", status.Recent)))
	sess.send(protocol.Untagged(fmt.Sprintf("OK [UIDVALIDITY %d] UIDVALIDITY", status.UIDValidity)))
	sess.send(protocol.Untagged(fmt.Sprintf("OK [UIDNEXT %d] UIDNEXT", status.UIDNext)))
	sess.send(protocol.OK(tag, command+" completed"))
	return outcomeContinue
}

func (sess *session) handleCreate(tag string, args []string) outcome {
	if !sess.authenticated() {
		sess.send(protocol.Bad(tag, "Please authenticate first"))
		return outcomeContinue
	}
	if len(args) < 1 {
		sess.send(protocol.Bad(tag, "CREATE requires a mailbox name"))
		return outcomeContinue
	}

	if !sess.server.store.CreateMailbox(sess.state.Username, args[0]) {
		sess.send(protocol.Bad(tag, "CREATE failed"))
		return outcomeContinue
	}
	sess.send(protocol.OK(tag, "CREATE completed"))
	return outcomeContinue
}

func (sess *session) handleDelete(tag string, args []string) outcome {
	if !sess.authenticated() {
		sess.send(protocol.Bad(tag, "Please authenticate first"))
		return outcomeContinue
	}
	if len(args) < 1 {
		sess.send(protocol.Bad(tag, "DELETE requires a mailbox name"))
		return outcomeContinue
	}

	name := args[0]
	if !sess.server.store.DeleteMailbox(sess.state.Username, name) {
		sess.send(protocol.Bad(tag, "DELETE failed: no such mailbox"))
		return outcomeContinue
	}
	if sess.state.SelectedMailbox == name {
		sess.state.Deselect()
	}
	sess.send(protocol.OK(tag, "DELETE completed"))
	return outcomeContinue
}

func (sess *session) handleList(tag string, args []string) outcome {
	return sess.doList(tag, args, "LIST")
}

// LSUB answers with the full listing; there is no subscription
// bookkeeping in this core.
func (sess *session) handleLsub(tag string, args []string) outcome {
	return sess.doList(tag, args, "LSUB")
}

func (sess *session) doList(tag string, args []string, command string) outcome {
	if !sess.authenticated() {
		sess.send(protocol.Bad(tag, "Please authenticate first"))
		return outcomeContinue
	}
	if len(args) < 2 {
		sess.send(protocol.Bad(tag, command+" requires reference and pattern"))
		return outcomeContinue
	}

	pattern := args[1]
	for _, name := range sess.server.store.ListMailboxes(sess.state.Username, pattern) {
		sess.send(protocol.Untagged(fmt.Sprintf("%s () \"/\" \"%s\"", command, name)))
	}
	sess.send(protocol.OK(tag, command+" completed"))
	return outcomeContinue
}

func (sess *session) handleStatus(tag string, args []string) outcome {
	if !sess.authenticated() {
		sess.send(protocol.Bad(tag, "Please authenticate first"))
		return outcomeContinue
	}
	if len(args) < 2 {
		sess.send(protocol.Bad(tag, "STATUS requires a mailbox name and items"))
		return outcomeContinue
	}

	name := args[0]
	status, ok := sess.server.store.GetMailboxStatus(sess.state.Username, name)
	if !ok {
		sess.send(protocol.Bad(tag, "STATUS failed: no such mailbox"))
		return outcomeContinue
	}

	items := statusItems(args[1:])
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item {
		case "MESSAGES":
			parts = append(parts, fmt.Sprintf("MESSAGES %d", status.Messages))
		case "RECENT":
			parts = append(parts, fmt.Sprintf("RECENT %d", status.Recent))
		case "UIDNEXT":
			parts = append(parts, fmt.Sprintf("UIDNEXT %d", status.UIDNext))
		case "UIDVALIDITY":
			parts = append(parts, fmt.Sprintf("UIDVALIDITY %d", status.UIDValidity))
		case "UNSEEN":
			parts = append(parts, fmt.Sprintf("UNSEEN %d", status.Unseen))
		}
	}

	sess.send(protocol.Untagged(fmt.Sprintf("STATUS %s (%s)", name, strings.Join(parts, " "))))
	sess.send(protocol.OK(tag, "STATUS completed"))
	return outcomeContinue
}

// statusItems flattens "(MESSAGES" "UNSEEN)" style tokens into bare
// item names, preserving the requested order.
func statusItems(args []string) []string {
	items := []string{}
	for _, a := range args {
		a = strings.ToUpper(strings.Trim(a, "()"))
		if a != "" {
			items = append(items, a)
		}
	}
	return items
}

func (sess *session) authenticated() bool {
	return sess.state.State != models.StateNotAuthenticated
}
