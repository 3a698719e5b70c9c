package server

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"kestrel/internal/models"
	"kestrel/internal/pipeline"
	"kestrel/internal/protocol"
	"kestrel/internal/store"
)

// maxLiteralSize bounds APPEND literals.
const maxLiteralSize = 50 * 1024 * 1024

func (sess *session) handleAppend(tag string, args []string) outcome {
	if !sess.authenticated() {
		sess.send(protocol.Bad(tag, "Please authenticate first"))
		return outcomeContinue
	}
	if len(args) < 2 {
		sess.send(protocol.Bad(tag, "APPEND requires a mailbox name and a literal"))
		return outcomeContinue
	}

	name := args[0]
	size, ok := protocol.LiteralSize(args[len(args)-1])
	if !ok {
		// Non-literal APPEND framing is rejected rather than guessed at.
		sess.send(protocol.Bad(tag, "APPEND requires a literal size"))
		return outcomeContinue
	}
	if size <= 0 || size > maxLiteralSize {
		sess.send(protocol.Bad(tag, "APPEND literal size invalid or too large"))
		return outcomeContinue
	}

	flags := appendFlags(args[1 : len(args)-1])

	// The literal bytes follow the continuation prompt and bypass line
	// tokenization entirely: content plus the trailing terminator.
	sess.send(protocol.Continuation())

	_ = sess.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	data := make([]byte, size+2)
	if _, err := io.ReadFull(sess.reader, data); err != nil {
		sess.server.logf("Failed to read %d-byte literal: %v", size, err)
		sess.send(protocol.Bad(tag, "APPEND failed: could not read literal"))
		return outcomeContinue
	}
	content := data[:size]

	processed := sess.server.pipeline.Run(pipeline.Context{
		Content: content,
		Mailbox: name,
		User:    sess.state.Username,
	})

	uid, ok := sess.server.store.AppendMessage(sess.state.Username, name, processed.Content, flags)
	if !ok {
		sess.send(protocol.Bad(tag, "APPEND failed"))
		return outcomeContinue
	}

	sess.send(protocol.OK(tag, fmt.Sprintf("APPEND completed [UID %d]", uid)))
	return outcomeContinue
}

// appendFlags pulls flag names out of the optional parenthesized list
// between the mailbox name and the literal token.
func appendFlags(args []string) []string {
	flags := []string{}
	for _, a := range args {
		a = strings.Trim(a, "()")
		if a != "" {
			flags = append(flags, a)
		}
	}
	return flags
}

func (sess *session) handleFetch(tag string, args []string) outcome {
	if sess.state.State != models.StateSelected {
		sess.send(protocol.Bad(tag, "Please select a mailbox first"))
		return outcomeContinue
	}
	if len(args) < 2 {
		sess.send(protocol.Bad(tag, "FETCH requires a uid and an item"))
		return outcomeContinue
	}

	uid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		sess.send(protocol.Bad(tag, "FETCH requires a numeric uid"))
		return outcomeContinue
	}

	item := strings.ToUpper(args[1])
	switch item {
	case "UID":
		if _, ok := sess.server.store.GetMessage(sess.state.Username, sess.state.SelectedMailbox, uid); !ok {
			sess.send(protocol.Bad(tag, "FETCH failed: no such message"))
			return outcomeContinue
		}
		sess.send(protocol.Untagged(fmt.Sprintf("%d FETCH (UID %d)", uid, uid)))
		sess.send(protocol.OK(tag, "FETCH completed"))

	case "BODY[]":
		msg, ok := sess.server.store.GetMessage(sess.state.Username, sess.state.SelectedMailbox, uid)
		if !ok {
			sess.send(protocol.Bad(tag, "FETCH failed: no such message"))
			return outcomeContinue
		}
		// Body goes out the same way inbound literals come in: a size
		// marker, then the raw bytes and terminator.
		sess.send(protocol.Untagged(fmt.Sprintf("%d FETCH (BODY[] {%d})", uid, len(msg.Content))))
		sess.sendRaw(msg.Content)
		sess.sendRaw([]byte("\r\n"))
		sess.send(protocol.OK(tag, "FETCH completed"))

	default:
		sess.send(protocol.Bad(tag, fmt.Sprintf("FETCH failed: unsupported item %s", item)))
	}
	return outcomeContinue
}

func (sess *session) handleSearch(tag string, args []string) outcome {
	if sess.state.State != models.StateSelected {
		sess.send(protocol.Bad(tag, "Please select a mailbox first"))
		return outcomeContinue
	}

	criteria := store.Criteria{}
	if len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "ALL":
		case "UNSEEN":
			criteria.Unseen = true
		default:
			sess.send(protocol.Bad(tag, fmt.Sprintf("SEARCH failed: unsupported criteria %s", args[0])))
			return outcomeContinue
		}
	}

	uids := sess.server.store.SearchMessages(sess.state.Username, sess.state.SelectedMailbox, criteria)
	line := "SEARCH"
	for _, uid := range uids {
		line += fmt.Sprintf(" %d", uid)
	}
	sess.send(protocol.Untagged(line))
	sess.send(protocol.OK(tag, "SEARCH completed"))
	return outcomeContinue
}
