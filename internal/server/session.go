package server

import (
	"bufio"
	"net"
	"strings"
	"time"

	"kestrel/internal/models"
	"kestrel/internal/protocol"
)

// outcome tells the run loop what to do after a handler returns.
// Termination is an ordinary value, not a fault, so LOGOUT and friends
// stay in plain control flow.
type outcome int

const (
	outcomeContinue outcome = iota
	outcomeTerminate
)

type commandHandler func(sess *session, tag string, args []string) outcome

// dispatch is the complete command set. Anything absent gets the
// unrecognized-command BAD from the run loop.
var dispatch = map[string]commandHandler{
	"CAPABILITY": (*session).handleCapability,
	"NOOP":       (*session).handleNoop,
	"LOGIN":      (*session).handleLogin,
	"LOGOUT":     (*session).handleLogout,
	"SELECT":     (*session).handleSelect,
	"EXAMINE":    (*session).handleExamine,
	"CREATE":     (*session).handleCreate,
	"DELETE":     (*session).handleDelete,
	"LIST":       (*session).handleList,
	"LSUB":       (*session).handleLsub,
	"STATUS":     (*session).handleStatus,
	"APPEND":     (*session).handleAppend,
	"FETCH":      (*session).handleFetch,
	"SEARCH":     (*session).handleSearch,
}

// session owns one connection. It is used only by the connection's
// goroutine, so its state needs no locking.
type session struct {
	server *IMAPServer
	conn   net.Conn
	reader *bufio.Reader
	state  *models.ClientState
}

func newSession(s *IMAPServer, conn net.Conn) *session {
	return &session{
		server: s,
		conn:   conn,
		reader: bufio.NewReader(conn),
		state:  &models.ClientState{},
	}
}

func (sess *session) run() {
	sess.send(protocol.Untagged("OK IMAP4rev1 Service Ready"))

	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(30 * time.Minute))

		line, err := sess.reader.ReadString('\n')
		if err != nil {
			// EOF or reset; expected end of session, nothing to report.
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sess.server.logf("Client: %s", line)

		tag, command, args, err := protocol.Parse(line)
		if err != nil {
			// No tag to answer on, so the connection cannot be used
			// safely anymore.
			sess.server.logf("Unparseable command line, closing connection: %v", err)
			return
		}

		handler, ok := dispatch[command]
		if !ok {
			sess.send(protocol.Bad(tag, "Command not recognized or supported"))
			continue
		}

		if handler(sess, tag, args) == outcomeTerminate {
			return
		}
	}
}

func (sess *session) send(response string) {
	sess.server.logf("Server: %s", logTrim(response))
	_, _ = sess.conn.Write([]byte(response))
}

// sendRaw writes literal payload bytes without response logging.
func (sess *session) sendRaw(data []byte) {
	_, _ = sess.conn.Write(data)
}

// logTrim keeps message bodies out of the server log.
func logTrim(response string) string {
	trimmed := strings.TrimRight(response, "\r\n")
	if len(trimmed) > 200 {
		return trimmed[:200] + "... [truncated]"
	}
	return trimmed
}
