package server

import (
	"log"
	"net"

	"kestrel/internal/auth"
	"kestrel/internal/pipeline"
	"kestrel/internal/store"
)

// IMAPServer accepts connections and serves one session per
// connection. Sessions share nothing but the store and the verifier,
// which are both safe for concurrent use.
type IMAPServer struct {
	store    store.MailboxStore
	verifier *auth.Verifier
	pipeline *pipeline.Pipeline
	logger   *log.Logger

	capabilities []string
}

func NewIMAPServer(st store.MailboxStore, verifier *auth.Verifier, pl *pipeline.Pipeline, logger *log.Logger) *IMAPServer {
	return &IMAPServer{
		store:        st,
		verifier:     verifier,
		pipeline:     pl,
		logger:       logger,
		capabilities: []string{"IMAP4rev1", "AUTH=PLAIN", "IDLE", "LITERAL+", "UIDPLUS"},
	}
}

// Serve accepts connections until the listener is closed. Each
// connection gets its own goroutine; a failed session never affects
// the accept loop.
func (s *IMAPServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.HandleConnection(conn)
	}
}

// HandleConnection runs one session to completion.
func (s *IMAPServer) HandleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	newSession(s, conn).run()
}

func (s *IMAPServer) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
