package sender

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// IMAPProvider delivers by appending the message into a mailbox on a
// remote IMAP server. Recipients are ignored; the target mailbox is
// fixed by configuration.
type IMAPProvider struct {
	Address  string
	Username string
	Password string
	Mailbox  string
	logger   *log.Logger
}

func (p *IMAPProvider) Send(ctx context.Context, from string, to []string, content []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", p.Address, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(time.Minute))
	}

	reader := bufio.NewReader(conn)

	// Greeting.
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}

	if err := p.command(conn, reader, "S1", fmt.Sprintf("LOGIN %s %s", p.Username, p.Password)); err != nil {
		return err
	}

	line := fmt.Sprintf("S2 APPEND %s {%d}\r\n", p.Mailbox, len(content))
	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("failed to send APPEND: %w", err)
	}
	if err := awaitContinuation(reader); err != nil {
		return err
	}
	if _, err := conn.Write(append(content, '\r', '\n')); err != nil {
		return fmt.Errorf("failed to send literal: %w", err)
	}
	if err := awaitTagged(reader, "S2"); err != nil {
		return err
	}

	// Best effort; the message is already stored.
	_, _ = conn.Write([]byte("S3 LOGOUT\r\n"))

	if p.logger != nil {
		p.logger.Printf("Delivered %d bytes to %s on %s", len(content), p.Mailbox, p.Address)
	}
	return nil
}

func (p *IMAPProvider) command(conn net.Conn, reader *bufio.Reader, tag, command string) error {
	if _, err := conn.Write([]byte(tag + " " + command + "\r\n")); err != nil {
		return fmt.Errorf("failed to send %s: %w", tag, err)
	}
	return awaitTagged(reader, tag)
}

// awaitTagged skips untagged lines until the tagged completion
// arrives, then requires it to be an OK.
func awaitTagged(reader *bufio.Reader, tag string) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("connection lost awaiting %s: %w", tag, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, tag+" ") {
			continue
		}
		if !strings.HasPrefix(line, tag+" OK") {
			return fmt.Errorf("server refused %s: %s", tag, line)
		}
		return nil
	}
}

func awaitContinuation(reader *bufio.Reader) error {
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("connection lost awaiting continuation: %w", err)
	}
	if !strings.HasPrefix(line, "+") {
		return fmt.Errorf("expected continuation, got %s", strings.TrimRight(line, "\r\n"))
	}
	return nil
}
