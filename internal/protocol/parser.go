package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCommand is returned when a line does not carry at least a
// tag and a command name.
var ErrInvalidCommand = errors.New("invalid command format")

// Parse splits a raw command line into tag, command and arguments.
// Example: `A001 LOGIN "user@example.com" secret` yields
// ("A001", "LOGIN", ["user@example.com", "secret"]).
//
// The command name is upper-cased. Arguments are whitespace-delimited
// tokens; a double-quoted token is kept as a single argument with the
// quotes stripped. A trailing literal marker ({N}) is returned as a
// plain token - resolving the literal payload is the caller's job,
// because the payload bytes must be read raw off the connection and
// never pass through tokenization.
func Parse(line string) (tag string, command string, args []string, err error) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, ErrInvalidCommand
	}

	tag = parts[0]
	command = strings.ToUpper(parts[1])
	if len(parts) > 2 {
		args = tokenize(parts[2])
	}

	return tag, command, args, nil
}

// tokenize splits the argument portion of a command line into tokens,
// treating a double-quoted run as one token.
func tokenize(raw string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch == '"':
			if inQuotes {
				// Closing quote: emit even if empty ("" is a valid token).
				args = append(args, current.String())
				current.Reset()
			}
			inQuotes = !inQuotes
		case (ch == ' ' || ch == '\t') && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

// LiteralSize reports whether the token is a literal marker of the
// form {N} and, if so, the announced payload size.
func LiteralSize(token string) (int, bool) {
	if len(token) < 3 || token[0] != '{' || token[len(token)-1] != '}' {
		return 0, false
	}
	n, err := strconv.Atoi(token[1 : len(token)-1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
