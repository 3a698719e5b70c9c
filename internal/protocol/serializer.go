package protocol

import (
	"fmt"
	"strings"
)

// Response serialization for the wire protocol. Every response is a
// single CRLF-terminated line; FETCH literal payloads are written by
// the handler directly after the announcing line.

// OK formats a tagged success response.
func OK(tag, message string) string {
	return fmt.Sprintf("%s OK %s\r\n", tag, message)
}

// Bad formats a tagged failure response.
func Bad(tag, message string) string {
	return fmt.Sprintf("%s BAD %s\r\n", tag, message)
}

// Untagged formats an untagged status or data line.
func Untagged(message string) string {
	return fmt.Sprintf("* %s\r\n", message)
}

// Capability formats the capability listing.
func Capability(capabilities []string) string {
	return fmt.Sprintf("* CAPABILITY %s\r\n", strings.Join(capabilities, " "))
}

// Bye formats the session-termination notice sent before LOGOUT
// completes.
func Bye(message string) string {
	return fmt.Sprintf("* BYE %s\r\n", message)
}

// Continuation formats the prompt that tells the client to start
// sending literal payload bytes.
func Continuation() string {
	return "+ \r\n"
}
