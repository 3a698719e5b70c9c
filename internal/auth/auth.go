package auth

import (
	"strings"
	"sync"
)

// Mechanism authenticates one credential pair. Implementations must be
// safe for concurrent use; a call carries no session state.
type Mechanism interface {
	Authenticate(username, secret string) bool
}

// Verifier resolves a mechanism by name and delegates the credential
// check. Mechanism names are case-insensitive. An unknown mechanism
// yields false, indistinguishable from bad credentials, so clients
// cannot probe which mechanisms exist.
type Verifier struct {
	mu    sync.RWMutex
	mechs map[string]Mechanism
}

// NewVerifier creates an empty verifier. Mechanisms are registered at
// configuration time.
func NewVerifier() *Verifier {
	return &Verifier{mechs: make(map[string]Mechanism)}
}

// Register adds a mechanism under the given name, replacing any
// previous registration for that name.
func (v *Verifier) Register(name string, m Mechanism) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mechs[strings.ToUpper(name)] = m
}

// Authenticate checks the credential pair against the named mechanism.
func (v *Verifier) Authenticate(mechanism, username, secret string) bool {
	v.mu.RLock()
	m, ok := v.mechs[strings.ToUpper(mechanism)]
	v.mu.RUnlock()
	if !ok {
		return false
	}
	return m.Authenticate(username, secret)
}

// StaticMechanism checks credentials against a fixed in-memory table.
type StaticMechanism struct {
	credentials map[string]string
}

// NewStaticMechanism builds a static mechanism from a username to
// password map. A nil map yields the default test account.
func NewStaticMechanism(credentials map[string]string) *StaticMechanism {
	if credentials == nil {
		credentials = map[string]string{"test": "test"}
	}
	return &StaticMechanism{credentials: credentials}
}

func (s *StaticMechanism) Authenticate(username, secret string) bool {
	password, ok := s.credentials[username]
	return ok && password == secret
}
