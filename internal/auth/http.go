package auth

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// HTTPMechanism authenticates against an external auth server by
// posting the credentials as JSON. A 200 response means the pair is
// valid; anything else (including transport errors) is a failed
// authentication.
type HTTPMechanism struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// NewHTTPMechanism creates a mechanism that validates credentials
// against the auth server at url.
func NewHTTPMechanism(url string, logger *log.Logger) *HTTPMechanism {
	return &HTTPMechanism{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *HTTPMechanism) Authenticate(username, secret string) bool {
	body, err := json.Marshal(authRequest{Email: username, Password: secret})
	if err != nil {
		return false
	}

	resp, err := h.client.Post(h.url, "application/json", bytes.NewReader(body))
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("auth server unreachable: %v", err)
		}
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}
