package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"kestrel/internal/store"
)

const keySchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	key TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// APIServer is the management HTTP surface: health probing and
// mailbox administration. Requests authenticate with either an API
// key from the keys database or a bearer token signed with the
// configured secret.
type APIServer struct {
	db     *sql.DB
	secret []byte
	store  store.MailboxStore
	logger *log.Logger
}

// NewAPIServer opens (or creates) the API key database at keysPath.
func NewAPIServer(keysPath string, secret []byte, st store.MailboxStore, logger *log.Logger) (*APIServer, error) {
	db, err := sql.Open("sqlite3", keysPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open keys database %s: %w", keysPath, err)
	}
	if _, err := db.Exec(keySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize keys schema: %w", err)
	}
	return &APIServer{db: db, secret: secret, store: st, logger: logger}, nil
}

// Close releases the keys database.
func (a *APIServer) Close() error {
	return a.db.Close()
}

// AddKey registers an API key under a display name. Re-adding a
// revoked key reactivates it.
func (a *APIServer) AddKey(key, name string) error {
	_, err := a.db.Exec(`INSERT OR REPLACE INTO api_keys (key, name, active) VALUES (?, ?, 1)`, key, name)
	return err
}

// RevokeKey deactivates an API key without deleting its record.
func (a *APIServer) RevokeKey(key string) error {
	_, err := a.db.Exec(`UPDATE api_keys SET active = 0 WHERE key = ?`, key)
	return err
}

// Handler builds the route table.
func (a *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/v1/mailboxes", a.requireAuth(a.handleMailboxes))
	return mux
}

func (a *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth accepts an X-API-Key header or an Authorization bearer
// token. Both failures answer 401 without detail.
func (a *APIServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key != "" && a.validKey(key) {
			next(w, r)
			return
		}
		if raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); raw != r.Header.Get("Authorization") {
			if a.validToken(raw) {
				next(w, r)
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

func (a *APIServer) validKey(key string) bool {
	var name string
	err := a.db.QueryRow(`SELECT name FROM api_keys WHERE key = ? AND active = 1`, key).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		a.logf("Failed to look up api key: %v", err)
		return false
	}
	return true
}

func (a *APIServer) validToken(raw string) bool {
	if len(a.secret) == 0 {
		return false
	}
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid
}

type mailboxRequest struct {
	User string `json:"user"`
	Name string `json:"name"`
}

func (a *APIServer) handleMailboxes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user := r.URL.Query().Get("user")
		if user == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user parameter required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user":      user,
			"mailboxes": a.store.ListMailboxes(user, "*"),
		})

	case http.MethodPost:
		var req mailboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" || req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user and name required"})
			return
		}
		if !a.store.CreateMailbox(req.User, req.Name) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "mailbox creation failed"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"user": req.User, "name": req.Name})

	case http.MethodDelete:
		var req mailboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" || req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user and name required"})
			return
		}
		if !a.store.DeleteMailbox(req.User, req.Name) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such mailbox"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"user": req.User, "name": req.Name})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (a *APIServer) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
