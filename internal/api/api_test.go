package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kestrel/internal/store"
)

func setupAPI(t *testing.T) (*APIServer, store.MailboxStore) {
	t.Helper()
	st, err := store.NewFilesystemStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	a, err := NewAPIServer(filepath.Join(t.TempDir(), "keys.db"), []byte("api-secret"), st, nil)
	if err != nil {
		t.Fatalf("Failed to create api server: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.AddKey("k-123", "ci"); err != nil {
		t.Fatalf("Failed to add api key: %v", err)
	}
	return a, st
}

func TestHealth(t *testing.T) {
	a, _ := setupAPI(t)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected health body: %s", rec.Body.String())
	}
}

func TestMailboxes_RequiresAuth(t *testing.T) {
	a, _ := setupAPI(t)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/mailboxes?user=alice", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes?user=alice", nil)
	req.Header.Set("X-API-Key", "wrong")
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad key, got %d", rec.Code)
	}
}

func TestMailboxes_RevokedKey(t *testing.T) {
	a, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes?user=alice", nil)
	req.Header.Set("X-API-Key", "k-123")

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected key to work before revocation, got %d", rec.Code)
	}

	if err := a.RevokeKey("k-123"); err != nil {
		t.Fatalf("Failed to revoke key: %v", err)
	}
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for revoked key, got %d", rec.Code)
	}

	// Re-adding the key reactivates it.
	if err := a.AddKey("k-123", "ci"); err != nil {
		t.Fatalf("Failed to re-add key: %v", err)
	}
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected re-added key to work, got %d", rec.Code)
	}
}

func TestMailboxes_APIKey(t *testing.T) {
	a, st := setupAPI(t)
	st.CreateMailbox("alice", "INBOX")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes?user=alice", nil)
	req.Header.Set("X-API-Key", "k-123")
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		User      string   `json:"user"`
		Mailboxes []string `json:"mailboxes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(body.Mailboxes) != 1 || body.Mailboxes[0] != "INBOX" {
		t.Errorf("Expected INBOX listing, got %+v", body)
	}
}

func TestMailboxes_BearerToken(t *testing.T) {
	a, _ := setupAPI(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("api-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes",
		strings.NewReader(`{"user":"bob","name":"Archive"}`))
	req.Header.Set("Authorization", "Bearer "+signed)
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMailboxes_BearerTokenWrongKey(t *testing.T) {
	a, _ := setupAPI(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes?user=alice", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for token with wrong key, got %d", rec.Code)
	}
}

func TestMailboxes_CreateAndDelete(t *testing.T) {
	a, st := setupAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes",
		strings.NewReader(`{"user":"carol","name":"INBOX"}`))
	req.Header.Set("X-API-Key", "k-123")
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if _, ok := st.GetMailboxStatus("carol", "INBOX"); !ok {
		t.Error("Expected mailbox to exist after create")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/mailboxes",
		strings.NewReader(`{"user":"carol","name":"INBOX"}`))
	req.Header.Set("X-API-Key", "k-123")
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if _, ok := st.GetMailboxStatus("carol", "INBOX"); ok {
		t.Error("Expected mailbox gone after delete")
	}
}

func TestMailboxes_DeleteAbsent(t *testing.T) {
	a, _ := setupAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/mailboxes",
		strings.NewReader(`{"user":"carol","name":"Nope"}`))
	req.Header.Set("X-API-Key", "k-123")
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestMailboxes_BadRequest(t *testing.T) {
	a, _ := setupAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes", strings.NewReader(`{`))
	req.Header.Set("X-API-Key", "k-123")
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}
