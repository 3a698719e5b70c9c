package server

import (
	"io"
	"log"
	"net"
	"testing"
	"time"

	"kestrel/internal/auth"
	"kestrel/internal/pipeline"
	"kestrel/internal/store"
)

// MockConn implements net.Conn over in-memory buffers.
type MockConn struct {
	readBuffer  []byte
	writeBuffer []byte
	readPos     int
	closed      bool
}

func NewMockConn() *MockConn {
	return &MockConn{
		readBuffer:  make([]byte, 0),
		writeBuffer: make([]byte, 0),
	}
}

func (m *MockConn) Read(b []byte) (int, error) {
	if m.readPos >= len(m.readBuffer) {
		return 0, net.ErrClosed
	}
	n := copy(b, m.readBuffer[m.readPos:])
	m.readPos += n
	return n, nil
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.writeBuffer = append(m.writeBuffer, b...)
	return len(b), nil
}

func (m *MockConn) Close() error {
	m.closed = true
	return nil
}

func (m *MockConn) LocalAddr() net.Addr                { return nil }
func (m *MockConn) RemoteAddr() net.Addr               { return nil }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *MockConn) GetWrittenData() string {
	return string(m.writeBuffer)
}

func (m *MockConn) AddReadData(data string) {
	m.readBuffer = append(m.readBuffer, []byte(data)...)
}

// setupTestServer builds a server over a fresh filesystem store with
// the default test account and no pipeline stages.
func setupTestServer(t *testing.T) (*IMAPServer, store.MailboxStore) {
	t.Helper()

	st, err := store.NewFilesystemStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	verifier := auth.NewVerifier()
	verifier.Register("PLAIN", auth.NewStaticMechanism(nil))

	logger := log.New(io.Discard, "", 0)
	return NewIMAPServer(st, verifier, pipeline.New(logger), logger), st
}

// runSession feeds the script to a fresh connection and returns
// everything the server wrote.
func runSession(t *testing.T, s *IMAPServer, script string) string {
	t.Helper()
	conn := NewMockConn()
	conn.AddReadData(script)
	s.HandleConnection(conn)
	return conn.GetWrittenData()
}
