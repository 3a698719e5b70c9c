package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"kestrel/internal/blobstorage"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mailboxes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user TEXT NOT NULL,
	name TEXT NOT NULL,
	uid_validity INTEGER NOT NULL,
	uid_next INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user, name)
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mailbox_id INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	content BLOB,
	blob_key TEXT NOT NULL DEFAULT '',
	flags TEXT NOT NULL DEFAULT '',
	internal_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(mailbox_id, uid),
	FOREIGN KEY (mailbox_id) REFERENCES mailboxes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_mailbox_uid ON messages(mailbox_id, uid);

CREATE TABLE IF NOT EXISTS uid_epochs (
	user TEXT PRIMARY KEY,
	next_validity INTEGER NOT NULL
);
`

// SQLiteStore keeps mailbox metadata and message content in a single
// SQLite database. When blob storage is configured, message content is
// offloaded there and only the key is kept in the messages table.
type SQLiteStore struct {
	db     *sql.DB
	blobs  blobstorage.BlobStorage
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and applies
// the schema. blobs may be nil to keep content inline.
func NewSQLiteStore(path string, blobs blobstorage.BlobStorage, logger *log.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		blobs:  blobs,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// lockFor returns the serialization mutex for one user's mailbox. Uid
// allocation and message persistence happen under this lock so a uid is
// never observed before its message is durable.
func (s *SQLiteStore) lockFor(user, name string) *sync.Mutex {
	key := user + "\x00" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *SQLiteStore) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *SQLiteStore) CreateMailbox(user, name string) bool {
	tx, err := s.db.Begin()
	if err != nil {
		s.logf("Failed to begin transaction: %v", err)
		return false
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRow(`SELECT id FROM mailboxes WHERE user = ? AND name = ?`, user, name).Scan(&id)
	if err == nil {
		// Already exists; counters stay untouched.
		return true
	}
	if err != sql.ErrNoRows {
		s.logf("Failed to look up mailbox %s/%s: %v", user, name, err)
		return false
	}

	validity, err := nextValidity(tx, user)
	if err != nil {
		s.logf("Failed to allocate uidvalidity for %s: %v", user, err)
		return false
	}

	_, err = tx.Exec(`INSERT INTO mailboxes (user, name, uid_validity, uid_next) VALUES (?, ?, ?, 1)`,
		user, name, validity)
	if err != nil {
		s.logf("Failed to create mailbox %s/%s: %v", user, name, err)
		return false
	}

	if err := tx.Commit(); err != nil {
		s.logf("Failed to commit mailbox creation: %v", err)
		return false
	}
	return true
}

// nextValidity hands out the user's next uidvalidity epoch, starting
// at 1. Recreating a deleted mailbox therefore always gets a value its
// earlier incarnation never had.
func nextValidity(tx *sql.Tx, user string) (int64, error) {
	var v int64
	err := tx.QueryRow(`SELECT next_validity FROM uid_epochs WHERE user = ?`, user).Scan(&v)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO uid_epochs (user, next_validity) VALUES (?, 2)`, user); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`UPDATE uid_epochs SET next_validity = ? WHERE user = ?`, v+1, user); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *SQLiteStore) DeleteMailbox(user, name string) bool {
	tx, err := s.db.Begin()
	if err != nil {
		s.logf("Failed to begin transaction: %v", err)
		return false
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRow(`SELECT id FROM mailboxes WHERE user = ? AND name = ?`, user, name).Scan(&id)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		s.logf("Failed to look up mailbox %s/%s: %v", user, name, err)
		return false
	}

	blobKeys := []string{}
	if s.blobs != nil {
		rows, err := tx.Query(`SELECT blob_key FROM messages WHERE mailbox_id = ? AND blob_key != ''`, id)
		if err != nil {
			s.logf("Failed to list blob keys for %s/%s: %v", user, name, err)
			return false
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err == nil {
				blobKeys = append(blobKeys, key)
			}
		}
		_ = rows.Close()
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE mailbox_id = ?`, id); err != nil {
		s.logf("Failed to delete messages for %s/%s: %v", user, name, err)
		return false
	}
	if _, err := tx.Exec(`DELETE FROM mailboxes WHERE id = ?`, id); err != nil {
		s.logf("Failed to delete mailbox %s/%s: %v", user, name, err)
		return false
	}
	if err := tx.Commit(); err != nil {
		s.logf("Failed to commit mailbox deletion: %v", err)
		return false
	}

	// Blob cleanup is best effort; orphaned objects are harmless.
	for _, key := range blobKeys {
		if err := s.blobs.Delete(context.Background(), key); err != nil {
			s.logf("Failed to delete blob %s: %v", key, err)
		}
	}
	return true
}

func (s *SQLiteStore) ListMailboxes(user, pattern string) []string {
	rows, err := s.db.Query(`SELECT name FROM mailboxes WHERE user = ? ORDER BY name`, user)
	if err != nil {
		s.logf("Failed to list mailboxes for %s: %v", user, err)
		return []string{}
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		if MatchPattern(name, pattern) {
			names = append(names, name)
		}
	}
	return names
}

func (s *SQLiteStore) GetMailboxStatus(user, name string) (Status, bool) {
	var id int64
	var status Status
	err := s.db.QueryRow(`SELECT id, uid_next, uid_validity FROM mailboxes WHERE user = ? AND name = ?`,
		user, name).Scan(&id, &status.UIDNext, &status.UIDValidity)
	if err == sql.ErrNoRows {
		return Status{}, false
	}
	if err != nil {
		s.logf("Failed to read mailbox %s/%s: %v", user, name, err)
		return Status{}, false
	}

	// Flags are compared token-wise, not by substring, so the counts
	// agree with SearchMessages for any flag vocabulary.
	rows, err := s.db.Query(`SELECT flags FROM messages WHERE mailbox_id = ?`, id)
	if err != nil {
		s.logf("Failed to count messages for %s/%s: %v", user, name, err)
		return Status{}, false
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var flags string
		if err := rows.Scan(&flags); err != nil {
			continue
		}
		status.Messages++
		if !hasFlag(splitFlags(flags), FlagSeen) {
			status.Unseen++
		}
	}
	status.Recent = status.Unseen
	return status, true
}

func (s *SQLiteStore) AppendMessage(user, name string, content []byte, flags []string) (int64, bool) {
	lock := s.lockFor(user, name)
	lock.Lock()
	defer lock.Unlock()

	var id, uid int64
	err := s.db.QueryRow(`SELECT id, uid_next FROM mailboxes WHERE user = ? AND name = ?`,
		user, name).Scan(&id, &uid)
	if err == sql.ErrNoRows {
		return 0, false
	}
	if err != nil {
		s.logf("Failed to read mailbox %s/%s: %v", user, name, err)
		return 0, false
	}

	blobKey := ""
	stored := content
	if s.blobs != nil {
		blobKey = fmt.Sprintf("%s/%s/%d", user, name, uid)
		if err := s.blobs.Put(context.Background(), blobKey, content); err != nil {
			s.logf("Failed to store blob %s: %v", blobKey, err)
			return 0, false
		}
		stored = nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logf("Failed to begin transaction: %v", err)
		return 0, false
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO messages (mailbox_id, uid, content, blob_key, flags) VALUES (?, ?, ?, ?, ?)`,
		id, uid, stored, blobKey, strings.Join(flags, " "))
	if err != nil {
		s.logf("Failed to insert message %s/%s uid %d: %v", user, name, uid, err)
		return 0, false
	}
	if _, err := tx.Exec(`UPDATE mailboxes SET uid_next = ? WHERE id = ?`, uid+1, id); err != nil {
		s.logf("Failed to advance uid_next for %s/%s: %v", user, name, err)
		return 0, false
	}
	if err := tx.Commit(); err != nil {
		s.logf("Failed to commit append for %s/%s: %v", user, name, err)
		return 0, false
	}
	return uid, true
}

func (s *SQLiteStore) GetMessage(user, name string, uid int64) (Message, bool) {
	var content []byte
	var blobKey, flags string
	err := s.db.QueryRow(`
		SELECT m.content, m.blob_key, m.flags
		FROM messages m JOIN mailboxes b ON m.mailbox_id = b.id
		WHERE b.user = ? AND b.name = ? AND m.uid = ?`,
		user, name, uid).Scan(&content, &blobKey, &flags)
	if err == sql.ErrNoRows {
		return Message{}, false
	}
	if err != nil {
		s.logf("Failed to read message %s/%s uid %d: %v", user, name, uid, err)
		return Message{}, false
	}

	if blobKey != "" && s.blobs != nil {
		data, err := s.blobs.Get(context.Background(), blobKey)
		if err != nil {
			s.logf("Failed to fetch blob %s: %v", blobKey, err)
			return Message{}, false
		}
		content = data
	}

	return Message{UID: uid, Content: content, Flags: splitFlags(flags)}, true
}

func (s *SQLiteStore) SearchMessages(user, name string, criteria Criteria) []int64 {
	query := `
		SELECT m.uid, m.flags
		FROM messages m JOIN mailboxes b ON m.mailbox_id = b.id
		WHERE b.user = ? AND b.name = ?
		ORDER BY m.uid`
	rows, err := s.db.Query(query, user, name)
	if err != nil {
		s.logf("Failed to search messages in %s/%s: %v", user, name, err)
		return []int64{}
	}
	defer func() { _ = rows.Close() }()

	uids := []int64{}
	for rows.Next() {
		var uid int64
		var flags string
		if err := rows.Scan(&uid, &flags); err != nil {
			continue
		}
		if criteria.Unseen && hasFlag(splitFlags(flags), FlagSeen) {
			continue
		}
		uids = append(uids, uid)
	}
	return uids
}

func (s *SQLiteStore) UpdateFlags(user, name string, uids []int64, flags []string, mode FlagMode) bool {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM mailboxes WHERE user = ? AND name = ?`, user, name).Scan(&id)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logf("Failed to look up mailbox %s/%s: %v", user, name, err)
		}
		return false
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logf("Failed to begin transaction: %v", err)
		return false
	}
	defer func() { _ = tx.Rollback() }()

	for _, uid := range uids {
		var current string
		err := tx.QueryRow(`SELECT flags FROM messages WHERE mailbox_id = ? AND uid = ?`, id, uid).Scan(&current)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			s.logf("Failed to read flags for %s/%s uid %d: %v", user, name, uid, err)
			return false
		}
		updated := applyFlags(splitFlags(current), flags, mode)
		if _, err := tx.Exec(`UPDATE messages SET flags = ? WHERE mailbox_id = ? AND uid = ?`,
			strings.Join(updated, " "), id, uid); err != nil {
			s.logf("Failed to update flags for %s/%s uid %d: %v", user, name, uid, err)
			return false
		}
	}

	if err := tx.Commit(); err != nil {
		s.logf("Failed to commit flag update: %v", err)
		return false
	}
	return true
}

func splitFlags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Fields(raw)
}
