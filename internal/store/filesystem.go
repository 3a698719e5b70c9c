package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	metadataFile = ".metadata.json"
	epochFile    = ".epoch"
)

// FilesystemStore keeps each mailbox as a directory of <uid>.eml files
// under <base>/<user>/<mailbox>/. Counters live in a metadata file per
// mailbox; flags live in a <uid>.flags sidecar next to each message.
// All writes go through a temp file and rename, so a crashed writer
// leaves either no message or a complete one.
type FilesystemStore struct {
	base   string
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type mailboxMetadata struct {
	UIDNext     int64 `json:"uidnext"`
	UIDValidity int64 `json:"uidvalidity"`
}

// NewFilesystemStore creates a store rooted at base, creating the
// directory if needed.
func NewFilesystemStore(base string, logger *log.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", base, err)
	}
	return &FilesystemStore{
		base:   base,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (f *FilesystemStore) lockFor(user, name string) *sync.Mutex {
	key := user + "\x00" + name
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[key]
	if !ok {
		l = &sync.Mutex{}
		f.locks[key] = l
	}
	return l
}

func (f *FilesystemStore) logf(format string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}

func (f *FilesystemStore) mailboxDir(user, name string) string {
	return filepath.Join(f.base, user, name)
}

func (f *FilesystemStore) CreateMailbox(user, name string) bool {
	lock := f.lockFor(user, name)
	lock.Lock()
	defer lock.Unlock()

	dir := f.mailboxDir(user, name)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err == nil {
		return true
	}

	validity, ok := f.nextValidity(user)
	if !ok {
		return false
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		f.logf("Failed to create mailbox directory %s: %v", dir, err)
		return false
	}
	return f.writeMetadata(dir, mailboxMetadata{UIDNext: 1, UIDValidity: validity})
}

// nextValidity advances the user's epoch counter, stored in a file at
// the user directory root. The first mailbox a user ever creates gets
// validity 1.
func (f *FilesystemStore) nextValidity(user string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	userDir := filepath.Join(f.base, user)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		f.logf("Failed to create user directory %s: %v", userDir, err)
		return 0, false
	}

	path := filepath.Join(userDir, epochFile)
	var next int64 = 1
	if data, err := os.ReadFile(path); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			next = v
		}
	}

	if !writeFileAtomic(path, []byte(strconv.FormatInt(next+1, 10))) {
		f.logf("Failed to advance epoch counter for %s", user)
		return 0, false
	}
	return next, true
}

func (f *FilesystemStore) DeleteMailbox(user, name string) bool {
	lock := f.lockFor(user, name)
	lock.Lock()
	defer lock.Unlock()

	dir := f.mailboxDir(user, name)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		f.logf("Failed to delete mailbox %s: %v", dir, err)
		return false
	}
	return true
}

func (f *FilesystemStore) ListMailboxes(user, pattern string) []string {
	entries, err := os.ReadDir(filepath.Join(f.base, user))
	if err != nil {
		return []string{}
	}

	names := []string{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if MatchPattern(e.Name(), pattern) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (f *FilesystemStore) GetMailboxStatus(user, name string) (Status, bool) {
	dir := f.mailboxDir(user, name)
	meta, ok := f.readMetadata(dir)
	if !ok {
		return Status{}, false
	}

	status := Status{UIDNext: meta.UIDNext, UIDValidity: meta.UIDValidity}
	for _, uid := range f.listUIDs(dir) {
		status.Messages++
		if !hasFlag(f.readFlags(dir, uid), FlagSeen) {
			status.Unseen++
		}
	}
	status.Recent = status.Unseen
	return status, true
}

func (f *FilesystemStore) AppendMessage(user, name string, content []byte, flags []string) (int64, bool) {
	lock := f.lockFor(user, name)
	lock.Lock()
	defer lock.Unlock()

	dir := f.mailboxDir(user, name)
	meta, ok := f.readMetadata(dir)
	if !ok {
		return 0, false
	}

	uid := meta.UIDNext
	meta.UIDNext++
	if !f.writeMetadata(dir, meta) {
		return 0, false
	}

	if !writeFileAtomic(filepath.Join(dir, fmt.Sprintf("%d.eml", uid)), content) {
		f.logf("Failed to write message %s uid %d", dir, uid)
		return 0, false
	}
	if len(flags) > 0 && !f.writeFlags(dir, uid, flags) {
		return 0, false
	}
	return uid, true
}

func (f *FilesystemStore) GetMessage(user, name string, uid int64) (Message, bool) {
	dir := f.mailboxDir(user, name)
	content, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d.eml", uid)))
	if err != nil {
		return Message{}, false
	}
	return Message{UID: uid, Content: content, Flags: f.readFlags(dir, uid)}, true
}

func (f *FilesystemStore) SearchMessages(user, name string, criteria Criteria) []int64 {
	dir := f.mailboxDir(user, name)
	uids := []int64{}
	for _, uid := range f.listUIDs(dir) {
		if criteria.Unseen && hasFlag(f.readFlags(dir, uid), FlagSeen) {
			continue
		}
		uids = append(uids, uid)
	}
	return uids
}

func (f *FilesystemStore) UpdateFlags(user, name string, uids []int64, flags []string, mode FlagMode) bool {
	lock := f.lockFor(user, name)
	lock.Lock()
	defer lock.Unlock()

	dir := f.mailboxDir(user, name)
	if _, ok := f.readMetadata(dir); !ok {
		return false
	}

	for _, uid := range uids {
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%d.eml", uid))); err != nil {
			continue
		}
		updated := applyFlags(f.readFlags(dir, uid), flags, mode)
		if !f.writeFlags(dir, uid, updated) {
			return false
		}
	}
	return true
}

func (f *FilesystemStore) listUIDs(dir string) []int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	uids := []int64{}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".eml") {
			continue
		}
		uid, err := strconv.ParseInt(strings.TrimSuffix(e.Name(), ".eml"), 10, 64)
		if err != nil {
			continue
		}
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

func (f *FilesystemStore) readMetadata(dir string) (mailboxMetadata, bool) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return mailboxMetadata{}, false
	}
	var meta mailboxMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		f.logf("Corrupt metadata in %s: %v", dir, err)
		return mailboxMetadata{}, false
	}
	return meta, true
}

func (f *FilesystemStore) writeMetadata(dir string, meta mailboxMetadata) bool {
	data, err := json.Marshal(meta)
	if err != nil {
		return false
	}
	if !writeFileAtomic(filepath.Join(dir, metadataFile), data) {
		f.logf("Failed to write metadata in %s", dir)
		return false
	}
	return true
}

func (f *FilesystemStore) readFlags(dir string, uid int64) []string {
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d.flags", uid)))
	if err != nil {
		return []string{}
	}
	return splitFlags(string(data))
}

func (f *FilesystemStore) writeFlags(dir string, uid int64, flags []string) bool {
	path := filepath.Join(dir, fmt.Sprintf("%d.flags", uid))
	if len(flags) == 0 {
		_ = os.Remove(path)
		return true
	}
	if !writeFileAtomic(path, []byte(strings.Join(flags, " "))) {
		f.logf("Failed to write flags %s", path)
		return false
	}
	return true
}

func writeFileAtomic(path string, data []byte) bool {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return false
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return false
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return false
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return false
	}
	return true
}
