package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store holds the single active session of the console.
type Store interface {
	Load() (*Session, error)
	Save(session *Session) error
	Clear() error
}

// MemoryStore keeps the session for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	session *Session
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored session, or nil when there is none.
func (m *MemoryStore) Load() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStore) Save(session *Session) error {
	if session == nil {
		return errors.New("[MemoryStore.Save] session is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy so callers cannot mutate the stored value
	s := *session
	m.session = &s
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileStore persists the session as JSON so it survives between CLI runs.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[FileStore.Load] failed to read %s", f.path)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "[FileStore.Load] failed to decode %s", f.path)
	}
	return &s, nil
}

func (f *FileStore) Save(session *Session) error {
	if session == nil {
		return errors.New("[FileStore.Save] session is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.Save] failed to create folder")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[FileStore.Save] failed to encode session")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Save] failed to write session")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "[FileStore.Save] failed to replace session")
	}
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] failed to remove session")
	}
	return nil
}
