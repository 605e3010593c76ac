// Package auth holds the bearer token used by the request client.
//
// Callers construct one Holder per process and pass it (as a TokenProvider or
// TokenStore) to everything that talks to the backend.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type TokenProvider interface {
	Token() (string, bool)
}

type TokenStore interface {
	TokenProvider
	Set(token string) error
	Clear() error
}

type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: strings.TrimSpace(token)}
}

func (s *MemoryStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// FileStore persists the token in a single file, readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("token file path required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(string(b))
	return tok, tok != ""
}

func (s *FileStore) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.Clear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// Holder is the auth state for a process. Reads go through the cached value;
// writes go to the backing store first.
type Holder struct {
	mu      sync.RWMutex
	store   TokenStore
	token   string
	loaded  bool
	onClear []func()
}

func NewHolder(store TokenStore) *Holder {
	if store == nil {
		store = NewMemoryStore("")
	}
	return &Holder{store: store}
}

func (h *Holder) Token() (string, bool) {
	h.mu.RLock()
	if h.loaded {
		tok := h.token
		h.mu.RUnlock()
		return tok, tok != ""
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		h.token, _ = h.store.Token()
		h.loaded = true
	}
	return h.token, h.token != ""
}

func (h *Holder) Set(token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Set(token); err != nil {
		return err
	}
	h.token = strings.TrimSpace(token)
	h.loaded = true
	return nil
}

func (h *Holder) Clear() error {
	h.mu.Lock()
	err := h.store.Clear()
	h.token = ""
	h.loaded = true
	hooks := append([]func(){}, h.onClear...)
	h.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return err
}

// OnClear registers fn to run after every Clear, e.g. to drop cached views.
func (h *Holder) OnClear(fn func()) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.onClear = append(h.onClear, fn)
	h.mu.Unlock()
}
