package auth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Tyrowin/collabocanvas/internal/log"
)

// ErrUserExists is returned by Add when the username is already taken.
var ErrUserExists = errors.New("auth: user already exists")

// Credential is one registered account.
type Credential struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Hash     []byte `json:"hash"`
}

// Store keeps credentials.
type Store interface {
	Lookup(ctx context.Context, username string) (Credential, bool, error)
	Add(ctx context.Context, c Credential) error
}

// FileStore keeps one JSON credential per line in a flat file. The file is
// read once on open; Add appends.
type FileStore struct {
	path string

	mu    sync.RWMutex
	users map[string]Credential
}

// OpenFileStore loads path, creating it if it does not exist. Malformed
// lines are logged and skipped.
func OpenFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("auth: create credentials dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("auth: open credentials: %w", err)
	}
	defer f.Close()

	s := &FileStore{path: path, users: make(map[string]Credential)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var c Credential
		if err := json.Unmarshal(raw, &c); err != nil || c.Username == "" {
			log.Warn("skipping malformed credential record", "file", path, "line", line, "err", err)
			continue
		}
		s.users[c.Username] = c
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("auth: read credentials: %w", err)
	}
	return s, nil
}

// Len reports the number of registered accounts.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Lookup returns the credential for username.
func (s *FileStore) Lookup(_ context.Context, username string) (Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.users[username]
	return c, ok, nil
}

// Add appends c to the file and the in-memory index.
func (s *FileStore) Add(ctx context.Context, c Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("auth: encode credential: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.Username]; ok {
		return ErrUserExists
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("auth: open credentials: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("auth: append credential: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("auth: close credentials: %w", err)
	}

	s.users[c.Username] = c
	return nil
}
