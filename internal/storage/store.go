// Package storage persists canvas snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Tyrowin/collabocanvas/internal/shape"
)

// Store defines the interface for canvas snapshot storage.
type Store interface {
	// Save writes shapes under name, replacing any previous snapshot.
	Save(ctx context.Context, name string, shapes []shape.Shape) error

	// Load reads the snapshot stored under name.
	Load(ctx context.Context, name string) ([]shape.Shape, error)

	// List returns the stored snapshot names, sorted.
	List(ctx context.Context) ([]string, error)
}

var (
	ErrInvalidName = errors.New("invalid canvas name")
	ErrNotFound    = errors.New("canvas not found")
)

// PersistenceError wraps any failure to read or write a snapshot.
type PersistenceError struct {
	Op   string
	Name string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

const extension = ".json"

// snapshot is the on-disk document.
type snapshot struct {
	SavedAt string        `json:"savedAt,omitempty"`
	Shapes  []shape.Shape `json:"shapes"`
}

// FileStore keeps one JSON document per canvas in a directory.
type FileStore struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &PersistenceError{Op: "init", Name: dir, Err: err}
	}
	return &FileStore{root: dir, now: time.Now}, nil
}

// Root returns the directory snapshots are written to.
func (s *FileStore) Root() string { return s.root }

// CleanName reduces a client supplied name to a bare file name with the
// .json extension. Names with path components are rejected.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", ErrInvalidName
	}
	if strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	if !strings.EqualFold(filepath.Ext(name), extension) {
		name += extension
	}
	return name, nil
}

func (s *FileStore) path(name string) (string, string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, clean), nil
}

// Save writes the snapshot to a temp file and renames it into place.
func (s *FileStore) Save(ctx context.Context, name string, shapes []shape.Shape) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "save", Name: name, Err: err}
	}
	clean, path, err := s.path(name)
	if err != nil {
		return &PersistenceError{Op: "save", Name: name, Err: err}
	}
	if shapes == nil {
		shapes = []shape.Shape{}
	}

	data, err := json.MarshalIndent(snapshot{
		SavedAt: s.now().UTC().Format(time.RFC3339),
		Shapes:  shapes,
	}, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Name: clean, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.root, "."+clean+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "save", Name: clean, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Name: clean, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Name: clean, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Name: clean, Err: err}
	}
	return nil
}

// Load reads a snapshot back.
func (s *FileStore) Load(ctx context.Context, name string) ([]shape.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Name: name, Err: err}
	}
	clean, path, err := s.path(name)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Name: name, Err: err}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &PersistenceError{Op: "load", Name: clean, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Name: clean, Err: err}
	}

	var doc snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &PersistenceError{Op: "load", Name: clean, Err: err}
	}
	if doc.Shapes == nil {
		doc.Shapes = []shape.Shape{}
	}
	return doc.Shapes, nil
}

// List returns every stored canvas name.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Name: s.root, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.EqualFold(filepath.Ext(n), extension) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
