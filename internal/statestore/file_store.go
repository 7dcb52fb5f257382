package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
)

// FileStore is a domain.StateStore that keeps one JSON file per task under a
// directory. Writes go through a temp file + rename so a concurrent reader
// sees either the previous or the new snapshot in full.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir when missing and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

var _ domain.StateStore = (*FileStore)(nil)

func (s *FileStore) path(taskID string) string {
	// Task ids are caller-supplied. Map everything outside a conservative
	// filename alphabet to '_' so separators and the ':' namespace prefix
	// cannot form path elements; the file always lands directly under dir.
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '.', r == '_':
			return r
		default:
			return '_'
		}
	}, Key(taskID)) + ".json"
	return filepath.Join(s.dir, name)
}

// Save replaces the stored snapshot for state.TaskID.
func (s *FileStore) Save(_ context.Context, state *domain.TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal task state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(state.TaskID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write task state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace task state: %w", err)
	}
	return nil
}

// Get returns the latest snapshot or domain.ErrTaskNotFound.
func (s *FileStore) Get(_ context.Context, taskID string) (*domain.TaskState, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("read task state: %w", err)
	}

	var state domain.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode task state: %w", err)
	}
	return &state, nil
}
