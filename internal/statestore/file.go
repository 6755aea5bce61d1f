package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/local/tileview/internal/view"
)

// FileStore keeps every state in one JSON file, keyed by document then view.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

type fileData map[string]map[string]view.State

func (s *FileStore) read() (fileData, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	data := fileData{}
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) Load(_ context.Context, doc, viewName string) (view.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read()
	if err != nil {
		return view.State{}, err
	}
	st, ok := data[doc][viewName]
	if !ok {
		return view.State{}, ErrNotFound
	}
	return st, nil
}

func (s *FileStore) Save(_ context.Context, doc, viewName string, st view.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read()
	if err != nil {
		return err
	}
	if data[doc] == nil {
		data[doc] = map[string]view.State{}
	}
	data[doc][viewName] = st
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Ping checks that the state file, if present, is readable.
func (s *FileStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.read()
	return err
}

func (s *FileStore) Close() error { return nil }
