// Package file stores checkpoint keys in a single JSON document on disk.
// Every Set or Delete rewrites the document through a temp file and rename,
// so a crash never leaves a half-written file behind.
package file

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

	"sheetops/internal/kvstore"
)

// Store is a JSON-file backed kvstore.Store.
type Store struct {
	path   string
	prefix string

	mu sync.Mutex
}

// Open returns a Store for path. The file is created lazily on first Set.
func Open(path, prefix string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("kvstore/file: path must not be empty")
	}
	return &Store{path: path, prefix: prefix}, nil
}

func (s *Store) load() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore/file: read: %w", err)
	}
	m := map[string]string{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("kvstore/file: decode %s: %w", s.path, err)
	}
	return m, nil
}

func (s *Store) save(m map[string]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore/file: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvstore/file: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("kvstore/file: temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore/file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvstore/file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("kvstore/file: rename: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[s.prefix+key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[s.prefix+key] = value
	return s.save(m)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[s.prefix+key]; !ok {
		return nil
	}
	delete(m, s.prefix+key)
	return s.save(m)
}

func (s *Store) Close() error { return nil }

var _ kvstore.Store = (*Store)(nil)

func init() {
	kvstore.Register("file", func(_ context.Context, cfg kvstore.Config) (kvstore.Store, error) {
		return Open(cfg.DSN, cfg.Prefix)
	})
}
