package storage

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

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

// fileStore keeps the collection as one JSON document:
//
//	{"version":1,"schedules":[...]}
//
// Save rewrites the whole document to <path>.tmp and renames it over <path>.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

type fileSnapshot struct {
	Version   int                 `json:"version"`
	Schedules []schedule.Schedule `json:"schedules"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{log: log, path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.writeLocked(nil); err != nil {
			return nil, err
		}
		log.Info("storage file created", logx.String("path", path))
	}
	return s, nil
}

func (s *fileStore) Load(ctx context.Context) ([]schedule.Schedule, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.readLocked()
}

func (s *fileStore) Save(ctx context.Context, all []schedule.Schedule) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeLocked(all)
}

func (s *fileStore) Exists(ctx context.Context, id string) (bool, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	for _, sc := range all {
		if sc.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) readLocked() ([]schedule.Schedule, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return snap.Schedules, nil
}

func (s *fileStore) writeLocked(all []schedule.Schedule) error {
	snap := fileSnapshot{Version: 1, Schedules: make([]schedule.Schedule, 0, len(all))}
	for _, sc := range all {
		snap.Schedules = append(snap.Schedules, persisted(sc))
	}
	return writeFileAtomic(s.path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	})
}

// writeFileAtomic writes via a sibling temp file and renames it into place.
func writeFileAtomic(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
