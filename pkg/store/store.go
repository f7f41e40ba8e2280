// Package store persists the relay's monitored channels and its forwarding
// target.
//
// The on-disk form is a small JSON document with exactly two fields:
//
//	{"channels": [int64, ...], "target_channel": int64 | null}
//
// Every mutation rewrites the whole document through a temp file and rename,
// so a crash leaves either the previous or the new state on disk.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tinyland-inc/chanrelay/pkg/logger"
)

var (
	// ErrStorageCorrupt is returned by Load when the backing file exists but
	// cannot be parsed. It is never healed automatically.
	ErrStorageCorrupt = errors.New("storage corrupt")
	// ErrFeedbackLoop is returned by SetTarget when the requested target is a
	// monitored source.
	ErrFeedbackLoop = errors.New("target channel is a monitored source")
)

// document is the persisted form.
type document struct {
	Channels      []int64 `json:"channels"`
	TargetChannel *int64  `json:"target_channel"`
}

// Store is the in-memory mirror of the persisted configuration. Reads never
// touch the disk; writes hold the lock across the persist.
type Store struct {
	path string

	mu       sync.RWMutex
	channels []int64
	members  map[int64]struct{}
	target   *int64
}

// Load reads the configuration at path. A missing file yields the default
// configuration (no channels, no target), which is persisted immediately.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		members: make(map[int64]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		logger.InfoCF("store", "No configuration found, creating default", map[string]any{
			"path": path,
		})
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageCorrupt, path, err)
	}

	for _, id := range doc.Channels {
		if _, dup := s.members[id]; dup {
			continue
		}
		s.members[id] = struct{}{}
		s.channels = append(s.channels, id)
	}
	s.target = doc.TargetChannel

	logger.InfoCF("store", "Configuration loaded", map[string]any{
		"path":     path,
		"channels": len(s.channels),
		"target":   s.targetField(),
	})
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// AddSource adds id to the monitored set. It reports whether id was newly
// added; an already-monitored id is a no-op without I/O.
func (s *Store) AddSource(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; ok {
		return false, nil
	}

	s.members[id] = struct{}{}
	s.channels = append(s.channels, id)
	if err := s.persistLocked(); err != nil {
		delete(s.members, id)
		s.channels = s.channels[:len(s.channels)-1]
		return false, err
	}

	logger.InfoCF("store", "Source added", map[string]any{"source_id": id})
	return true, nil
}

// RemoveSource removes id from the monitored set. It reports whether id was
// present.
func (s *Store) RemoveSource(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.Index(s.channels, id)
	if idx < 0 {
		return false, nil
	}

	prev := slices.Clone(s.channels)
	delete(s.members, id)
	s.channels = slices.Delete(s.channels, idx, idx+1)
	if err := s.persistLocked(); err != nil {
		s.members[id] = struct{}{}
		s.channels = prev
		return false, err
	}

	logger.InfoCF("store", "Source removed", map[string]any{"source_id": id})
	return true, nil
}

// SetTarget overwrites the forwarding target. A target that is currently a
// monitored source is refused with ErrFeedbackLoop.
func (s *Store) SetTarget(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; ok {
		return fmt.Errorf("%w: %d", ErrFeedbackLoop, id)
	}

	prev := s.target
	s.target = &id
	if err := s.persistLocked(); err != nil {
		s.target = prev
		return err
	}

	logger.InfoCF("store", "Target set", map[string]any{"target": id})
	return nil
}

// Sources returns a copy of the monitored set in insertion order.
func (s *Store) Sources() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

// HasSource reports whether id is monitored.
func (s *Store) HasSource(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id]
	return ok
}

// Target returns the forwarding target and whether one is set.
func (s *Store) Target() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.target == nil {
		return 0, false
	}
	return *s.target, true
}

func (s *Store) targetField() any {
	if s.target == nil {
		return nil
	}
	return *s.target
}

// persistLocked writes the full document. Callers hold s.mu for writing.
func (s *Store) persistLocked() error {
	doc := document{
		Channels:      s.channels,
		TargetChannel: s.target,
	}
	if doc.Channels == nil {
		doc.Channels = []int64{}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".channels-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
