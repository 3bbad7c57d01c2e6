package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/trackdeck/internal/track"
)

const (
	snapshotDir = "snapshots"
	logDir      = "log"
	cursorFile  = "cursor.json"
)

// FileStore persists snapshots and the patch log as JSON files under a
// directory:
//
//	<dir>/snapshots/<encoded-id>.json
//	<dir>/log/<index>.json
//	<dir>/cursor.json
//
// Each file is written to a temp name and renamed into place, so individual
// keys never tear. A crash mid-batch can leave the group partially applied;
// cross-file transactionality is best-effort per the engine's
// optimistic-commit policy.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore opens (creating if needed) a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, d := range []string{dir, filepath.Join(dir, snapshotDir), filepath.Join(dir, logDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Apply implements Store. The cursor is written last so that a torn batch
// leaves the cursor pointing at fully written entries.
func (s *FileStore) Apply(b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range b.putDocs {
		if err := writeJSON(s.snapshotPath(f.ID), f); err != nil {
			return err
		}
	}
	for _, id := range b.deleteDocs {
		if err := removeIfPresent(s.snapshotPath(id)); err != nil {
			return err
		}
	}
	for _, r := range b.deletes {
		for i := r.Min; i < r.Max; i++ {
			if err := removeIfPresent(s.logPath(i)); err != nil {
				return err
			}
		}
	}
	for _, e := range b.appends {
		if err := writeJSON(s.logPath(e.Index), e); err != nil {
			return err
		}
	}
	if b.cursor != nil {
		if err := writeJSON(filepath.Join(s.dir, cursorFile), *b.cursor); err != nil {
			return err
		}
	}
	return nil
}

// Snapshots implements Store.
func (s *FileStore) Snapshots() (map[string]*track.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, snapshotDir))
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}

	out := make(map[string]*track.File, len(entries))
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		var f track.File
		if err := readJSON(filepath.Join(s.dir, snapshotDir, de.Name()), &f); err != nil {
			return nil, err
		}
		out[f.ID] = &f
	}
	return out, nil
}

// LogEntry implements Store.
func (s *FileStore) LogEntry(index int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e Entry
	err := readJSON(s.logPath(index), &e)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w: log entry %d", ErrNotFound, index)
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// RangeKeys implements Store.
func (s *FileStore) RangeKeys() (Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, logDir))
	if err != nil {
		return Range{}, fmt.Errorf("read log: %w", err)
	}

	var r Range
	first := true
	for _, de := range entries {
		name := strings.TrimSuffix(de.Name(), ".json")
		idx, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		if first {
			r = Range{Min: idx, Max: idx + 1}
			first = false
			continue
		}
		if idx < r.Min {
			r.Min = idx
		}
		if idx+1 > r.Max {
			r.Max = idx + 1
		}
	}
	return r, nil
}

// ReadCursor implements Store.
func (s *FileStore) ReadCursor() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c int
	err := readJSON(filepath.Join(s.dir, cursorFile), &c)
	if errors.Is(err, os.ErrNotExist) {
		return NoCursor, nil
	}
	if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *FileStore) snapshotPath(id string) string {
	// Document ids are caller-supplied strings; encode them to a safe name.
	name := base64.RawURLEncoding.EncodeToString([]byte(id))
	return filepath.Join(s.dir, snapshotDir, name+".json")
}

func (s *FileStore) logPath(index int) string {
	return filepath.Join(s.dir, logDir, strconv.Itoa(index)+".json")
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
