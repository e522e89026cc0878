package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

const (
	lockTimeout = 5 * time.Second
	fileMode    = 0644
	dirMode     = 0755
)

// journalFile represents the on-disk journal format.
type journalFile struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
}

type jsonStore struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a JSON-backed journal store at path.
func NewStore(path string) *jsonStore {
	return &jsonStore{path: path}
}

// Append records an event, dropping the oldest entries beyond the bound.
func (s *jsonStore) Append(ctx context.Context, event Event) error {
	return s.withExclusiveLock(ctx, func(jf *journalFile) error {
		jf.Events = append(jf.Events, event)
		if len(jf.Events) > maxEvents {
			jf.Events = jf.Events[len(jf.Events)-maxEvents:]
		}
		return nil
	})
}

// List returns events matching the filter, oldest first.
func (s *jsonStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	var result []Event

	err := s.withSharedLock(ctx, func(jf *journalFile) error {
		for _, e := range jf.Events {
			if filter.InstanceID != "" && e.InstanceID != filter.InstanceID {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.Outcome != "" && e.Outcome != filter.Outcome {
				continue
			}
			result = append(result, e)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// withSharedLock executes fn with a shared (read) lock.
func (s *jsonStore) withSharedLock(ctx context.Context, fn func(*journalFile) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jf, file, err := s.openAndLock(ctx, false)
	if err != nil {
		return err
	}
	defer s.unlockAndClose(file)

	return fn(jf)
}

// withExclusiveLock executes fn with an exclusive (write) lock.
// Changes made by fn are persisted to disk.
func (s *jsonStore) withExclusiveLock(ctx context.Context, fn func(*journalFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jf, file, err := s.openAndLock(ctx, true)
	if err != nil {
		return err
	}
	defer s.unlockAndClose(file)

	if err := fn(jf); err != nil {
		return err
	}

	return s.save(jf)
}

// openAndLock opens the journal file and acquires a lock.
func (s *jsonStore) openAndLock(ctx context.Context, exclusive bool) (*journalFile, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return nil, nil, fmt.Errorf("create journal directory: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal file: %w", err)
	}

	lockType := syscall.LOCK_SH
	if exclusive {
		lockType = syscall.LOCK_EX
	}

	if err := s.acquireLock(ctx, file, lockType); err != nil {
		file.Close()
		return nil, nil, err
	}

	jf, err := s.load(file)
	if err != nil {
		s.unlockAndClose(file)
		return nil, nil, err
	}

	return jf, file, nil
}

// acquireLock attempts to acquire a file lock with timeout.
func (s *jsonStore) acquireLock(ctx context.Context, file *os.File, lockType int) error {
	deadline := time.Now().Add(lockTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := syscall.Flock(int(file.Fd()), lockType|syscall.LOCK_NB)
		if err == nil {
			return nil
		}

		if err != syscall.EWOULDBLOCK {
			return fmt.Errorf("acquire file lock: %w", err)
		}

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// unlockAndClose releases the lock and closes the file.
func (s *jsonStore) unlockAndClose(file *os.File) {
	syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	file.Close()
}

// load reads and parses the journal file.
func (s *jsonStore) load(file *os.File) (*journalFile, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat journal file: %w", err)
	}

	if info.Size() == 0 {
		return &journalFile{Version: 1, Events: []Event{}}, nil
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("seek journal file: %w", err)
	}

	var jf journalFile
	if err := json.NewDecoder(file).Decode(&jf); err != nil {
		return nil, fmt.Errorf("decode journal file: %w", err)
	}

	return &jf, nil
}

// save writes the journal to disk atomically.
func (s *jsonStore) save(jf *journalFile) error {
	jf.Version = 1

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "journal-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(jf); err != nil {
		tmp.Close()
		return fmt.Errorf("encode journal: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename journal file: %w", err)
	}

	tmpPath = ""
	return nil
}
