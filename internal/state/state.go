// Package state persists the ledger of already-processed documents.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
)

// Entry records one processed document.
type Entry struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

type ledger struct {
	Processed map[string]Entry `json:"processed"`
}

// Store is a durable, idempotent record of which document identifiers have
// been handled. Every read-modify-write cycle reloads the ledger from disk
// and is guarded by a process-local mutex; the on-disk file is replaced
// atomically so a crash mid-write leaves the previous ledger intact.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore opens the ledger at path, creating the file (and parent
// directories) with an empty ledger if it does not exist yet.
func NewStore(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, domain.StateError("resolve ledger path", err)
	}
	s := &Store{path: abs, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, domain.StateError("create ledger directory", err)
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := s.write(ledger{Processed: map[string]Entry{}}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, domain.StateError("stat ledger file", err)
	}
	return s, nil
}

// HasProcessed reports whether the identifier is recorded in the ledger.
// The ledger is re-read from disk so the answer reflects the latest
// committed write, even across process restarts.
func (s *Store) HasProcessed(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.read()
	if err != nil {
		return false, err
	}
	_, ok := led.Processed[id]
	return ok, nil
}

// MarkProcessed records the identifier with the document name and the
// current UTC time, then atomically persists the entire ledger. Re-marking
// an identifier overwrites its record.
func (s *Store) MarkProcessed(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, err := s.read()
	if err != nil {
		return err
	}
	if led.Processed == nil {
		led.Processed = map[string]Entry{}
	}
	if name == "" {
		name = id
	}
	led.Processed[id] = Entry{
		Name:      name,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
	return s.write(led)
}

// Path returns the ledger file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) read() (ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ledger{}, domain.StateError("read ledger file", err)
	}
	var led ledger
	// A corrupt ledger is fatal; fabricating an empty one here would make
	// every previously processed document eligible for reprocessing.
	if err := json.Unmarshal(data, &led); err != nil {
		return ledger{}, domain.StateError("ledger file is malformed", err)
	}
	return led, nil
}

func (s *Store) write(led ledger) error {
	data, err := json.MarshalIndent(led, "", "  ")
	if err != nil {
		return domain.StateError("encode ledger", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domain.StateError("write ledger temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return domain.StateError("replace ledger file", err)
	}
	return nil
}
