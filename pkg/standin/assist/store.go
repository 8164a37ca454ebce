// Package assist – store.go persists per-sender transcripts and the owner
// availability flag. The file backend keeps one JSON file per sender under a
// base directory and overwrites the whole file on save; records that are
// missing or corrupt load as absent rather than failing the caller.
package assist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Availability flag values persisted by the store. The textual form matches
// the WhatsApp "about" status the owner sets by hand.
const (
	StatusAvailable   = "Available"
	StatusUnavailable = "Not available"
)

// Store persists transcripts keyed by sender, plus the availability flag
// that gates automated replies.
type Store interface {
	// Load returns the transcript for a sender, or (nil, nil) when no
	// record exists.
	Load(sender string) (*Transcript, error)

	// Save overwrites the stored transcript for a sender.
	Save(sender string, t *Transcript) error

	// Clear removes the stored transcript. Returns false when no record
	// existed; clearing a missing record must not create one.
	Clear(sender string) (bool, error)

	// List returns the sender keys that have stored transcripts.
	List() ([]string, error)

	// Available reports whether the owner is marked available. While
	// available, automated replies are suppressed.
	Available() bool

	// SetAvailable updates the availability flag.
	SetAvailable(available bool) error
}

// FileStore implements Store on the filesystem. Transcripts live at
// {baseDir}/{sanitized sender}.json; the availability flag at
// {baseDir}/status.txt.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		baseDir = "./data/chats"
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}

	return &FileStore{baseDir: baseDir}, nil
}

func (fs *FileStore) path(sender string) string {
	return filepath.Join(fs.baseDir, sanitizeSenderKey(sender)+".json")
}

// Load reads a transcript from disk. Missing and unparsable files both
// return (nil, nil): a corrupt record is treated as absent, never fatal.
func (fs *FileStore) Load(sender string) (*Transcript, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.path(sender))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil || len(t.Turns) == 0 {
		return nil, nil
	}
	return &t, nil
}

// Save writes the transcript as a whole-file overwrite.
func (fs *FileStore) Save(sender string, t *Transcript) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	if err := os.WriteFile(fs.path(sender), data, 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}

// Clear deletes the stored transcript. A missing record returns (false, nil)
// and leaves the filesystem untouched.
func (fs *FileStore) Clear(sender string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.path(sender))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("removing transcript: %w", err)
	}
	return true, nil
}

// List returns the sender keys that have transcripts on disk.
func (fs *FileStore) List() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	var senders []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		senders = append(senders, strings.TrimSuffix(name, ".json"))
	}
	return senders, nil
}

// Available reads the flag file. A missing or unreadable flag defaults to
// available, so a fresh install never answers on the owner's behalf until
// told to.
func (fs *FileStore) Available() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(fs.baseDir, "status.txt"))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) != StatusUnavailable
}

// SetAvailable persists the availability flag.
func (fs *FileStore) SetAvailable(available bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	status := StatusUnavailable
	if available {
		status = StatusAvailable
	}
	path := filepath.Join(fs.baseDir, "status.txt")
	if err := os.WriteFile(path, []byte(status+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}

// PruneOlderThan removes transcripts whose files have not been modified
// within the retention window. Returns the number of records removed.
func (fs *FileStore) PruneOlderThan(age time.Duration) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return 0, fmt.Errorf("listing transcripts: %w", err)
	}

	cutoff := time.Now().Add(-age)
	pruned := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.baseDir, e.Name())); err == nil {
			pruned++
		}
	}
	return pruned, nil
}
