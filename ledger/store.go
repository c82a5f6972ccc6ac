package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultFile is used when no data file is configured.
	DefaultFile = "voice_time.json"

	dataFileMode    = 0o644
	tempFilePattern = ".voice_time-*.json.tmp"
)

type (
	// Store persists accumulated totals, keyed by user ID, in seconds.
	Store interface {
		Load() (map[string]float64, error)
		Save(totals map[string]float64) error
	}

	// FileStore keeps the totals in a single human readable JSON file that
	// is rewritten wholesale on every save.
	FileStore struct {
		filePath string
		mu       sync.Mutex
	}
)

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by filePath.
func NewFileStore(filePath string) *FileStore {
	if filePath == "" {
		filePath = DefaultFile
	}
	return &FileStore{
		filePath: filePath,
	}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.filePath
}

// Load reads the totals from disk. A missing file is not an error.
func (f *FileStore) Load() (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	totals := make(map[string]float64)

	file, err := os.ReadFile(f.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return totals, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.filePath, err)
	}

	if err := json.Unmarshal(file, &totals); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.filePath, err)
	}
	return totals, nil
}

// Save replaces the file with totals. The write goes through a temporary
// file and a rename so a crash never leaves a truncated file behind.
func (f *FileStore) Save(totals map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if totals == nil {
		totals = map[string]float64{}
	}
	jsonData, err := json.MarshalIndent(totals, "", "    ")
	if err != nil {
		return fmt.Errorf("encode voice time: %w", err)
	}

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp data file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(jsonData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp data file: %w", err)
	}
	if err := tempFile.Chmod(dataFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp data file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp data file: %w", err)
	}
	if err := os.Rename(tempName, f.filePath); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	cleanup = false

	log.Printf("Saved voice time for %d users to %s", len(totals), f.filePath)
	return nil
}
