// Package data provides result-file storage and loading.
package data

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

// Store provides access to result files kept in a directory
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]byte
}

// FileInfo describes a result file available in the store
type FileInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// NewStore creates a new result-file store
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:  logger,
		dataDir: dataDir,
		cache:   make(map[string][]byte),
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return store, nil
}

// Dir returns the backing directory
func (s *Store) Dir() string {
	return s.dataDir
}

// List returns the JSON files in the store, sorted by name
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return files, nil
}

// Read returns the raw bytes of a stored result file
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	s.mu.Lock()
	s.cache[name] = raw
	s.mu.Unlock()

	return raw, nil
}

// ReadFile returns a stored result file ready for the registry
func (s *Store) ReadFile(name string) (types.RawFile, error) {
	raw, err := s.Read(name)
	if err != nil {
		return types.RawFile{}, err
	}
	return types.RawFile{Name: name, Data: raw}, nil
}

// Save writes a result file into the store
func (s *Store) Save(name string, raw []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}

	s.mu.Lock()
	s.cache[name] = raw
	s.mu.Unlock()

	s.logger.Debug("Result file saved", zap.String("name", name), zap.Int("bytes", len(raw)))
	return nil
}

// Exists reports whether a result file is present
func (s *Store) Exists(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// ClearCache clears the in-memory cache
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[string][]byte)
}

// resolve maps a bare file name into the data directory
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return filepath.Join(s.dataDir, name), nil
}
