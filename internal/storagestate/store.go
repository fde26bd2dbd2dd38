package storagestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// ErrNotFound is returned when no snapshot exists for an id
var ErrNotFound = errors.New("storage state not found")

// Store persists cookie snapshots as gzip'd JSON files, one per context id
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Save writes state under its context id, replacing an older snapshot
func (s *Store) Save(state *models.StorageState) error {
	path, err := s.path(state.ContextID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	gz := gzip.NewWriter(tmp)
	if err := json.NewEncoder(gz).Encode(state); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	// rename keeps readers from seeing a partial file
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// Load reads the snapshot saved for id
func (s *Store) Load(id string) (*models.StorageState, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close() //nolint:errcheck

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	defer gz.Close() //nolint:errcheck

	var state models.StorageState
	if err := json.NewDecoder(gz).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &state, nil
}

// Delete removes the snapshot for id. A missing snapshot is not an error.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

// ids are uuids, anything else could escape the directory
func (s *Store) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid storage state id %q", id)
	}
	return filepath.Join(s.dir, id+".json.gz"), nil
}
