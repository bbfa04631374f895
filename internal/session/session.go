package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/unkn0wn-root/reqdeck/internal/config"
	"github.com/unkn0wn-root/reqdeck/internal/errdef"
)

// FileStore persists the tab session snapshot as a single JSON file,
// written atomically so a crash mid-save never corrupts it.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns nil data (not an error) when no session exists yet.
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read session %s", s.path)
	}
	return data, nil
}

func (s *FileStore) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "ensure session directory")
	}
	if err := config.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write session %s", s.path)
	}
	return nil
}
