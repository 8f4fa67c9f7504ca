package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalPhotoStore stores photos on the local filesystem.
type LocalPhotoStore struct {
	dir string
}

func NewLocalPhotoStore(dir string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create photo directory: %w", err)
	}
	return &LocalPhotoStore{dir: dir}, nil
}

func (s *LocalPhotoStore) Save(memberID int64, data []byte) (string, error) {
	// Random component avoids stale browser caches after a photo change.
	name := fmt.Sprintf("%d_%s.jpg", memberID, uuid.NewString())
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("save photo: %w", err)
	}
	return name, nil
}

func (s *LocalPhotoStore) Open(ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, fmt.Errorf("invalid photo reference: %q", ref)
	}
	return os.Open(filepath.Join(s.dir, ref))
}

func (s *LocalPhotoStore) Remove(ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("invalid photo reference: %q", ref)
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Path returns the absolute path of a stored photo. Used by the card export
// when copying photos into a snapshot.
func (s *LocalPhotoStore) Path(ref string) string {
	return filepath.Join(s.dir, ref)
}

// validRef rejects references that could escape the photo directory.
func validRef(ref string) bool {
	return ref != "" && !strings.Contains(ref, "/") && !strings.Contains(ref, "\\") && ref != "." && ref != ".."
}
