package storage

import "io"

// PhotoStore persists normalized profile photos. Implementations return an
// opaque reference that is stored on the member record.
type PhotoStore interface {
	// Save writes a normalized JPEG and returns its stored reference.
	Save(memberID int64, data []byte) (string, error)
	// Open streams a previously stored photo.
	Open(ref string) (io.ReadCloser, error)
	// Remove deletes a stored photo. Removing a missing photo is not an error.
	Remove(ref string) error
}
