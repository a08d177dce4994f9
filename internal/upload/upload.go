// Package upload stores screenshots pushed by cities.
package upload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrTooLarge is returned when the body exceeds the configured limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// ErrInvalidID is returned for ids that cannot be used as a file name.
var ErrInvalidID = errors.New("invalid upload id")

// Receipt describes a stored upload.
type Receipt struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Digest string `json:"blake3"`
}

// Store writes uploads into a single directory, one file per city id.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the upload directory if needed.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save replaces <dir>/<id>.png with the contents of r.
func (s *Store) Save(id string, r io.Reader) (Receipt, error) {
	if err := validateID(id); err != nil {
		return Receipt{}, err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return Receipt{}, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	hasher := blake3.New()
	src := r
	if s.maxBytes > 0 {
		// One extra byte distinguishes "exactly at the limit" from "over".
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		tmp.Close()
		return Receipt{}, err
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		tmp.Close()
		return Receipt{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Receipt{}, err
	}
	if err := tmp.Close(); err != nil {
		return Receipt{}, err
	}

	path := filepath.Join(s.dir, id+".png")
	if err := os.Rename(tmpName, path); err != nil {
		return Receipt{}, err
	}
	committed = true

	return Receipt{
		Path:   path,
		Bytes:  n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." {
		return ErrInvalidID
	}
	if strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
