// Package uploads names stored objects for files attached to records.
package uploads

import (
	"fmt"
	"strings"

	domerrors "profiles/internal/domain/errors"

	"github.com/google/uuid"
)

// Prefix is the storage directory every upload lands in.
const Prefix = "uploads"

// IDFunc returns a fresh unique identifier on every call.
type IDFunc func() string

// PathNamer computes storage keys for uploaded images.
type PathNamer struct {
	newID IDFunc
}

// NewPathNamer creates a PathNamer. A nil newID means uuid.NewString.
func NewPathNamer(newID IDFunc) *PathNamer {
	if newID == nil {
		newID = uuid.NewString
	}
	return &PathNamer{newID: newID}
}

// ImageFilePath returns "uploads/<id>.<ext>" where ext is everything after
// the last dot of filename. owner is not consulted; it is accepted so the
// namer fits "path for this record's attachment" callbacks.
func (n *PathNamer) ImageFilePath(owner any, filename string) (string, error) {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 || dot == len(filename)-1 {
		return "", fmt.Errorf("file name %q has no extension: %w", filename, domerrors.ErrInvalidArgument)
	}
	ext := filename[dot+1:]
	return fmt.Sprintf("%s/%s.%s", Prefix, n.newID(), ext), nil
}
