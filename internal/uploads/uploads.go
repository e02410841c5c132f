// Package uploads resolves client file references against the uploads
// directory. References are bare names; anything that would escape the
// directory is rejected before the engine ever sees it.
package uploads

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"masterd/internal/common/fsutil"
)

// audioExts are the source formats the engine accepts.
var audioExts = map[string]bool{
	".wav": true, ".flac": true, ".aiff": true, ".aif": true,
	".mp3": true, ".ogg": true, ".m4a": true,
}

// invalidRefError signals a malformed or traversing reference for 400
// mapping.
type invalidRefError struct{ name string }

func (e invalidRefError) Error() string { return "invalid file reference: " + e.name }

// IsInvalidRef reports whether err indicates a rejected reference.
func IsInvalidRef(err error) bool {
	_, ok := err.(invalidRefError)
	return ok
}

// fileNotFoundError signals an unknown upload reference for 404 mapping.
type fileNotFoundError struct{ name string }

func (e fileNotFoundError) Error() string { return "uploaded file not found: " + e.name }

// IsFileNotFound reports whether err indicates a missing upload.
func IsFileNotFound(err error) bool {
	_, ok := err.(fileNotFoundError)
	return ok
}

// Resolver maps upload references to absolute paths.
type Resolver struct {
	dir string
}

// New returns a resolver rooted at dir.
func New(dir string) *Resolver { return &Resolver{dir: dir} }

// Resolve validates name and returns its absolute path inside the
// uploads directory.
func (r *Resolver) Resolve(name string) (string, error) {
	if !fsutil.SafeName(name) {
		return "", invalidRefError{name: name}
	}
	p := filepath.Join(r.dir, name)
	if !fsutil.PathExists(p) {
		return "", fileNotFoundError{name: name}
	}
	return p, nil
}

// List scans the uploads directory for audio files, mirroring what the
// file-manager UI shows.
func (r *Resolver) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
