// Package renditions addresses the on-disk store of final mastered
// artifacts, keyed by run id. The engine writes the files; this package
// only constructs paths into the store and lists what a run produced.
package renditions

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"masterd/pkg/types"
)

// Store locates rendition files under a base directory, one subdirectory
// per run id.
type Store struct {
	dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store { return &Store{dir: dir} }

// RunDir returns the output directory for a run.
func (s *Store) RunDir(runID string) string { return filepath.Join(s.dir, runID) }

// ListRun lists the run's finished artifacts, name-sorted. A run with no
// output directory yet simply has no renditions; that is not an error.
func (s *Store) ListRun(runID string) (*types.RunResult, error) {
	result := &types.RunResult{Renditions: []types.Rendition{}}
	entries, err := os.ReadDir(s.RunDir(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		result.Renditions = append(result.Renditions, types.Rendition{
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	sort.Slice(result.Renditions, func(i, j int) bool {
		return result.Renditions[i].Name < result.Renditions[j].Name
	})
	return result, nil
}
