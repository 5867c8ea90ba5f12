// Package fs provides file system adapters for walking and fingerprinting files.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields every regular file below root in lexical order, skipping
// VCS directories and anything whose slash-separated path relative to root
// matches one of the doublestar ignore patterns.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() && (d.Name() == ".git" || d.Name() == ".jj") {
				return filepath.SkipDir
			}

			if w.ignored(root, path, ignores) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			if !yield(path) {
				return filepath.SkipAll
			}

			return nil
		})
	}
}

func (w *Walker) ignored(root, path string, ignores []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, ignore := range ignores {
		if matched, _ := doublestar.Match(ignore, rel); matched {
			return true
		}
	}
	return false
}
