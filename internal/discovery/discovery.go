// Package discovery expands a user-supplied path into the eval archives to
// search.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the file extension of eval log archives.
const Ext = ".eval"

// PathNotFoundError reports a root path that does not exist or cannot be
// read.
type PathNotFoundError struct {
	Path string
	Err  error
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s: %v", e.Path, e.Err)
}

func (e *PathNotFoundError) Unwrap() error { return e.Err }

// Collect returns the archives under root. A regular file is returned as is,
// whatever its extension. A directory is walked recursively for *.eval files,
// returned in lexicographic path order so output is deterministic.
//
// Symlinked archives are followed; symlinked directories are not descended.
// Unreadable subdirectories are skipped; only a missing or unreadable root is
// an error.
func Collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &PathNotFoundError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), Ext) && isRegularFile(path, d) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, &PathNotFoundError{Path: root, Err: err}
		}
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// isRegularFile reports whether d is a regular file, following a symlink to
// its target. Dangling links are skipped.
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular()
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CollectAll runs Collect over every root and concatenates the results in
// argument order, dropping paths already seen.
func CollectAll(roots []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, root := range roots {
		paths, err := Collect(root)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
