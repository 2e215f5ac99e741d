// Package discover enumerates candidate source files under a project root
// and filters them against glob-style exclusion patterns.
package discover

import (
	"io/fs"
	pathpkg "path"
	"path/filepath"
	"sort"
	"strings"
)

// Excluded reports whether path should be skipped under the given patterns.
//
// Matching runs against the root-relative path with separators normalized
// to "/", using shell-glob semantics. A pattern ending in "/*" additionally
// excludes everything nested under that directory, not just direct
// children. Paths that cannot be expressed relative to root are excluded:
// fail closed.
func Excluded(root, path string, patterns []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return true
	}
	for _, pat := range patterns {
		if ok, _ := pathpkg.Match(pat, rel); ok {
			return true
		}
		if dir, found := strings.CutSuffix(pat, "/*"); found {
			if strings.HasPrefix(rel, dir+"/") {
				return true
			}
		}
	}
	return false
}

// Files walks root and returns every file with extension ext that survives
// the exclusion patterns, in lexicographic order so repeated runs are
// reproducible.
func Files(root, ext string, patterns []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ext {
			return nil
		}
		if Excluded(root, p, patterns) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
