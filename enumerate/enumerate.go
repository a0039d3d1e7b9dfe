package enumerate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Characters that cannot be round-tripped through the remote command
// channel: a path containing one of these aborts the run before any
// mutation, it is never silently skipped.
const forbidden = `"'\*>$`

// PathError is the fatal enumeration failure for a forbidden path.
type PathError struct {
	Pathname string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("forbidden character in path %q", e.Pathname)
}

func ValidatePath(pathname string) error {
	if strings.ContainsAny(pathname, forbidden) {
		return &PathError{Pathname: pathname}
	}
	return nil
}

// Scan walks the backup root and returns the canonical Local File Set:
// relative slash-separated paths of regular files, exclusions applied,
// de-duplicated and in lexicographic order.
func Scan(root string, excludes []glob.Glob) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(pathname string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, pathname)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range excludes {
			if pattern.Match(rel) || pattern.Match(filepath.Base(rel)) {
				return nil
			}
		}
		if err := ValidatePath(rel); err != nil {
			return err
		}
		seen[rel] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	set := make([]string, 0, len(seen))
	for pathname := range seen {
		set = append(set, pathname)
	}
	sort.Strings(set)
	return set, nil
}

// Difference returns the elements of a that are not in b.
func Difference(a []string, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, pathname := range b {
		inB[pathname] = true
	}
	var out []string
	for _, pathname := range a {
		if !inB[pathname] {
			out = append(out, pathname)
		}
	}
	return out
}

// Save persists the file set artifact for the duration of a run; its
// mtime doubles as a liveness signal for the concurrency guard.
func Save(pathname string, set []string) error {
	var sb strings.Builder
	for _, p := range set {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return os.WriteFile(pathname, []byte(sb.String()), 0600)
}

// Remove discards the file set artifact at the end of a run.
func Remove(pathname string) error {
	err := os.Remove(pathname)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
