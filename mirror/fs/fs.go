package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mirrorkeep/mirrorkeep/hashing"
	"github.com/mirrorkeep/mirrorkeep/mirror"
	"github.com/shirou/gopsutil/disk"
)

const stagingDir = ".staging"

type FSMirror struct {
	rootDir string
}

func init() {
	mirror.Register("fs", NewFSMirror)
}

func NewFSMirror(location string) (mirror.Channel, error) {
	location = strings.TrimPrefix(location, "fs://")
	if err := os.MkdirAll(location, 0700); err != nil {
		return nil, err
	}
	return &FSMirror{rootDir: location}, nil
}

func (m *FSMirror) Location() string {
	return m.rootDir
}

func (m *FSMirror) abs(pathname string) string {
	return filepath.Join(m.rootDir, filepath.FromSlash(pathname))
}

func (m *FSMirror) List() ([]mirror.FileInfo, error) {
	var out []mirror.FileInfo
	err := filepath.WalkDir(m.rootDir, func(pathname string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == stagingDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(m.rootDir, pathname)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, mirror.FileInfo{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *FSMirror) Exists(pathname string) (bool, error) {
	_, err := os.Stat(m.abs(pathname))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put copies into the staging area first, then renames into place, so
// an interrupted transfer never leaves a partial file at its final
// path. Existing files are never overwritten.
func (m *FSMirror) Put(pathname string, rd io.Reader, size int64) error {
	exists, err := m.Exists(pathname)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("refusing to overwrite %s", pathname)
	}

	staging := filepath.Join(m.rootDir, stagingDir)
	if err := os.MkdirAll(staging, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(staging, "put-*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rd); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	target := m.abs(pathname)
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (m *FSMirror) Fetch(pathname string) (io.ReadCloser, error) {
	return os.Open(m.abs(pathname))
}

func (m *FSMirror) Digests(algorithm string, pathnames []string) (map[string]string, error) {
	out := make(map[string]string, len(pathnames))
	for _, pathname := range pathnames {
		digest, err := hashing.HashFile(algorithm, m.abs(pathname))
		if err != nil {
			continue
		}
		out[pathname] = digest
	}
	return out, nil
}

func (m *FSMirror) Protect(pathname string) error {
	target := m.abs(pathname)
	st, err := os.Stat(target)
	if err != nil {
		return err
	}
	return os.Chmod(target, st.Mode().Perm()&^0222)
}

func (m *FSMirror) Capacity() (int, bool, error) {
	usage, err := disk.Usage(m.rootDir)
	if err != nil {
		return 0, false, err
	}
	return int(usage.UsedPercent), true, nil
}

func (m *FSMirror) Close() error {
	return nil
}
