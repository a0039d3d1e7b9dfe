package mirror

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
)

// FileInfo describes one remote file. Size is -1 when the backend
// cannot report it.
type FileInfo struct {
	Path string
	Size int64
}

// Channel is the typed remote channel every component talks through.
// Paths are relative, slash-separated, and have already passed
// forbidden-character validation. Put never overwrites an existing
// remote file and must stage partial data away from the final path.
type Channel interface {
	Location() string
	List() ([]FileInfo, error)
	Exists(pathname string) (bool, error)
	Put(pathname string, rd io.Reader, size int64) error
	Fetch(pathname string) (io.ReadCloser, error)
	Digests(algorithm string, pathnames []string) (map[string]string, error)
	Protect(pathname string) error
	Capacity() (int, bool, error)
	Close() error
}

var muBackends sync.Mutex
var backends map[string]func(location string) (Channel, error) = make(map[string]func(location string) (Channel, error))

func Register(name string, backend func(string) (Channel, error)) {
	muBackends.Lock()
	defer muBackends.Unlock()

	if _, ok := backends[name]; ok {
		log.Fatalf("backend '%s' registered twice", name)
	}
	backends[name] = backend
}

func Backends() []string {
	muBackends.Lock()
	defer muBackends.Unlock()

	ret := make([]string, 0)
	for backendName := range backends {
		ret = append(ret, backendName)
	}
	sort.Strings(ret)
	return ret
}

func Open(location string) (Channel, error) {
	muBackends.Lock()
	defer muBackends.Unlock()

	var backendName string
	if !strings.HasPrefix(location, "/") {
		if strings.HasPrefix(location, "s3://") {
			backendName = "s3"
		} else if strings.HasPrefix(location, "ssh://") {
			backendName = "ssh"
		} else if strings.HasPrefix(location, "fs://") {
			backendName = "fs"
		} else {
			if strings.Contains(location, "://") {
				return nil, fmt.Errorf("unsupported mirror protocol")
			}
			backendName = "fs"
		}
	} else {
		backendName = "fs"
	}

	backend, exists := backends[backendName]
	if !exists {
		return nil, fmt.Errorf("backend '%s' does not exist", backendName)
	}
	return backend(location)
}
