package verify

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/enumerate"
	"github.com/mirrorkeep/mirrorkeep/hashing"
	"github.com/mirrorkeep/mirrorkeep/ledger"
	"github.com/mirrorkeep/mirrorkeep/logging"
	"github.com/mirrorkeep/mirrorkeep/mirror"
)

// Verifier drives the rotating checksum ledger: new local files are
// digested and appended, then the oldest window of records is
// reverified on both sides and rotated to the tail with its original
// digests. A recomputed digest is never written back; only the next
// run's agreement with the stored value clears a record.
type Verifier struct {
	Root        string
	Algorithm   string
	WindowSize  int
	Concurrency int

	Channel mirror.Channel
	Logger  *logging.Logger
	Stream  *anomaly.Stream
}

type Result struct {
	Ledger   *ledger.Ledger
	NewFiles int
	Window   []ledger.Record
}

// Run produces the next ledger state. The returned ledger is ordered
// [new records][remaining old records][reverified window], which keeps
// every record moving through the verification queue no matter how
// verification went.
func (v *Verifier) Run(old *ledger.Ledger, localSet []string) *Result {
	known := make([]string, 0, old.Len())
	for _, record := range old.Records() {
		known = append(known, record.Path)
	}

	newRecords := v.digestNew(enumerate.Difference(localSet, known))
	window := old.PopFront(v.WindowSize)

	v.reverifyLocal(window)
	v.reverifyRemote(window)

	next := ledger.New()
	for _, record := range newRecords {
		if err := next.Append(record); err != nil {
			v.Stream.Record("verify: %s", err)
		}
	}
	for _, record := range old.Records() {
		if err := next.Append(record); err != nil {
			v.Stream.Record("verify: %s", err)
		}
	}
	for _, record := range window {
		if err := next.Append(record); err != nil {
			v.Stream.Record("verify: %s", err)
		}
	}

	v.Logger.Info("verify: %d new records, window of %d reverified, %d total", len(newRecords), len(window), next.Len())
	return &Result{Ledger: next, NewFiles: len(newRecords), Window: window}
}

// digestNew hashes paths with no ledger entry yet, fanning out over a
// bounded worker pool but returning records in enumeration order.
func (v *Verifier) digestNew(pathnames []string) []ledger.Record {
	digests := v.digestLocal(pathnames)

	records := make([]ledger.Record, 0, len(pathnames))
	for _, pathname := range pathnames {
		digest, ok := digests[pathname]
		if !ok {
			continue
		}
		records = append(records, ledger.Record{Digest: digest, Path: pathname})
	}
	return records
}

func (v *Verifier) digestLocal(pathnames []string) map[string]string {
	concurrency := v.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	digests := make(map[string]string, len(pathnames))

	var wg sync.WaitGroup
	queue := make(chan string)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pathname := range queue {
				digest, err := hashing.HashFile(v.Algorithm, filepath.Join(v.Root, filepath.FromSlash(pathname)))
				if err != nil {
					v.Stream.Record("verify: %s: %s", pathname, err)
					continue
				}
				mu.Lock()
				digests[pathname] = digest
				mu.Unlock()
			}
		}()
	}
	for _, pathname := range pathnames {
		queue <- pathname
	}
	close(queue)
	wg.Wait()

	return digests
}

// reverifyLocal recomputes window digests from the local tree. This is
// the local bit-rot and ransomware detector.
func (v *Verifier) reverifyLocal(window []ledger.Record) {
	for _, record := range window {
		pathname := filepath.Join(v.Root, filepath.FromSlash(record.Path))
		if _, err := os.Stat(pathname); err != nil {
			v.Stream.Record("verify: local: %s: %s", record.Path, err)
			continue
		}
		digest, err := hashing.HashFile(v.Algorithm, pathname)
		if err != nil {
			v.Stream.Record("verify: local: %s: %s", record.Path, err)
			continue
		}
		if hashing.NormalizeDigest(digest) != record.Digest {
			v.Stream.Record("verify: local digest mismatch on %s: ledger %s, computed %s", record.Path, record.Digest, digest)
		}
	}
}

// reverifyRemote asks the mirror to recompute the same window. This is
// the detector for remote-side corruption or unauthorized change.
func (v *Verifier) reverifyRemote(window []ledger.Record) {
	if len(window) == 0 {
		return
	}
	pathnames := make([]string, 0, len(window))
	for _, record := range window {
		pathnames = append(pathnames, record.Path)
	}

	digests, err := v.Channel.Digests(v.Algorithm, pathnames)
	if err != nil {
		v.Stream.Record("verify: remote digests unavailable: %s", err)
		return
	}
	for _, record := range window {
		digest, ok := digests[record.Path]
		if !ok {
			v.Stream.Record("verify: remote: no digest for %s", record.Path)
			continue
		}
		if hashing.NormalizeDigest(digest) != record.Digest {
			v.Stream.Record("verify: remote digest mismatch on %s: ledger %s, computed %s", record.Path, record.Digest, digest)
		}
	}
}
