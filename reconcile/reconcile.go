package reconcile

import (
	"os"
	"path/filepath"

	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/enumerate"
	"github.com/mirrorkeep/mirrorkeep/ledger"
	"github.com/mirrorkeep/mirrorkeep/logging"
	"github.com/mirrorkeep/mirrorkeep/mirror"
	"github.com/pmezard/go-difflib/difflib"
)

// Classify compares the mirror inventory against the live local tree
// and the ledger. It never mutates either side. Because uploads are
// add-only, a ledgered path missing from the mirror is unambiguous
// evidence of remote loss, and a remote path the enumerator does not
// know is evidence of remote-side tampering.
func Classify(root string, localSet []string, lgr *ledger.Ledger, remoteList []mirror.FileInfo, logger *logging.Logger, stream *anomaly.Stream) {
	remoteSet := make([]string, 0, len(remoteList))
	remoteSize := make(map[string]int64, len(remoteList))
	for _, info := range remoteList {
		remoteSet = append(remoteSet, info.Path)
		remoteSize[info.Path] = info.Size
	}

	for _, pathname := range enumerate.Difference(remoteSet, localSet) {
		stream.Record("reconcile: unexpected remote file %s", pathname)
	}

	inRemote := make(map[string]bool, len(remoteSet))
	for _, pathname := range remoteSet {
		inRemote[pathname] = true
	}
	for _, record := range lgr.Records() {
		if !inRemote[record.Path] {
			stream.Record("reconcile: remote loss of %s", record.Path)
		}
	}

	for _, pathname := range localSet {
		size, known := remoteSize[pathname]
		if !known || size < 0 {
			continue
		}
		st, err := os.Stat(filepath.Join(root, filepath.FromSlash(pathname)))
		if err != nil {
			continue
		}
		if st.Size() != size {
			stream.Record("reconcile: size drift on %s: local %d remote %d", pathname, st.Size(), size)
		}
	}

	if diff := pathDiff(localSet, remoteSet); diff != "" {
		logger.Trace("reconcile", "path diff:\n%s", diff)
	}
}

func pathDiff(localSet []string, remoteSet []string) string {
	lines := func(set []string) []string {
		out := make([]string, 0, len(set))
		for _, pathname := range set {
			out = append(out, pathname+"\n")
		}
		return out
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(localSet),
		B:        lines(remoteSet),
		FromFile: "local",
		ToFile:   "remote",
		Context:  0,
	})
	if err != nil {
		return ""
	}
	return text
}
