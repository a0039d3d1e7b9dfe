package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/enumerate"
	"github.com/mirrorkeep/mirrorkeep/logging"
	"github.com/mirrorkeep/mirrorkeep/mirror"
)

// Engine pushes local files that are absent from the mirror. It is
// strictly additive: existing remote files are never overwritten,
// truncated or deleted, whatever the destination looks like.
type Engine struct {
	root    string
	channel mirror.Channel
	logPath string
	logger  *logging.Logger
	stream  *anomaly.Stream
}

type Outcome struct {
	Uploaded []string
	Bytes    int64
}

func NewEngine(root string, channel mirror.Channel, logPath string, logger *logging.Logger, stream *anomaly.Stream) *Engine {
	return &Engine{
		root:    root,
		channel: channel,
		logPath: logPath,
		logger:  logger,
		stream:  stream,
	}
}

// Upload pushes every path present in localSet but absent from
// remoteSet. A failed push is an anomaly, not an abort: the reconciler
// will surface the file again on the next run.
func (e *Engine) Upload(localSet []string, remoteSet []string) *Outcome {
	outcome := &Outcome{}

	logfp, err := os.OpenFile(e.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		e.stream.Record("transfer: cannot open transfer log: %s", err)
		return outcome
	}
	defer logfp.Close()

	for _, pathname := range enumerate.Difference(localSet, remoteSet) {
		size, err := e.push(pathname)
		if err != nil {
			e.stream.Record("transfer: %s: %s", pathname, err)
			continue
		}
		outcome.Uploaded = append(outcome.Uploaded, pathname)
		outcome.Bytes += size
		fmt.Fprintf(logfp, "%s %s\n", pathname, humanize.Bytes(uint64(size)))
		e.logger.Info("uploaded %s (%s)", pathname, humanize.Bytes(uint64(size)))
	}
	return outcome
}

func (e *Engine) push(pathname string) (int64, error) {
	fp, err := os.Open(filepath.Join(e.root, filepath.FromSlash(pathname)))
	if err != nil {
		return 0, err
	}
	defer fp.Close()

	st, err := fp.Stat()
	if err != nil {
		return 0, err
	}
	if err := e.channel.Put(pathname, fp, st.Size()); err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Protect marks this run's uploads read-only on the mirror.
// Best-effort: a failure weakens the immutability guarantee without
// breaking it, so it is recorded and the run carries on.
func (e *Engine) Protect(outcome *Outcome) {
	for _, pathname := range outcome.Uploaded {
		if err := e.channel.Protect(pathname); err != nil {
			e.stream.Record("protect: %s: %s", pathname, err)
		}
	}
}

// LastLogLine returns the last line of the transfer log, for the
// status report. An absent or empty log yields an empty string.
func LastLogLine(pathname string) string {
	data, err := os.ReadFile(pathname)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
