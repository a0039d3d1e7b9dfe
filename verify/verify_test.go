package verify

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/hashing"
	"github.com/mirrorkeep/mirrorkeep/ledger"
	"github.com/mirrorkeep/mirrorkeep/logging"
	"github.com/mirrorkeep/mirrorkeep/mirror"
	fsmirror "github.com/mirrorkeep/mirrorkeep/mirror/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root     string
	channel  mirror.Channel
	stream   *anomaly.Stream
	verifier *Verifier
}

func newFixture(t *testing.T, windowSize int) *fixture {
	t.Helper()
	root := t.TempDir()
	channel, err := fsmirror.NewFSMirror(t.TempDir())
	require.Nil(t, err)
	stream := anomaly.NewMemory()
	return &fixture{
		root:    root,
		channel: channel,
		stream:  stream,
		verifier: &Verifier{
			Root:        root,
			Algorithm:   "sha256",
			WindowSize:  windowSize,
			Concurrency: 2,
			Channel:     channel,
			Logger:      logging.NewLogger(io.Discard, io.Discard),
			Stream:      stream,
		},
	}
}

// write puts identical content locally and on the mirror.
func (f *fixture) write(t *testing.T, pathname string, content string) {
	t.Helper()
	target := filepath.Join(f.root, filepath.FromSlash(pathname))
	require.Nil(t, os.MkdirAll(filepath.Dir(target), 0700))
	require.Nil(t, os.WriteFile(target, []byte(content), 0600))
	require.Nil(t, f.channel.Put(pathname, strings.NewReader(content), int64(len(content))))
}

func TestFirstRunLedgersEveryFile(t *testing.T) {
	f := newFixture(t, 100)
	f.write(t, "a.jpg", "aaa")
	f.write(t, "b.jpg", "bbb")

	result := f.verifier.Run(ledger.New(), []string{"a.jpg", "b.jpg"})
	assert.Equal(t, 2, result.NewFiles)
	assert.Equal(t, 2, result.Ledger.Len(), "Every local path acquires exactly one record")
	assert.Equal(t, 0, f.stream.Count())

	record, exists := result.Ledger.Lookup("a.jpg")
	require.True(t, exists)
	want, err := hashing.HashFile("sha256", filepath.Join(f.root, "a.jpg"))
	require.Nil(t, err)
	assert.Equal(t, want, record.Digest)
}

func TestSteadyStateIsIdempotent(t *testing.T) {
	f := newFixture(t, 100)
	f.write(t, "a.jpg", "aaa")
	f.write(t, "b.jpg", "bbb")

	localSet := []string{"a.jpg", "b.jpg"}
	first := f.verifier.Run(ledger.New(), localSet)
	second := f.verifier.Run(first.Ledger, localSet)

	assert.Equal(t, 0, second.NewFiles, "No ledger growth in steady state")
	assert.Equal(t, first.Ledger.Len(), second.Ledger.Len())
	assert.Equal(t, 0, f.stream.Count(), "No anomalies in steady state")
}

func TestRotationOrder(t *testing.T) {
	f := newFixture(t, 2)
	for _, pathname := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		f.write(t, pathname, pathname)
	}

	old := ledger.New()
	for _, pathname := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		digest, err := hashing.HashFile("sha256", filepath.Join(f.root, pathname))
		require.Nil(t, err)
		require.Nil(t, old.Append(ledger.Record{Digest: digest, Path: pathname}))
	}

	result := f.verifier.Run(old, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"})
	require.Equal(t, 4, result.Ledger.Len())

	// [new][remaining old][reverified window]
	var order []string
	for _, record := range result.Ledger.Records() {
		order = append(order, record.Path)
	}
	assert.Equal(t, []string{"d.jpg", "c.jpg", "a.jpg", "b.jpg"}, order)
	assert.Equal(t, 0, f.stream.Count())
}

func TestLocalMutationDetectedAndDigestPreserved(t *testing.T) {
	f := newFixture(t, 100)
	f.write(t, "a.jpg", "original")

	old := ledger.New()
	digest, err := hashing.HashFile("sha256", filepath.Join(f.root, "a.jpg"))
	require.Nil(t, err)
	require.Nil(t, old.Append(ledger.Record{Digest: digest, Path: "a.jpg"}))

	// Out-of-band mutation on the local side only.
	require.Nil(t, os.WriteFile(filepath.Join(f.root, "a.jpg"), []byte("tampered"), 0600))

	result := f.verifier.Run(old, []string{"a.jpg"})
	assert.GreaterOrEqual(t, f.stream.Count(), 1, "Mutation recorded as anomaly")

	record, exists := result.Ledger.Lookup("a.jpg")
	require.True(t, exists)
	assert.Equal(t, digest, record.Digest, "The stored digest is never replaced by a recomputed one")
}

func TestRemoteMutationDetected(t *testing.T) {
	f := newFixture(t, 100)
	f.write(t, "a.jpg", "original")

	old := ledger.New()
	digest, err := hashing.HashFile("sha256", filepath.Join(f.root, "a.jpg"))
	require.Nil(t, err)
	require.Nil(t, old.Append(ledger.Record{Digest: digest, Path: "a.jpg"}))

	// Corrupt the mirror copy behind the channel's back.
	require.Nil(t, os.WriteFile(filepath.Join(f.channel.Location(), "a.jpg"), []byte("bitrot"), 0600))

	f.verifier.Run(old, []string{"a.jpg"})
	require.GreaterOrEqual(t, f.stream.Count(), 1)
	found := false
	for _, record := range f.stream.Records() {
		if strings.Contains(record, "remote digest mismatch on a.jpg") {
			found = true
		}
	}
	assert.True(t, found, "Remote mismatch recorded: %v", f.stream.Records())
}

func TestMissingRemoteDigestIsAnomaly(t *testing.T) {
	f := newFixture(t, 100)
	f.write(t, "a.jpg", "aaa")

	old := ledger.New()
	digest, err := hashing.HashFile("sha256", filepath.Join(f.root, "a.jpg"))
	require.Nil(t, err)
	require.Nil(t, old.Append(ledger.Record{Digest: digest, Path: "a.jpg"}))

	require.Nil(t, os.Remove(filepath.Join(f.channel.Location(), "a.jpg")))

	f.verifier.Run(old, []string{"a.jpg"})
	found := false
	for _, record := range f.stream.Records() {
		if strings.Contains(record, "no digest for a.jpg") {
			found = true
		}
	}
	assert.True(t, found, "Missing remote digest recorded: %v", f.stream.Records())
}

func TestUnreadableNewFileIsSkipped(t *testing.T) {
	f := newFixture(t, 100)
	f.write(t, "a.jpg", "aaa")

	result := f.verifier.Run(ledger.New(), []string{"a.jpg", "ghost.jpg"})
	assert.Equal(t, 1, result.NewFiles, "Unreadable files acquire no record")
	assert.Equal(t, 1, f.stream.Count())
	assert.False(t, result.Ledger.Has("ghost.jpg"))
}
