package anomaly

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndCount(t *testing.T) {
	pathname := filepath.Join(t.TempDir(), "errors.log")
	stream, err := Open(pathname)
	require.Nil(t, err, "No error opening stream")

	assert.Equal(t, 0, stream.Count(), "Fresh stream has no records")

	stream.Record("checksum mismatch on %s", "a.jpg")
	stream.Record("remote loss of %s", "b.jpg")
	assert.Equal(t, 2, stream.Count(), "Two records counted")
	assert.Equal(t, []string{"checksum mismatch on a.jpg", "remote loss of b.jpg"}, stream.Records())

	require.Nil(t, stream.Close(), "No error closing stream")

	data, err := os.ReadFile(pathname)
	require.Nil(t, err, "No error reading stream file")
	assert.Equal(t, "checksum mismatch on a.jpg\nremote loss of b.jpg\n", string(data), "One line per record")
}

func TestRecordFlattensNewlines(t *testing.T) {
	stream := NewMemory()
	stream.Record("multi\nline\nmessage")
	assert.Equal(t, 1, stream.Count(), "A single record regardless of embedded newlines")
	assert.Equal(t, "multi line message", stream.Records()[0])
}

func TestRecordLines(t *testing.T) {
	stream := NewMemory()
	stream.RecordLines("first error\n\n  \nsecond error\r\n")
	assert.Equal(t, 2, stream.Count(), "Blank lines do not count")
	assert.Equal(t, []string{"first error", "second error"}, stream.Records())
}

func TestCloseWithoutFile(t *testing.T) {
	stream := NewMemory()
	stream.Record("something")
	assert.Nil(t, stream.Close(), "Closing a memory stream is a no-op")
}
