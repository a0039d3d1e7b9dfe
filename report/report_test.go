package report

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/logging"
	fsmirror "github.com/mirrorkeep/mirrorkeep/mirror/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPinger(t *testing.T) {
	type ping struct {
		path string
		body string
	}
	var pings []ping
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		pings = append(pings, ping{path: r.URL.Path, body: string(body)})
	}))
	defer server.Close()

	pinger := NewPinger(server.URL + "/uuid")
	require.Nil(t, pinger.Start("run-1"))
	require.Nil(t, pinger.Finish("run-1", 0, "all clean"))
	require.Nil(t, pinger.Finish("run-2", 3, "3 anomalies"))

	require.Len(t, pings, 3)
	assert.Equal(t, "/uuid/start", pings[0].path)
	assert.Equal(t, "/uuid", pings[1].path, "Zero failures pings the healthy endpoint")
	assert.Equal(t, "all clean", pings[1].body)
	assert.Equal(t, "/uuid/fail", pings[2].path, "Failures ping the failure endpoint")
	assert.Equal(t, "3 anomalies", pings[2].body)
}

func TestHTTPPingerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pinger := NewPinger(server.URL)
	assert.NotNil(t, pinger.Start("run-1"), "HTTP errors surface to the caller")
}

func TestNopPinger(t *testing.T) {
	pinger := NewPinger("")
	assert.Nil(t, pinger.Start("run-1"))
	assert.Nil(t, pinger.Finish("run-1", 10, "whatever"))
}

func TestCheckCapacity(t *testing.T) {
	channel, err := fsmirror.NewFSMirror(t.TempDir())
	require.Nil(t, err)
	logger := logging.NewLogger(io.Discard, io.Discard)

	stream := anomaly.NewMemory()
	percent, supported := CheckCapacity(channel, 101, logger, stream)
	assert.True(t, supported)
	assert.Equal(t, 0, stream.Count(), "Below threshold records nothing")

	stream = anomaly.NewMemory()
	CheckCapacity(channel, 0, logger, stream)
	require.Equal(t, 1, stream.Count(), "At or above threshold records a synthetic anomaly")
	assert.Contains(t, stream.Records()[0], "capacity")

	_ = percent
}

func TestCompose(t *testing.T) {
	line := Compose(42, true, 90*time.Second, 2048, 3, "a.jpg 2.0 kB")
	assert.Contains(t, line, "capacity 42%")
	assert.Contains(t, line, "elapsed 90s")
	assert.Contains(t, line, "anomalies 3")
	assert.Contains(t, line, "a.jpg")
	assert.False(t, strings.Contains(line, "\n"), "One single status line")

	line = Compose(0, false, time.Second, 0, 0, "")
	assert.Contains(t, line, "capacity n/a")
	assert.Contains(t, line, "last transfer: none")
}
