package report

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/logging"
	"github.com/mirrorkeep/mirrorkeep/mirror"
)

// Pinger is the external status endpoint: one "started" signal and one
// "finished" signal per run, the latter carrying the anomaly count as
// severity.
type Pinger interface {
	Start(runID string) error
	Finish(runID string, failures int, body string) error
}

// NewPinger returns a healthchecks-style HTTP pinger, or a no-op one
// when no endpoint is configured.
func NewPinger(baseURL string) Pinger {
	if baseURL == "" {
		return &NopPinger{}
	}
	return &HTTPPinger{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type NopPinger struct{}

func (p *NopPinger) Start(runID string) error { return nil }

func (p *NopPinger) Finish(runID string, failures int, body string) error { return nil }

type HTTPPinger struct {
	baseURL string
	client  *http.Client
}

func (p *HTTPPinger) Start(runID string) error {
	return p.post(p.baseURL+"/start", runID, "")
}

func (p *HTTPPinger) Finish(runID string, failures int, body string) error {
	target := p.baseURL
	if failures > 0 {
		target += "/fail"
	}
	return p.post(target, runID, body)
}

func (p *HTTPPinger) post(target string, runID string, body string) error {
	req, err := http.NewRequest("POST", target, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "mirrorkeep")
	req.Header.Set("X-Run-Id", runID)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status endpoint returned %s", resp.Status)
	}
	return nil
}

// CheckCapacity queries mirror usage and records a synthetic anomaly
// at or above the configured threshold.
func CheckCapacity(channel mirror.Channel, threshold int, logger *logging.Logger, stream *anomaly.Stream) (int, bool) {
	percent, supported, err := channel.Capacity()
	if err != nil {
		stream.Record("capacity: %s", err)
		return 0, false
	}
	if !supported {
		logger.Info("capacity: not reported by mirror backend")
		return 0, false
	}
	if percent >= threshold {
		stream.Record("capacity: mirror at %d%%, threshold %d%%", percent, threshold)
	}
	return percent, true
}

// Compose renders the one status line sent to the alerting endpoint.
func Compose(percent int, supported bool, elapsed time.Duration, uploadedBytes int64, failures int, lastTransfer string) string {
	capacity := "n/a"
	if supported {
		capacity = fmt.Sprintf("%d%%", percent)
	}
	if lastTransfer == "" {
		lastTransfer = "none"
	}
	return fmt.Sprintf("capacity %s, elapsed %ds, uploaded %s, anomalies %d, last transfer: %s",
		capacity, int(elapsed.Seconds()), humanize.Bytes(uint64(uploadedBytes)), failures, lastTransfer)
}
