package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
root: /archive
mirror: ssh://backup@mirror.example.org/backups/archive
state_dir: /var/lib/mirrorkeep
`))
	require.Nil(t, err, "No error parsing minimal config")

	assert.Equal(t, DefaultWindowSize, cfg.WindowSize)
	assert.Equal(t, DefaultStalenessWindow, cfg.Staleness())
	assert.Equal(t, DefaultCapacityThreshold, cfg.CapacityThreshold)
	assert.Equal(t, "sha256", cfg.HashAlgorithm)
	assert.Equal(t, "/var/lib/mirrorkeep/ledger", cfg.LedgerPath())
	assert.Equal(t, "/var/lib/mirrorkeep/lock", cfg.LockPath())
	assert.Equal(t, "/var/lib/mirrorkeep/fileset", cfg.FileSetPath())
	assert.Equal(t, "/var/lib/mirrorkeep/transfer.log", cfg.TransferLogPath())
	assert.Equal(t, "/var/lib/mirrorkeep/errors-abc.log", cfg.ErrorLogPath("abc"))
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
root: /archive
mirror: /mnt/mirror
state_dir: /var/lib/mirrorkeep
window_size: 25
staleness_minutes: 30
capacity_threshold: 90
exclude:
  - "*.marker"
status_url: https://hc-ping.example.org/uuid
`))
	require.Nil(t, err, "No error parsing config")

	assert.Equal(t, 25, cfg.WindowSize)
	assert.Equal(t, 30*time.Minute, cfg.Staleness())
	assert.Equal(t, 90, cfg.CapacityThreshold)
	assert.Len(t, cfg.Excludes(), 1)
	assert.True(t, cfg.Excludes()[0].Match("sidecar.marker"))
	assert.False(t, cfg.Excludes()[0].Match("photo.jpg"))
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no root":           "mirror: /mnt/mirror\nstate_dir: /tmp/s\n",
		"no mirror":         "root: /archive\nstate_dir: /tmp/s\n",
		"no state dir":      "root: /archive\nmirror: /mnt/mirror\n",
		"negative window":   "root: /a\nmirror: /m\nstate_dir: /s\nwindow_size: -1\n",
		"threshold too big": "root: /a\nmirror: /m\nstate_dir: /s\ncapacity_threshold: 150\n",
		"bad glob":          "root: /a\nmirror: /m\nstate_dir: /s\nexclude: [\"[\"]\n",
		"not yaml":          "{{{",
	}
	for name, content := range cases {
		_, err := Parse([]byte(content))
		assert.NotNil(t, err, "Expected error for %s", name)
	}
}
