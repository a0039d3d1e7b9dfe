package runlock

import (
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Lock is the marker left on disk while a run is active.
type Lock struct {
	Timestamp time.Time
	Hostname  string
	Username  string
	MachineID string
	ProcessID int
	RunID     string
}

func New(hostname string, username string, machineID string, processID int, runID string) *Lock {
	return &Lock{
		Timestamp: time.Now(),
		Hostname:  hostname,
		Username:  username,
		MachineID: machineID,
		ProcessID: processID,
		RunID:     runID,
	}
}

func NewFromBytes(serialized []byte) (*Lock, error) {
	var lock Lock
	if err := msgpack.Unmarshal(serialized, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func (lock *Lock) Serialize() ([]byte, error) {
	return msgpack.Marshal(lock)
}

type Status int

const (
	Granted Status = iota
	Busy
)

// Guard serializes runs. A marker file alone cannot distinguish "still
// running" from "crashed mid-run", so the marker is only honored while
// at least one of the tracked artifacts (ledger, file set, transfer
// log) has been written within the staleness window. A marker with no
// recent artifact activity is presumed abandoned and overridden.
type Guard struct {
	markerPath string
	staleness  time.Duration
	artifacts  []string
}

func NewGuard(markerPath string, staleness time.Duration, artifacts ...string) *Guard {
	return &Guard{
		markerPath: markerPath,
		staleness:  staleness,
		artifacts:  artifacts,
	}
}

func (g *Guard) Acquire(lock *Lock) (Status, *Lock, error) {
	serialized, err := os.ReadFile(g.markerPath)
	if err == nil {
		holder, err := NewFromBytes(serialized)
		if err != nil {
			// Unreadable marker: treat like a crashed run, fall
			// through to the liveness check.
			holder = nil
		}
		if g.anyArtifactFresh() {
			return Busy, holder, nil
		}
	} else if !os.IsNotExist(err) {
		return Busy, nil, err
	}

	serialized, err = lock.Serialize()
	if err != nil {
		return Busy, nil, err
	}
	if err := os.WriteFile(g.markerPath, serialized, 0600); err != nil {
		return Busy, nil, err
	}
	return Granted, nil, nil
}

// Release removes the marker. Releasing an already-released guard is
// not an error.
func (g *Guard) Release() error {
	err := os.Remove(g.markerPath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (g *Guard) anyArtifactFresh() bool {
	for _, pathname := range g.artifacts {
		st, err := os.Stat(pathname)
		if err != nil {
			continue
		}
		if time.Since(st.ModTime()) < g.staleness {
			return true
		}
	}
	return false
}
