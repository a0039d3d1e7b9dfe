package sentinel

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/appcontext"
	"github.com/mirrorkeep/mirrorkeep/config"
	"github.com/mirrorkeep/mirrorkeep/enumerate"
	"github.com/mirrorkeep/mirrorkeep/ledger"
	"github.com/mirrorkeep/mirrorkeep/mirror"
	"github.com/mirrorkeep/mirrorkeep/probe"
	"github.com/mirrorkeep/mirrorkeep/reconcile"
	"github.com/mirrorkeep/mirrorkeep/report"
	"github.com/mirrorkeep/mirrorkeep/runlock"
	"github.com/mirrorkeep/mirrorkeep/transfer"
	"github.com/mirrorkeep/mirrorkeep/verify"
)

// Runner executes one full replication and verification run:
// guard, enumerate, transfer, reconcile, verify, protect, probe,
// report, guard release. Steps are strictly sequential; anomalies are
// funnelled into a single stream and only the guard conflict and
// enumeration failures abort the run.
type Runner struct {
	Ctx     *appcontext.AppContext
	Config  *config.Config
	Channel mirror.Channel
	Pinger  report.Pinger

	// Rand may be set by tests; a time-seeded source is used otherwise.
	Rand *rand.Rand
}

// Run returns the run's anomaly count, which is also the process exit
// code. Fatal aborts return 1.
func (r *Runner) Run() int {
	started := time.Now()
	runID := uuid.NewString()
	logger := r.Ctx.Logger

	cfg := r.Config
	guard := runlock.NewGuard(cfg.LockPath(), cfg.Staleness(),
		cfg.LedgerPath(), cfg.FileSetPath(), cfg.TransferLogPath())

	lock := runlock.New(r.Ctx.GetHostname(), r.Ctx.GetUsername(),
		r.Ctx.GetMachineID(), r.Ctx.GetProcessID(), runID)
	status, holder, err := guard.Acquire(lock)
	if err != nil {
		logger.Error("lock: %s", err)
		r.Pinger.Finish(runID, 1, fmt.Sprintf("cannot acquire run lock: %s", err))
		return 1
	}
	if status == runlock.Busy {
		detail := "another run is active"
		if holder != nil {
			detail = fmt.Sprintf("another run is active (run %s, pid %d on %s since %s)",
				holder.RunID, holder.ProcessID, holder.Hostname, holder.Timestamp.Format(time.RFC3339))
		}
		logger.Error("lock: %s", detail)
		r.Pinger.Finish(runID, 1, detail)
		return 1
	}
	// Released unconditionally: a path-validation abort must not leave
	// the marker behind for the whole staleness window.
	defer guard.Release()

	stream, err := anomaly.Open(cfg.ErrorLogPath(runID))
	if err != nil {
		logger.Error("errors log: %s", err)
		r.Pinger.Finish(runID, 1, fmt.Sprintf("cannot open error stream: %s", err))
		return 1
	}
	defer stream.Close()

	localSet, err := enumerate.Scan(cfg.Root, cfg.Excludes())
	if err != nil {
		logger.Error("enumerate: %s", err)
		r.Pinger.Finish(runID, 1, fmt.Sprintf("enumeration failed: %s", err))
		return 1
	}
	logger.Info("enumerated %d local files under %s", len(localSet), cfg.Root)

	if err := r.Pinger.Start(runID); err != nil {
		logger.Warn("status endpoint: %s", err)
	}

	if err := enumerate.Save(cfg.FileSetPath(), localSet); err != nil {
		stream.Record("fileset: %s", err)
	}
	defer enumerate.Remove(cfg.FileSetPath())

	lgr, err := ledger.Load(cfg.LedgerPath())
	if err != nil {
		// An unreadable ledger needs manual recovery; mutating state
		// on top of it could destroy the only record of known-good
		// digests.
		logger.Error("ledger: %s", err)
		r.Pinger.Finish(runID, 1, fmt.Sprintf("ledger unreadable: %s", err))
		return 1
	}

	engine := transfer.NewEngine(cfg.Root, r.Channel, cfg.TransferLogPath(), logger, stream)

	// One remote inventory snapshot, taken before the push: the
	// reconciler judges it against the ledger, so a ledgered path
	// missing here is reported as remote loss even though the transfer
	// engine re-adds it in the same run.
	remoteList, remoteOK := r.listRemote(stream)
	var outcome *transfer.Outcome
	if remoteOK {
		remoteSet := make([]string, 0, len(remoteList))
		for _, info := range remoteList {
			remoteSet = append(remoteSet, info.Path)
		}
		outcome = engine.Upload(localSet, remoteSet)
		reconcile.Classify(cfg.Root, localSet, lgr, remoteList, logger, stream)
	} else {
		outcome = &transfer.Outcome{}
	}

	verifier := &verify.Verifier{
		Root:        cfg.Root,
		Algorithm:   cfg.HashAlgorithm,
		WindowSize:  cfg.WindowSize,
		Concurrency: r.Ctx.GetNumCPU(),
		Channel:     r.Channel,
		Logger:      logger,
		Stream:      stream,
	}
	result := verifier.Run(lgr, localSet)
	if err := result.Ledger.Save(cfg.LedgerPath()); err != nil {
		stream.Record("ledger: save failed: %s", err)
	}

	engine.Protect(outcome)

	rng := r.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	probe.Check(r.Channel, result.Ledger, localSet, cfg.HashAlgorithm, rng, logger, stream)

	percent, supported := report.CheckCapacity(r.Channel, cfg.CapacityThreshold, logger, stream)

	failures := stream.Count()
	body := report.Compose(percent, supported, time.Since(started), outcome.Bytes, failures, transfer.LastLogLine(cfg.TransferLogPath()))
	logger.Stdout("%s", body)
	if err := r.Pinger.Finish(runID, failures, body); err != nil {
		logger.Warn("status endpoint: %s", err)
	}

	logger.Info("run %s: %d enumerated, %d uploaded, %d reverified, %d anomalies in %s",
		runID, len(localSet), len(outcome.Uploaded), len(result.Window), failures, time.Since(started).Round(time.Second))
	return failures
}

func (r *Runner) listRemote(stream *anomaly.Stream) ([]mirror.FileInfo, bool) {
	remoteList, err := r.Channel.List()
	if err != nil {
		stream.Record("mirror: list failed: %s", err)
		return nil, false
	}
	return remoteList, true
}
