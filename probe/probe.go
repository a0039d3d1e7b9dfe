package probe

import (
	"math/rand"

	"github.com/mirrorkeep/mirrorkeep/anomaly"
	"github.com/mirrorkeep/mirrorkeep/hashing"
	"github.com/mirrorkeep/mirrorkeep/ledger"
	"github.com/mirrorkeep/mirrorkeep/logging"
	"github.com/mirrorkeep/mirrorkeep/mirror"
)

// Check fetches one random file back from the mirror and confirms the
// received bytes hash to the ledgered digest. This is the only step
// that proves end-to-end retrievability rather than mere presence.
// A mismatch is an anomaly: either a ledger gap for a brand-new file,
// or a genuine retrieval fault.
func Check(channel mirror.Channel, lgr *ledger.Ledger, localSet []string, algorithm string, rng *rand.Rand, logger *logging.Logger, stream *anomaly.Stream) {
	if len(localSet) == 0 {
		return
	}
	pathname := localSet[rng.Intn(len(localSet))]

	rd, err := channel.Fetch(pathname)
	if err != nil {
		stream.Record("probe: fetch %s: %s", pathname, err)
		return
	}
	digest, err := hashing.HashReader(algorithm, rd)
	if cerr := rd.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		stream.Record("probe: fetch %s: %s", pathname, err)
		return
	}

	record, exists := lgr.Lookup(pathname)
	if !exists {
		stream.Record("probe: no ledger record for %s", pathname)
		return
	}
	if record.Digest != hashing.NormalizeDigest(digest) {
		stream.Record("probe: digest mismatch on %s: ledger %s, fetched %s", pathname, record.Digest, digest)
		return
	}
	logger.Info("probe: %s retrieved and verified", pathname)
}
