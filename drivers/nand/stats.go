package nand

import (
	"github.com/rcrowley/go-metrics"

	"github.com/clktmr/mxs/soc/bch"
)

// EccStats summarizes the ECC results of one or more pages.
type EccStats struct {
	Corrected   int // corrected bitflips
	Failed      int // uncorrectable chunks
	MaxBitflips int // most bitflips corrected in a single chunk
}

func (s *EccStats) add(o EccStats) {
	s.Corrected += o.Corrected
	s.Failed += o.Failed
	s.MaxBitflips = max(s.MaxBitflips, o.MaxBitflips)
}

// parseStatus evaluates the per chunk status bytes the BCH engine appended to
// the metadata.
func parseStatus(status []byte) (s EccStats) {
	for _, b := range status {
		switch b {
		case bch.StatusClean, bch.StatusErased:
		case bch.StatusUncorrectable:
			s.Failed++
		default:
			s.Corrected += int(b)
			s.MaxBitflips = max(s.MaxBitflips, int(b))
		}
	}
	return s
}

// Stats returns the accumulated ECC statistics. Corrected bits are only
// accounted for pages which failed, or came close to the correction limit.
func (d *NAND) Stats() EccStats { return d.stats }

// account adds the statistics of a page read to the driver's totals.
func (d *NAND) account(s EccStats) {
	limit := d.layout.BlockNStrength - 1
	if s.Failed > 0 || s.MaxBitflips >= limit {
		d.stats.Corrected += s.Corrected
		d.m.corrected.Inc(int64(s.Corrected))
	}
	d.stats.Failed += s.Failed
	d.stats.MaxBitflips = max(d.stats.MaxBitflips, s.MaxBitflips)
	d.m.failed.Inc(int64(s.Failed))
}

type counters struct {
	corrected metrics.Counter
	failed    metrics.Counter
	timeouts  metrics.Counter
	busErrors metrics.Counter
	reads     metrics.Counter
	writes    metrics.Counter
	erases    metrics.Counter
}

// newCounters registers the driver's counters in r. With a nil registry the
// counters are still usable but not published.
func newCounters(r metrics.Registry) counters {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return counters{
		corrected: metrics.GetOrRegisterCounter("nand.ecc.corrected", r),
		failed:    metrics.GetOrRegisterCounter("nand.ecc.failed", r),
		timeouts:  metrics.GetOrRegisterCounter("nand.dma.timeout", r),
		busErrors: metrics.GetOrRegisterCounter("nand.dma.error", r),
		reads:     metrics.GetOrRegisterCounter("nand.page.read", r),
		writes:    metrics.GetOrRegisterCounter("nand.page.write", r),
		erases:    metrics.GetOrRegisterCounter("nand.block.erase", r),
	}
}
