package recovery

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/index"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("recovery")

// StampStore gives the supervisor access to all stamps of a store
type StampStore interface {
	// StampNids returns the nids of all stamp chronologies
	StampNids() []int32

	// StampFor returns the current value of a stamp
	StampFor(nid int32) (entity.Stamp, bool, error)

	// CancelUncommitted atomically rewrites a stamp as canceled if it still
	// carries no commit time. It returns the stamp as stored afterwards and
	// whether it was canceled by this call.
	CancelUncommitted(nid int32) (entity.Stamp, bool, error)
}

// Claims reports whether an open transaction owns a stamp
type Claims interface {
	Claims(stampNid int32) bool
}

// --------------------------------------------------------------------------
// Canceled stamp set
// --------------------------------------------------------------------------

// CanceledSet is the set of canceled stamps consulted by the merge engine
type CanceledSet struct {
	nids *index.NidSet
}

// NewCanceledSet creates an empty set
func NewCanceledSet() *CanceledSet {
	return &CanceledSet{nids: index.NewNidSet()}
}

// IsCanceled reports whether stampNid is canceled
func (c *CanceledSet) IsCanceled(stampNid int32) bool { return c.nids.Contains(stampNid) }

// Add records stampNid as canceled
func (c *CanceledSet) Add(stampNid int32) bool { return c.nids.Add(stampNid) }

// Len returns the number of canceled stamps
func (c *CanceledSet) Len() int { return c.nids.Len() }

// Nids returns the canceled stamps in ascending order
func (c *CanceledSet) Nids() []int32 { return c.nids.Slice() }

// --------------------------------------------------------------------------
// Supervisor
// --------------------------------------------------------------------------

// Report summarizes one recovery run
type Report struct {
	Scanned  int           // stamps inspected
	Canceled int           // uncommitted stamps canceled by this run
	Claimed  int           // uncommitted stamps left alone because a transaction owns them
	Total    int           // size of the canceled set after the run
	Duration time.Duration // wall time of the run
}

// Supervisor cancels stamps left uncommitted by a crash and maintains the
// canceled stamp set.
type Supervisor struct {
	stamps   StampStore
	claims   Claims
	canceled *CanceledSet
	workers  int
}

// NewSupervisor creates a supervisor. claims may be nil if no transactions exist.
func NewSupervisor(stamps StampStore, claims Claims, canceled *CanceledSet, workers int) *Supervisor {
	return &Supervisor{stamps: stamps, claims: claims, canceled: canceled, workers: workers}
}

// Run inspects every stamp. An uncommitted stamp no transaction claims is
// rewritten as canceled; every canceled stamp is added to the canceled set.
// Run is idempotent and is executed on open and again on close.
func (s *Supervisor) Run() (Report, error) {
	start := time.Now()
	nids := s.stamps.StampNids()

	var (
		g        errgroup.Group
		canceled atomic.Int64
		claimed  atomic.Int64
	)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}

	for _, nid := range nids {
		g.Go(func() error {
			stamp, ok, err := s.stamps.StampFor(nid)
			if err != nil {
				return errors.Wrapf(err, "reading stamp %d", nid)
			}
			if !ok {
				return nil
			}

			if stamp.IsUncommitted() {
				if s.claims != nil && s.claims.Claims(nid) {
					claimed.Add(1)
					return nil
				}
				// a commit may finish between the read and the claim check
				current, changed, err := s.stamps.CancelUncommitted(nid)
				if err != nil {
					return errors.Wrapf(err, "canceling stamp %d", nid)
				}
				if changed {
					canceled.Add(1)
					Logger.Infof("canceled uncommitted stamp %d", nid)
				}
				stamp = current
			}
			if stamp.IsCanceled() {
				s.canceled.Add(nid)
			}
			return nil
		})
	}

	err := g.Wait()
	report := Report{
		Scanned:  len(nids),
		Canceled: int(canceled.Load()),
		Claimed:  int(claimed.Load()),
		Total:    s.canceled.Len(),
		Duration: time.Since(start),
	}
	if err != nil {
		Logger.Errorf("recovery failed after %s: %v", report.Duration, err)
		return report, err
	}
	Logger.Infof("recovery scanned %d stamps in %s: %d canceled now, %d claimed, %d canceled in total",
		report.Scanned, report.Duration, report.Canceled, report.Claimed, report.Total)
	return report, nil
}
