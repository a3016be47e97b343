package lstore

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tks/lib/common"
	"github.com/ValentinKolb/tks/lib/coordinate"
	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/db/engines/spine"
	"github.com/ValentinKolb/tks/lib/db/util"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/identity"
	"github.com/ValentinKolb/tks/lib/index"
	"github.com/ValentinKolb/tks/lib/journal"
	"github.com/ValentinKolb/tks/lib/merge"
	"github.com/ValentinKolb/tks/lib/recovery"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/ValentinKolb/tks/lib/txn"
	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// sub directories of the data directory, one per spined map
const (
	RecordsDir   = "byteArrayMap"
	PatternOfDir = "patternNidMap"
	CitingDir    = "citingComponentsMap"
)

// nidLockStripes is the number of locks serializing index updates by nid
const nidLockStripes = 256

type storeImpl struct {
	cfg common.StoreConfig

	registry  *identity.Registry
	records   db.SpinedDB[[]byte]
	citing    db.SpinedDB[[]int32]
	patternOf db.SpinedDB[int32]
	index     *index.Index

	canceled   *recovery.CanceledSet
	merger     *merge.Merger
	paths      *coordinate.PathGraph
	resolver   *coordinate.Resolver
	txns       *txn.Manager
	supervisor *recovery.Supervisor

	journals    []journal.Writer
	ownJournal  *journal.FileWriter
	indexer     store.SearchIndexer
	events      *util.LockFreeMPSC[notification]
	dispatching chan struct{}

	// nidLocks order the merge and the index update of one nid against
	// other writers of the same nid
	nidLocks [nidLockStripes]sync.Mutex

	metrics *storeMetrics

	startupErr error
	closed     atomic.Bool
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Option configures the collaborators of a store
type Option func(*storeImpl)

// WithJournal adds a journal writer. Writers are notified in the order they were added.
func WithJournal(w journal.Writer) Option {
	return func(s *storeImpl) {
		s.journals = append(s.journals, w)
	}
}

// WithSearchIndexer sets the search indexer notified after the journal writers
func WithSearchIndexer(ix store.SearchIndexer) Option {
	return func(s *storeImpl) {
		s.indexer = ix
	}
}

// WithMetricsSet registers the store metrics in set instead of a private set.
// A set can only hold the metrics of one store.
func WithMetricsSet(set *metrics.Set) Option {
	return func(s *storeImpl) {
		s.metrics = newStoreMetrics(set)
	}
}

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// Open opens (or creates) the store in cfg.DataDir.
//
// Failing to open a file is fatal. Failures of the later startup steps (the
// index rebuild, the recovery run and loading the path graph) are logged and
// reported by GetInfo; the store stays available for byte-level operations.
func Open(cfg common.StoreConfig, opts ...Option) (store.IStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, store.WrapError(store.RetCStartup, err, "invalid configuration")
	}

	s := &storeImpl{
		cfg:         cfg,
		indexer:     store.NoopIndexer{},
		events:      util.NewLockFreeMPSC[notification](),
		dispatching: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newStoreMetrics(metrics.NewSet())
	}

	if err := s.openFiles(); err != nil {
		s.events.Close()
		s.closeFiles()
		return nil, err
	}

	s.canceled = recovery.NewCanceledSet()
	s.merger = merge.NewMerger(s.canceled)
	s.index = index.New(s.citing, s.patternOf)
	s.txns = txn.NewManager(s)
	s.supervisor = recovery.NewSupervisor(s, s.txns, s.canceled, cfg.Workers)
	s.paths = coordinate.NewPathGraph()
	s.resolver = coordinate.NewResolver(s.paths, s)
	s.metrics.register(s)

	s.startup()

	go s.dispatch()
	Logger.Infof("opened store in %s: %d identities, %d chronologies", cfg.DataDir, s.registry.Count(), s.countChronologies())
	return s, nil
}

func (s *storeImpl) openFiles() error {
	var err error

	if s.cfg.JournalFile != "" {
		if s.ownJournal, err = journal.OpenFileWriter(s.cfg.JournalFile); err != nil {
			return store.WrapError(store.RetCStartup, err, "opening journal")
		}
		s.journals = append(s.journals, s.ownJournal)
	}

	if s.registry, err = identity.Open(s.cfg.DataDir); err != nil {
		return store.WrapError(store.RetCStartup, err, "opening identity registry")
	}
	if s.records, err = spine.NewSpinedDB[[]byte](s.spineOptions(RecordsDir), db.BytesCodec{}); err != nil {
		return store.WrapError(store.RetCStartup, err, "opening %s", RecordsDir)
	}
	if s.patternOf, err = spine.NewSpinedDB[int32](s.spineOptions(PatternOfDir), db.Int32Codec{}); err != nil {
		return store.WrapError(store.RetCStartup, err, "opening %s", PatternOfDir)
	}
	if s.citing, err = spine.NewSpinedDB[[]int32](s.spineOptions(CitingDir), db.Int32SetCodec{}); err != nil {
		return store.WrapError(store.RetCStartup, err, "opening %s", CitingDir)
	}
	return nil
}

func (s *storeImpl) spineOptions(dir string) spine.Options {
	return spine.Options{
		Dir:           filepath.Join(s.cfg.DataDir, dir),
		SpineSize:     s.cfg.SpineSize,
		Workers:       s.cfg.Workers,
		FlushInterval: s.cfg.FlushInterval,
		Compress:      s.cfg.CompressSpines,
	}
}

// startup rebuilds the in-memory indexes, runs the recovery supervisor once the
// identity preload finished and loads the path graph
func (s *storeImpl) startup() {
	var result *multierror.Error

	if err := s.index.Rebuild(s.scanHeaders); err != nil {
		result = multierror.Append(result, store.WrapError(store.RetCStartup, err, "rebuilding index"))
	}

	<-s.registry.Ready()
	if _, err := s.supervisor.Run(); err != nil {
		result = multierror.Append(result, store.WrapError(store.RetCStartup, err, "recovering stamps"))
	}

	if err := s.loadPaths(); err != nil {
		result = multierror.Append(result, store.WrapError(store.RetCStartup, err, "loading path origins"))
	}

	if err := result.ErrorOrNil(); err != nil {
		Logger.Errorf("store in %s started with errors: %v", s.cfg.DataDir, err)
		s.startupErr = err
	}
}

// scanHeaders feeds the header of every record to fn. Records that cannot be
// decoded are skipped with a warning.
func (s *storeImpl) scanHeaders(fn func(h entity.Header) error) error {
	return s.records.ForEachParallel(func(nid int32, record []byte) error {
		h, err := headerOf(record)
		if err != nil {
			Logger.Warningf("skipping undecodable record of nid %d: %v", nid, err)
			return nil
		}
		return fn(h)
	})
}

func (s *storeImpl) countChronologies() int {
	return s.index.CountOfType(entity.ConceptChronologyToken) +
		s.index.CountOfType(entity.PatternChronologyToken) +
		s.index.CountOfType(entity.SemanticChronologyToken) +
		s.index.CountOfType(entity.StampChronologyToken)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (s *storeImpl) Begin(name string) *txn.Transaction {
	return s.txns.Begin(name)
}

func (s *storeImpl) Recover() (recovery.Report, error) {
	report, err := s.supervisor.Run()
	return report, store.WrapError(store.RetCIO, err, "recovery")
}

func (s *storeImpl) Sync() error {
	s.events.WaitIdle()
	return s.flushJournals()
}

func (s *storeImpl) flushJournals() error {
	var result *multierror.Error
	for _, w := range s.journals {
		if f, ok := w.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return store.WrapError(store.RetCIO, result.ErrorOrNil(), "flushing journals")
}

func (s *storeImpl) Save() error {
	s.events.WaitIdle()

	var result *multierror.Error
	if err := s.registry.Save(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.records.Save(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.index.Save(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.flushJournals(); err != nil {
		result = multierror.Append(result, err)
	}
	return store.WrapError(store.RetCIO, result.ErrorOrNil(), "saving %s", s.cfg.DataDir)
}

// Close runs a final recovery pass, waits for pending notifications and closes
// all files. Calling Close more than once is a no-op.
func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if _, err := s.supervisor.Run(); err != nil {
		result = multierror.Append(result, err)
	}

	s.events.WaitIdle()
	s.events.Close()
	<-s.dispatching

	if err := s.closeFiles(); err != nil {
		result = multierror.Append(result, err)
	}

	Logger.Infof("closed store in %s", s.cfg.DataDir)
	return store.WrapError(store.RetCIO, result.ErrorOrNil(), "closing %s", s.cfg.DataDir)
}

// closeFiles closes everything openFiles opened, also after a partial open
func (s *storeImpl) closeFiles() error {
	var result *multierror.Error
	if s.records != nil {
		if err := s.records.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.patternOf != nil {
		if err := s.patternOf.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.citing != nil {
		if err := s.citing.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.ownJournal != nil {
		if err := s.ownJournal.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *storeImpl) GetInfo() store.Info {
	info := store.Info{
		DataDir:     s.cfg.DataDir,
		Identities:  s.registry.Count(),
		NextNid:     s.registry.NextNid(),
		Concepts:    s.index.CountOfType(entity.ConceptChronologyToken),
		Patterns:    s.index.CountOfType(entity.PatternChronologyToken),
		Semantics:   s.index.CountOfType(entity.SemanticChronologyToken),
		Stamps:      s.index.CountOfType(entity.StampChronologyToken),
		Canceled:    s.canceled.Len(),
		OpenTxns:    len(s.txns.Active()),
		Merge:       s.merger.Stats(),
		Notified:    s.metrics.notified.Get(),
		NotifyFails: s.metrics.notifyErrors.Get(),
		Records:     s.records.GetInfo(),
		Citing:      s.citing.GetInfo(),
		PatternOf:   s.patternOf.GetInfo(),
	}
	if s.startupErr != nil {
		info.StartupErr = s.startupErr.Error()
	}
	return info
}
