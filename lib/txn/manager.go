package txn

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("txn")

// ErrTransactionDone is returned when a committed or canceled transaction is used
var ErrTransactionDone = errors.New("transaction already finished")

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager hands out transactions and keeps track of the stamps they claim.
//
// Claims only live in memory: after a restart no stamp is claimed, so every
// stamp still uncommitted is canceled by the recovery supervisor.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	stamps StampStore
	claims *xsync.MapOf[int32, uuid.UUID] // stamp nid -> transaction id
	active *xsync.MapOf[uuid.UUID, *Transaction]
}

// NewManager creates a manager writing stamps through stamps
func NewManager(stamps StampStore) *Manager {
	return &Manager{
		stamps: stamps,
		claims: xsync.NewMapOf[int32, uuid.UUID](),
		active: xsync.NewMapOf[uuid.UUID, *Transaction](),
	}
}

// Begin starts a transaction
func (m *Manager) Begin(name string) *Transaction {
	t := &Transaction{
		ID:      uuid.New(),
		Name:    name,
		manager: m,
	}
	m.active.Store(t.ID, t)
	Logger.Debugf("begin %s", t)
	return t
}

// Claims reports whether an open transaction owns stampNid
func (m *Manager) Claims(stampNid int32) bool {
	_, ok := m.claims.Load(stampNid)
	return ok
}

// Active returns the open transactions
func (m *Manager) Active() []*Transaction {
	var out []*Transaction
	m.active.Range(func(_ uuid.UUID, t *Transaction) bool {
		out = append(out, t)
		return true
	})
	return out
}

// CancelAll cancels every open transaction
func (m *Manager) CancelAll() error {
	var result *multierror.Error
	for _, t := range m.Active() {
		if err := t.Cancel(); err != nil && !errors.Is(err, ErrTransactionDone) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m *Manager) release(t *Transaction) {
	for _, nid := range t.stampNids {
		m.claims.Delete(nid)
	}
	m.active.Delete(t.ID)
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Transaction groups the stamps of one edit. Its stamps are uncommitted until
// Commit gives them a time, or canceled by Cancel.
//
// Thread-safety: a transaction may be shared; its methods are serialized.
type Transaction struct {
	ID   uuid.UUID
	Name string

	manager   *Manager
	mu        sync.Mutex
	stampNids []int32
	values    map[int32]entity.Stamp
	done      bool
}

// NewStamp creates an uncommitted stamp owned by the transaction
func (t *Transaction) NewStamp(status entity.Status, author, module, path int32) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return entity.InvalidNid, ErrTransactionDone
	}

	s := entity.Stamp{Status: status, Time: entity.TimeUncommitted, Author: author, Module: module, Path: path}
	id := uuid.New()
	nid, err := t.manager.stamps.StampNid(id)
	if err != nil {
		return entity.InvalidNid, errors.Wrapf(err, "registering stamp in %s", t)
	}

	// the claim must exist before a recovery run can see the uncommitted stamp
	t.manager.claims.Store(nid, t.ID)
	if err := t.manager.stamps.WriteStamp(nid, id, s); err != nil {
		t.manager.claims.Delete(nid)
		return entity.InvalidNid, errors.Wrapf(err, "writing stamp %d in %s", nid, t)
	}
	t.stampNids = append(t.stampNids, nid)
	if t.values == nil {
		t.values = make(map[int32]entity.Stamp)
	}
	t.values[nid] = s
	return nid, nil
}

// Stamps returns the nids of the stamps created by the transaction
func (t *Transaction) Stamps() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.stampNids)
}

// Commit gives all stamps of the transaction the commit time
func (t *Transaction) Commit(time int64) error {
	if time == entity.TimeUncommitted || time == entity.TimeCanceled {
		return fmt.Errorf("invalid commit time %d", time)
	}
	return t.finish("commit", func(s entity.Stamp) entity.Stamp {
		s.Time = time
		return s
	})
}

// Cancel marks all stamps of the transaction as canceled. Versions written
// under them are dropped by the next merge of their chronologies.
func (t *Transaction) Cancel() error {
	return t.finish("cancel", entity.Stamp.Canceled)
}

func (t *Transaction) finish(what string, rewrite func(entity.Stamp) entity.Stamp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	defer t.manager.release(t)

	var result *multierror.Error
	for _, nid := range t.stampNids {
		if err := t.manager.stamps.RewriteStamp(nid, rewrite(t.values[nid])); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "stamp %d", nid))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		Logger.Errorf("%s of %s failed: %v", what, t, err)
		return err
	}
	Logger.Debugf("%s %s (%d stamps)", what, t, len(t.stampNids))
	return nil
}

func (t *Transaction) String() string {
	if t.Name == "" {
		return "txn " + t.ID.String()
	}
	return fmt.Sprintf("txn %s (%s)", t.Name, t.ID)
}
