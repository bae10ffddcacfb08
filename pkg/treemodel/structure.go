package treemodel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/espalier/pkg/model"
	"github.com/vanderheijden86/espalier/pkg/structure"
)

// Update is one materialization result flowing from the materializer to
// the async front: the node's fresh snapshot (nil when the node is
// gone) plus the minimal change records against the previous snapshot.
type Update struct {
	Node     model.NodeID
	Snapshot *model.NodeSnapshot
	Records  []model.ChangeRecord
}

// Option configures a StructureModel.
type Option func(*StructureModel)

// WithWorkers sets the number of materializer workers. Materialization
// stays sequential per node regardless; extra workers only let
// independent subtrees materialize concurrently, so the provider must
// be reentrant for workers > 1. Default 1.
func WithWorkers(n int) Option {
	return func(m *StructureModel) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithComparator sets the initial sibling comparator.
func WithComparator(c model.Comparator) Option {
	return func(m *StructureModel) {
		m.comparator.Store(comparatorBox{c})
	}
}

// WithEagerRecursion makes recursive invalidation mark materialized
// descendants dirty immediately instead of relying on lazy re-check
// during descent. Trades invalidation cost against staleness window.
func WithEagerRecursion() Option {
	return func(m *StructureModel) { m.eager = true }
}

// WithUpdateBuffer sets the updates channel capacity. Default 64.
func WithUpdateBuffer(n int) Option {
	return func(m *StructureModel) {
		if n > 0 {
			m.updateBuffer = n
		}
	}
}

// comparatorBox keeps atomic.Value happy across differing func values.
type comparatorBox struct{ cmp model.Comparator }

// Metrics is a point-in-time counter snapshot for diagnostics.
type Metrics struct {
	Materializations uint64
	Requeues         uint64
	Gone             uint64
	Faults           uint64
}

// StructureModel is the write side of the engine: it owns the snapshot
// store, accepts invalidations from any goroutine, and runs the
// materializer workers that keep the store consistent with the
// provider. Consumers read through an AsyncModel layered on top.
type StructureModel struct {
	provider     structure.Provider
	store        *store
	comparator   atomic.Value // comparatorBox
	updates      chan Update
	workers      int
	eager        bool
	updateBuffer int

	materializations atomic.Uint64
	requeues         atomic.Uint64
	gone             atomic.Uint64
	faults           atomic.Uint64

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewStructureModel creates an engine over the given provider. The root
// is available immediately; its first materialization is scheduled by
// Start.
func NewStructureModel(p structure.Provider, opts ...Option) *StructureModel {
	m := &StructureModel{
		provider:     p,
		store:        newStore(p.Root()),
		workers:      envPositiveIntOr("ESPALIER_WORKERS", 1),
		updateBuffer: envPositiveIntOr("ESPALIER_UPDATE_BUFFER", 64),
	}
	m.comparator.Store(comparatorBox{nil})
	for _, opt := range opts {
		opt(m)
	}
	m.updates = make(chan Update, m.updateBuffer)
	return m
}

// Root returns the root identifier without waiting for any
// materialization.
func (m *StructureModel) Root() model.NodeID { return m.store.root }

// Updates returns the materialization result stream. The channel is
// closed by Stop. It must be drained; AsyncModel does so when layered
// on top.
func (m *StructureModel) Updates() <-chan Update { return m.updates }

// Metrics returns the current counter values.
func (m *StructureModel) Metrics() Metrics {
	return Metrics{
		Materializations: m.materializations.Load(),
		Requeues:         m.requeues.Load(),
		Gone:             m.gone.Load(),
		Faults:           m.faults.Load(),
	}
}

// Start launches the materializer workers and schedules the root's
// first materialization. Start is idempotent.
func (m *StructureModel) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if m.ctx != nil {
		return fmt.Errorf("structure model has been stopped")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.group, _ = errgroup.WithContext(m.ctx)
	for i := 0; i < m.workers; i++ {
		m.group.Go(func() error {
			m.runWorker(m.ctx)
			return nil
		})
	}
	m.started = true
	m.store.markDirty(m.store.root)
	return nil
}

// Stop terminates the workers and closes the update stream. In-flight
// materializations finish or are dropped; pending visit waiters are
// released by context cancellation on the visitor side.
func (m *StructureModel) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	group := m.group
	m.mu.Unlock()

	cancel()
	_ = group.Wait()
	close(m.updates)
}

// SetComparator replaces the sibling comparator. Takes effect on the
// next materialization of each subtree only; cached order is untouched
// until then.
func (m *StructureModel) SetComparator(c model.Comparator) {
	m.comparator.Store(comparatorBox{c})
}

// Comparator returns the active comparator, which may be nil.
func (m *StructureModel) Comparator() model.Comparator {
	box, _ := m.comparator.Load().(comparatorBox)
	return box.cmp
}

// Invalidate marks a node dirty and wakes the workers. With recursive
// set, the subtree is conceptually dirty; by default descendants are
// re-evaluated lazily when reached, with WithEagerRecursion switching
// to eager marking of materialized descendants. Invalidating a node
// mid-materialization schedules exactly one follow-up run.
func (m *StructureModel) Invalidate(id model.NodeID, recursive bool) {
	if recursive && m.eager {
		m.store.markSubtreeDirty(id)
		return
	}
	m.store.markDirty(id)
}

// InvalidateAll schedules a full rebuild from the root down,
// superseding all targeted invalidations currently queued.
func (m *StructureModel) InvalidateAll() {
	m.store.markAllDirty()
}

func envPositiveIntOr(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
