package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vanderheijden86/espalier/pkg/model"
	"github.com/vanderheijden86/espalier/pkg/structure"
	"github.com/vanderheijden86/espalier/pkg/testutil"
	"github.com/vanderheijden86/espalier/pkg/treemodel"
)

func newFixture(t *testing.T) (*structure.MemoryProvider, *treemodel.AsyncModel, *Dispatcher) {
	t.Helper()
	p := structure.NewMemoryProvider("root")
	p.SetChildren("root", "a", "b")
	p.SetChildren("a", "a1")
	p.SetPayload("a", model.Payload{Name: "a", File: "/proj/a"})
	p.SetPayload("a1", model.Payload{Name: "a1", Element: "elem-a1", File: "/proj/a/a1.go", Leaf: true})
	p.SetPayload("b", model.Payload{Name: "b", File: "/proj/b"})

	engine := treemodel.NewStructureModel(p)
	if err := engine.Start(); err != nil {
		t.Fatal(err)
	}
	async := treemodel.NewAsyncModel(engine)
	d := New(engine, async)
	t.Cleanup(func() {
		d.Close()
		engine.Stop()
		<-async.Done()
	})

	// Materialize the whole fixture so visits resolve instantly.
	for _, id := range []model.NodeID{"root", "a", "b", "a1"} {
		testutil.Eventually(t, 2*time.Second, func() bool {
			_, stale := async.Children(id)
			return !stale
		})
	}
	return p, async, d
}

func settledChildren(t *testing.T, async *treemodel.AsyncModel, id model.NodeID, n int) []model.NodeID {
	t.Helper()
	var children []model.NodeID
	testutil.Eventually(t, 2*time.Second, func() bool {
		var stale bool
		children, stale = async.Children(id)
		return !stale && len(children) == n
	})
	return children
}

func TestSelectByElement(t *testing.T) {
	_, _, d := newFixture(t)
	path, err := d.Select(context.Background(), "elem-a1", "")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	testutil.AssertPath(t, path, "root", "a", "a1")
}

func TestSelectFallsBackToFile(t *testing.T) {
	_, _, d := newFixture(t)
	path, err := d.Select(context.Background(), "", "/proj/a/a1.go")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	testutil.AssertPath(t, path, "root", "a", "a1")
}

func TestSelectWithoutKeysResolvesNil(t *testing.T) {
	_, _, d := newFixture(t)
	path, err := d.Select(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Select must not fail on a misconfigured call: %v", err)
	}
	if path != nil {
		t.Errorf("expected nil path, got %v", path)
	}
}

func TestUpdateByFileInvalidatesBackingSubtree(t *testing.T) {
	p, async, d := newFixture(t)

	p.SetChildren("a", "a1", "a2")
	if err := d.UpdateByFile(context.Background(), "/proj/a"); err != nil {
		t.Fatalf("UpdateByFile failed: %v", err)
	}
	testutil.AssertChildren(t, settledChildren(t, async, "a", 2), "a1", "a2")
}

func TestUpdateByFileWithNoMatchIsNoop(t *testing.T) {
	p, async, d := newFixture(t)
	p.SetChildren("a", "a1", "a2")
	if err := d.UpdateByFile(context.Background(), "/elsewhere/x"); err != nil {
		t.Fatalf("UpdateByFile failed: %v", err)
	}
	// Nothing visible is backed by that file, so nothing rematerializes.
	children, stale := async.Children("a")
	if stale {
		t.Error("unexpected invalidation for an unmatched file")
	}
	testutil.AssertChildren(t, children, "a1")
}

func TestUpdateByElementInvalidatesWrappingNode(t *testing.T) {
	p, async, d := newFixture(t)

	p.Touch("a1")
	if err := d.UpdateByElement(context.Background(), "elem-a1"); err != nil {
		t.Fatalf("UpdateByElement failed: %v", err)
	}
	want, _ := p.Describe("a1")
	testutil.Eventually(t, 2*time.Second, func() bool {
		payload, ok := async.Payload("a1")
		return ok && payload.Version == want.Version
	})
}

func TestUpdatePathEmptyIsNoop(t *testing.T) {
	_, async, d := newFixture(t)
	d.UpdatePath(nil)
	if _, stale := async.Children("root"); stale {
		t.Error("empty path must not invalidate anything")
	}
}

func TestUpdateAll(t *testing.T) {
	p, async, d := newFixture(t)
	p.SetChildren("root", "a", "b", "c")
	d.UpdateAll()
	testutil.AssertChildren(t, settledChildren(t, async, "root", 3), "a", "b", "c")
}

type stubSource struct {
	events chan Event
	mu     sync.Mutex
	stops  int
}

func (s *stubSource) Start(ctx context.Context) (<-chan Event, error) {
	return s.events, nil
}

func (s *stubSource) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *stubSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func TestAttachRoutesEvents(t *testing.T) {
	p, async, d := newFixture(t)
	src := &stubSource{events: make(chan Event)}
	handle, err := d.Attach(src)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer handle.Close()

	p.SetChildren("a", "a1", "a2")
	src.events <- Event{File: "/proj/a"}
	testutil.AssertChildren(t, settledChildren(t, async, "a", 2), "a1", "a2")

	p.SetChildren("root", "a")
	src.events <- Event{All: true}
	testutil.AssertChildren(t, settledChildren(t, async, "root", 1), "a")
}

func TestHandleCloseStopsSource(t *testing.T) {
	_, _, d := newFixture(t)
	src := &stubSource{events: make(chan Event)}
	handle, err := d.Attach(src)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	handle.Close()
	handle.Close() // idempotent
	if src.stopCount() != 1 {
		t.Errorf("expected exactly one Stop, got %d", src.stopCount())
	}
}

func TestDispatcherCloseStopsAllSources(t *testing.T) {
	_, _, d := newFixture(t)
	first := &stubSource{events: make(chan Event)}
	second := &stubSource{events: make(chan Event)}
	if _, err := d.Attach(first); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Attach(second); err != nil {
		t.Fatal(err)
	}
	d.Close()
	if first.stopCount() != 1 || second.stopCount() != 1 {
		t.Errorf("expected both sources stopped once, got %d and %d",
			first.stopCount(), second.stopCount())
	}
}
