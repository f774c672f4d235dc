package hub_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/testutils"
)

func setup(t *testing.T) (*hub.Registry, *testutils.MockWatcher) {
	t.Helper()
	watcher := testutils.NewMockWatcher()
	r := hub.NewRegistry(8, zap.NewNop(), hub.WithWatcher(watcher), hub.WithResyncInterval(20*time.Millisecond))
	startWatcher(t, r)
	return r, watcher
}

func startWatcher(t *testing.T, r *hub.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunWatcher(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func watchedCount(w *testutils.MockWatcher, symbol string, want int) func() bool {
	return func() bool { return w.Count(symbol) == want }
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r, watcher := setup(t)
	h := testutils.NewMockHandle("c1")

	if !r.Add("BTC", h) {
		t.Error("Expected first add to report a new membership")
	}
	if r.Add("BTC", h) {
		t.Error("Expected second add to be a no-op")
	}

	if got := len(r.MembersOf("BTC")); got != 1 {
		t.Errorf("Expected 1 member, got %d", got)
	}
	require.Eventually(t, watchedCount(watcher, "BTC", 1), time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if watcher.Count("BTC") != 1 {
		t.Errorf("Expected BTC watched once, got %d", watcher.Count("BTC"))
	}
}

func TestRegistry_UnknownSymbolIsEmpty(t *testing.T) {
	r, _ := setup(t)

	if members := r.MembersOf("DOGE"); len(members) != 0 {
		t.Errorf("Expected no members, got %d", len(members))
	}
	if r.Remove("DOGE", testutils.NewMockHandle("c1")) {
		t.Error("Removing from an unknown symbol should be a no-op")
	}
}

func TestRegistry_RemovePrunesAndUnwatches(t *testing.T) {
	r, watcher := setup(t)
	a := testutils.NewMockHandle("a")
	b := testutils.NewMockHandle("b")

	r.Add("ETH", a)
	r.Add("ETH", b)
	r.Remove("ETH", a)

	require.Eventually(t, watchedCount(watcher, "ETH", 1), time.Second, 5*time.Millisecond,
		"ETH should stay watched while b is a member")

	r.Remove("ETH", b)
	require.Eventually(t, watchedCount(watcher, "ETH", 0), time.Second, 5*time.Millisecond,
		"ETH should be unwatched after its last member left")
	if len(r.Symbols()) != 0 {
		t.Errorf("Expected empty bucket to be pruned, got %v", r.Symbols())
	}
}

func TestRegistry_MembersOfIsSnapshot(t *testing.T) {
	r, _ := setup(t)
	a := testutils.NewMockHandle("a")
	r.Add("BTC", a)

	snap := r.MembersOf("BTC")
	r.Remove("BTC", a)

	if len(snap) != 1 {
		t.Errorf("Snapshot should not observe later removals, got %d", len(snap))
	}
}

func TestRegistry_ConcurrentMutations(t *testing.T) {
	r, _ := setup(t)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := testutils.NewMockHandle(fmt.Sprintf("c%d", i))
			sym := fmt.Sprintf("SYM%d", i%5)
			r.Add(sym, h)
			r.MembersOf(sym)
			if i%2 == 0 {
				r.Remove(sym, h)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 5; i++ {
		total += len(r.MembersOf(fmt.Sprintf("SYM%d", i)))
	}
	if total != 25 {
		t.Errorf("Expected 25 remaining memberships, got %d", total)
	}
}

func TestRegistry_SlowWatcherDoesNotBlockShard(t *testing.T) {
	watcher := testutils.NewMockWatcher()
	watcher.Block = make(chan struct{})
	defer close(watcher.Block)

	// one shard so BTC and ETH share a lock
	r := hub.NewRegistry(1, zap.NewNop(), hub.WithWatcher(watcher))
	startWatcher(t, r)

	r.Add("BTC", testutils.NewMockHandle("a"))
	require.Eventually(t, func() bool { return watcher.CallCount() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Add("ETH", testutils.NewMockHandle("b"))
		r.MembersOf("ETH")
		r.MembersOf("BTC")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Registry operations blocked behind a pending watch call")
	}
}

func TestRegistry_FailedWatchIsRetried(t *testing.T) {
	watcher := testutils.NewMockWatcher()
	watcher.FailWatch = 2

	r := hub.NewRegistry(4, zap.NewNop(), hub.WithWatcher(watcher), hub.WithResyncInterval(10*time.Millisecond))
	startWatcher(t, r)

	r.Add("BTC", testutils.NewMockHandle("a"))

	require.Eventually(t, watchedCount(watcher, "BTC", 1), time.Second, 5*time.Millisecond)
	if got := len(r.MembersOf("BTC")); got != 1 {
		t.Errorf("Expected membership to survive watch failures, got %d", got)
	}
}

func TestRegistry_ResubscribeBeforeUnwatchSettles(t *testing.T) {
	r, watcher := setup(t)
	h := testutils.NewMockHandle("a")

	r.Add("SOL", h)
	r.Remove("SOL", h)
	r.Add("SOL", h)

	require.Eventually(t, watchedCount(watcher, "SOL", 1), time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if watcher.Count("SOL") != 1 {
		t.Errorf("Expected SOL to end up watched exactly once, got %d", watcher.Count("SOL"))
	}
}
