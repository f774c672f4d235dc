package hub

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
)

const (
	watchTimeout          = 2 * time.Second
	defaultResyncInterval = 5 * time.Second
)

// Handle is the registry's view of one live connection.
type Handle interface {
	ID() string
	Deliver(payload []byte) error
}

// Watcher is told when a symbol gains its first member or loses its last one.
// Calls are made by RunWatcher, never under a shard lock.
type Watcher interface {
	Watch(ctx context.Context, symbol string) error
	Unwatch(ctx context.Context, symbol string) error
}

type shard struct {
	mu      sync.RWMutex
	buckets map[string]map[Handle]struct{}
}

// Registry maps symbols to the handles subscribed to them. Buckets are spread over
// fnv-hashed shards, each with its own lock, so unrelated symbols never contend.
type Registry struct {
	shards  []*shard
	watcher Watcher
	logger  *zap.Logger
	metrics *metrics.GatewayMetrics

	resyncInterval time.Duration
	pendingMu      sync.Mutex
	pending        map[string]struct{}
	wake           chan struct{}
}

type Option func(*Registry)

func WithWatcher(w Watcher) Option {
	return func(r *Registry) { r.watcher = w }
}

func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithResyncInterval sets how often RunWatcher compares watched symbols with live buckets.
func WithResyncInterval(d time.Duration) Option {
	return func(r *Registry) { r.resyncInterval = d }
}

func NewRegistry(numShards int, logger *zap.Logger, opts ...Option) *Registry {
	if numShards <= 0 {
		numShards = 1
	}
	r := &Registry{
		shards:         make([]*shard, numShards),
		logger:         logger,
		resyncInterval: defaultResyncInterval,
		pending:        make(map[string]struct{}),
		wake:           make(chan struct{}, 1),
	}
	for i := range r.shards {
		r.shards[i] = &shard{buckets: make(map[string]map[Handle]struct{})}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add puts h into symbol's bucket. It reports whether h was not already a member.
func (r *Registry) Add(symbol string, h Handle) bool {
	added, first := r.add(symbol, h)
	if first {
		r.markPending(symbol)
	}
	return added
}

func (r *Registry) add(symbol string, h Handle) (added, first bool) {
	s := r.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[symbol]
	if !ok {
		bucket = make(map[Handle]struct{})
		s.buckets[symbol] = bucket
	}
	if _, exists := bucket[h]; exists {
		return false, false
	}
	bucket[h] = struct{}{}

	if r.metrics != nil {
		r.metrics.Subscriptions.Inc()
	}
	return true, len(bucket) == 1
}

// Remove takes h out of symbol's bucket. Removing a non-member is a no-op.
// Empty buckets are pruned.
func (r *Registry) Remove(symbol string, h Handle) bool {
	removed, last := r.remove(symbol, h)
	if last {
		r.markPending(symbol)
	}
	return removed
}

func (r *Registry) remove(symbol string, h Handle) (removed, last bool) {
	s := r.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[symbol]
	if !ok {
		return false, false
	}
	if _, exists := bucket[h]; !exists {
		return false, false
	}
	delete(bucket, h)

	if r.metrics != nil {
		r.metrics.Subscriptions.Dec()
	}
	if len(bucket) == 0 {
		delete(s.buckets, symbol)
		return true, true
	}
	return true, false
}

// MembersOf returns a snapshot of symbol's bucket. Unknown symbols yield nil.
func (r *Registry) MembersOf(symbol string) []Handle {
	s := r.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.buckets[symbol]
	if len(bucket) == 0 {
		return nil
	}
	members := make([]Handle, 0, len(bucket))
	for h := range bucket {
		members = append(members, h)
	}
	return members
}

// Symbols lists every symbol with at least one member.
func (r *Registry) Symbols() []string {
	var out []string
	for _, s := range r.shards {
		s.mu.RLock()
		for sym := range s.buckets {
			out = append(out, sym)
		}
		s.mu.RUnlock()
	}
	return out
}

func (r *Registry) hasMembers(symbol string) bool {
	s := r.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[symbol]) > 0
}

func (r *Registry) markPending(symbol string) {
	if r.watcher == nil {
		return
	}
	r.pendingMu.Lock()
	r.pending[symbol] = struct{}{}
	r.pendingMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) takePending() map[string]struct{} {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	out := r.pending
	r.pending = make(map[string]struct{})
	return out
}

// RunWatcher keeps the Watcher in step with bucket membership until ctx is done.
// It is the only caller of the Watcher, so calls for one symbol are ordered.
// Symbols whose Watch or Unwatch failed are retried on the next resync.
func (r *Registry) RunWatcher(ctx context.Context) {
	if r.watcher == nil {
		return
	}
	ticker := time.NewTicker(r.resyncInterval)
	defer ticker.Stop()

	watched := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			r.reconcile(ctx, watched, r.takePending())
		case <-ticker.C:
			all := make(map[string]struct{}, len(watched))
			for sym := range watched {
				all[sym] = struct{}{}
			}
			for _, sym := range r.Symbols() {
				all[sym] = struct{}{}
			}
			r.reconcile(ctx, watched, all)
		}
	}
}

func (r *Registry) reconcile(ctx context.Context, watched map[string]bool, symbols map[string]struct{}) {
	for sym := range symbols {
		want := r.hasMembers(sym)
		if want == watched[sym] {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, watchTimeout)
		var err error
		if want {
			err = r.watcher.Watch(callCtx, sym)
		} else {
			err = r.watcher.Unwatch(callCtx, sym)
		}
		cancel()

		if err != nil {
			r.logger.Error("Failed to sync symbol watch, will retry",
				zap.String("symbol", sym), zap.Bool("watch", want), zap.Error(err))
			continue
		}
		if want {
			watched[sym] = true
		} else {
			delete(watched, sym)
		}
	}
}

func (r *Registry) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}
