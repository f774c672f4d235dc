package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

const DefaultFetchTimeout = 20 * time.Second

// RunResult summarises one producer run.
type RunResult struct {
	Assets          int
	Quotes          int
	Published       int
	PersistFailures int
	Created         int
}

// Producer periodically turns one batched upstream fetch into price updates.
type Producer struct {
	catalog   Catalog
	provider  Provider
	history   HistoryStore
	publisher Publisher
	logger    *zap.Logger

	interval     time.Duration
	fetchTimeout time.Duration
	clock        clockwork.Clock
	metrics      *metrics.FeedMetrics

	running sync.Mutex
}

type Option func(*Producer)

func WithClock(c clockwork.Clock) Option {
	return func(p *Producer) { p.clock = c }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(p *Producer) { p.fetchTimeout = d }
}

func WithMetrics(m *metrics.FeedMetrics) Option {
	return func(p *Producer) { p.metrics = m }
}

func NewProducer(catalog Catalog, provider Provider, history HistoryStore, publisher Publisher,
	interval time.Duration, logger *zap.Logger, opts ...Option) *Producer {
	p := &Producer{
		catalog:      catalog,
		provider:     provider,
		history:      history,
		publisher:    publisher,
		logger:       logger,
		interval:     interval,
		fetchTimeout: DefaultFetchTimeout,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a run immediately and then once per interval until ctx is done.
// Ticks that fire while a run is still going are dropped by the ticker.
func (p *Producer) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Producer Started", zap.Duration("interval", p.interval))
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Producer stopped")
			return
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

func (p *Producer) tick(ctx context.Context) {
	res, err := p.RunOnce(ctx)
	switch {
	case err == nil:
		p.logger.Debug("Run finished",
			zap.Int("assets", res.Assets),
			zap.Int("published", res.Published),
			zap.Int("persist_failures", res.PersistFailures),
			zap.Int("created", res.Created))
	case errors.Is(err, ErrRunInProgress):
		p.logger.Warn("Skipping tick, previous run still in flight")
	case ctx.Err() != nil:
	default:
		p.logger.Error("Run failed", zap.Error(err))
	}
}

// RunOnce performs a single run. Concurrent callers get ErrRunInProgress.
func (p *Producer) RunOnce(ctx context.Context) (RunResult, error) {
	if !p.running.TryLock() {
		p.observe("skipped", 0)
		return RunResult{}, ErrRunInProgress
	}
	defer p.running.Unlock()

	start := p.clock.Now()
	res, err := p.run(ctx)

	outcome := "ok"
	var upErr *UpstreamFetchError
	switch {
	case errors.As(err, &upErr):
		outcome = "upstream_error"
	case err != nil:
		outcome = "error"
	case res.Assets == 0:
		outcome = "empty"
	}
	p.observe(outcome, p.clock.Since(start))
	return res, err
}

func (p *Producer) run(ctx context.Context) (RunResult, error) {
	var res RunResult

	assets, err := p.catalog.ListAssets(ctx)
	if err != nil {
		return res, fmt.Errorf("list assets: %w", err)
	}
	res.Assets = len(assets)
	if len(assets) == 0 {
		return res, nil
	}

	byExternal := make(map[string]models.Asset, len(assets))
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		byExternal[a.ExternalID] = a
		ids = append(ids, a.ExternalID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	quotes, err := p.provider.FetchMarkets(fetchCtx, ids)
	cancel()
	if err != nil {
		return res, &UpstreamFetchError{Cause: err}
	}
	res.Quotes = len(quotes)

	fetchedAt := p.clock.Now().UTC()

	for _, q := range quotes {
		asset, ok := byExternal[q.ID]
		if !ok {
			asset, err = p.catalog.EnsureAsset(ctx, assetFromQuote(q))
			if err != nil {
				p.logger.Warn("Failed to add asset to catalog", zap.String("external_id", q.ID), zap.Error(err))
				continue
			}
			byExternal[q.ID] = asset
			res.Created++
			if p.metrics != nil {
				p.metrics.AssetsCreated.Inc()
			}
		}

		p.emit(ctx, BuildUpdate(asset, q, fetchedAt), &res)
	}

	return res, nil
}

// emit publishes and persists independently; neither outcome affects the other.
func (p *Producer) emit(ctx context.Context, u models.PriceUpdate, res *RunResult) {
	payload, err := models.EncodePriceEvent(u)
	if err != nil {
		p.logger.Error("Failed to encode price event", zap.String("symbol", u.Symbol), zap.Error(err))
		return
	}

	p.publisher.Publish(u.Symbol, payload)
	res.Published++
	if p.metrics != nil {
		p.metrics.Updates.Inc()
	}

	if err := p.history.SavePrice(ctx, u); err != nil {
		res.PersistFailures++
		if p.metrics != nil {
			p.metrics.PersistFailures.Inc()
		}
		p.logger.Error("Failed to persist price", zap.String("symbol", u.Symbol), zap.Error(err))
	}
}

func (p *Producer) observe(outcome string, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.Runs.WithLabelValues(outcome).Inc()
	if d > 0 {
		p.metrics.RunDuration.Observe(d.Seconds())
	}
}

// BuildUpdate combines catalog metadata with an upstream quote. Missing price or
// change figures become zero; the extended figures stay null.
func BuildUpdate(a models.Asset, q models.MarketQuote, fetchedAt time.Time) models.PriceUpdate {
	u := models.PriceUpdate{
		Symbol:            a.Symbol,
		Name:              a.Name,
		PriceUSD:          deref(q.CurrentPrice),
		Change24hPercent:  deref(q.PriceChangePercentage24h),
		LastUpdated:       fetchedAt.UTC(),
		MarketCapUSD:      q.MarketCap,
		Volume24hUSD:      q.TotalVolume,
		CirculatingSupply: q.CirculatingSupply,
		TotalSupply:       q.TotalSupply,
		ATH:               q.ATH,
		ATL:               q.ATL,
	}
	switch {
	case a.LogoURL != "":
		logo := a.LogoURL
		u.LogoURL = &logo
	case q.Image != "":
		logo := q.Image
		u.LogoURL = &logo
	}
	return u
}

func assetFromQuote(q models.MarketQuote) models.Asset {
	return models.Asset{
		Symbol:     models.CanonicalSymbol(q.Symbol),
		Name:       q.Name,
		ExternalID: q.ID,
		LogoURL:    q.Image,
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
