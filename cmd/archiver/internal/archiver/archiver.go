package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/pkg/config"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

const (
	outcomeStored    = "stored"
	outcomeDuplicate = "duplicate"
	outcomeInvalid   = "invalid"
	outcomeUnknown   = "unknown_asset"
	outcomeFailed    = "error"
)

// Archiver drains the price history topic into the relational store.
type Archiver struct {
	logger     Logger
	store      PriceStore
	reader     KafkaReader
	metrics    *metrics.FeedMetrics
	numWorkers int
}

func NewArchiver(cfg *config.Config, logger Logger, store PriceStore, reader KafkaReader, m *metrics.FeedMetrics) *Archiver {
	n := cfg.Archiver.NumWorkers
	if n <= 0 {
		n = 1
	}
	return &Archiver{
		logger:     logger,
		store:      store,
		reader:     reader,
		metrics:    m,
		numWorkers: n,
	}
}

func (a *Archiver) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, a.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < a.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go a.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		a.logger.Info("Archiver started", zap.Int("workers", a.numWorkers))
		for {
			m, err := a.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				a.logger.Error("Kafka read error", zap.Error(err))
				continue
			}

			// Same symbol always goes to the same worker. A full backlog stalls
			// the reader instead of losing the record.
			workerID := getWorkerID(m.Key, a.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	a.logger.Info("Shutdown signal received, stopping archiver...")
	<-readerDone

	for _, ch := range workerChans {
		close(ch)
	}
	a.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (a *Archiver) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	// Background context so a shutdown does not abort a write half way
	ctx := context.Background()

	// Per-worker dedup state, valid because of symbol sharding
	lastSeen := make(map[string]int64)

	for payload := range msgs {
		var update models.PriceUpdate
		if err := json.Unmarshal(payload, &update); err != nil || update.Symbol == "" {
			a.logger.Error("Invalid history record", zap.Error(err))
			a.count(outcomeInvalid)
			continue
		}

		ts := update.LastUpdated.UnixMicro()
		if prev, ok := lastSeen[update.Symbol]; ok && ts <= prev {
			a.logger.Debug("Skipping stale update", zap.String("symbol", update.Symbol), zap.Time("last_updated", update.LastUpdated))
			a.count(outcomeDuplicate)
			continue
		}

		err := a.store.SavePrice(ctx, update)
		switch {
		case errors.Is(err, models.ErrNotFound):
			a.logger.Warn("Update for unknown asset", zap.String("symbol", update.Symbol))
			a.count(outcomeUnknown)
		case err != nil:
			a.logger.Error("Failed to store update", zap.Error(err), zap.String("symbol", update.Symbol))
			a.count(outcomeFailed)
		default:
			a.logger.Debug("Archived", zap.String("symbol", update.Symbol), zap.Int("worker_id", id))
			lastSeen[update.Symbol] = ts
			a.count(outcomeStored)
		}
	}
}

func (a *Archiver) count(outcome string) {
	if a.metrics != nil {
		a.metrics.Archived.WithLabelValues(outcome).Inc()
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
