// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/reporting"
	"github.com/xkilldash9x/demoqa-e2e/internal/store"
)

// InitializeStore connects to the verdict history database and applies the schema.
// An empty URL disables history and returns nils.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	if cfg.URL == "" {
		logger.Debug("No database configured; verdict history disabled.")
		return nil, nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	dbStore, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := dbStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Verdict history enabled.", zap.String("host", poolConfig.ConnConfig.Host))
	return dbStore, pool, nil
}

// InitializeReporter opens one reporter per configured report path. It returns nil
// when none is configured.
func InitializeReporter(cfg config.ReportConfig) (reporting.Reporter, error) {
	var reporters []reporting.Reporter
	closeAll := func() {
		for _, r := range reporters {
			_ = r.Close()
		}
	}
	for _, target := range []struct{ format, path string }{
		{reporting.FormatJUnit, cfg.JUnitPath},
		{reporting.FormatJSON, cfg.JSONPath},
	} {
		if target.path == "" {
			continue
		}
		r, err := reporting.New(target.format, target.path)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open %s report: %w", target.format, err)
		}
		reporters = append(reporters, r)
	}
	if len(reporters) == 0 {
		return nil, nil
	}
	return reporting.Multi(reporters...), nil
}

// VerdictStore persists finished verdicts.
type VerdictStore interface {
	PersistVerdict(ctx context.Context, v schemas.Verdict) error
}

// StartVerdictConsumer forwards verdicts from verdictsChan to the store and the
// reporter in batches. Either may be nil. It exits once the channel is closed and
// drained, or when ctx is cancelled.
func StartVerdictConsumer(ctx context.Context, wg *sync.WaitGroup, verdictsChan <-chan schemas.Verdict, dbStore VerdictStore, reporter reporting.Reporter, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger := logger.Named("verdict_consumer")

		const batchSize = 10
		const batchTimeout = 2 * time.Second

		batch := make([]schemas.Verdict, 0, batchSize)
		ticker := time.NewTicker(batchTimeout)
		defer ticker.Stop()

		processBatch := func() {
			if len(batch) == 0 {
				return
			}
			logger.Debug("Processing verdict batch.", zap.Int("count", len(batch)))

			// Persistence outlives a cancelled run context.
			persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			for _, v := range batch {
				if reporter != nil {
					if err := reporter.Write(v); err != nil {
						logger.Error("Failed to report verdict.", zap.String("run_id", v.RunID), zap.Error(err))
					}
				}
				if dbStore != nil {
					if err := dbStore.PersistVerdict(persistCtx, v); err != nil {
						logger.Error("Failed to persist verdict. History may be incomplete.", zap.String("run_id", v.RunID), zap.Error(err))
					}
				}
			}
			batch = batch[:0]
		}

		for {
			select {
			case v, ok := <-verdictsChan:
				if !ok {
					processBatch()
					return
				}
				batch = append(batch, v)
				if len(batch) >= batchSize {
					processBatch()
					ticker.Reset(batchTimeout)
				}

			case <-ticker.C:
				processBatch()

			case <-ctx.Done():
				logger.Warn("Verdict consumer context canceled, draining remaining verdicts.")
				drainChannel(verdictsChan, &batch)
				processBatch()
				return
			}
		}
	}()
}

// drainChannel reads whatever is buffered in the channel into the batch without blocking.
func drainChannel(verdictsChan <-chan schemas.Verdict, batch *[]schemas.Verdict) {
	for {
		select {
		case v, ok := <-verdictsChan:
			if !ok {
				return
			}
			*batch = append(*batch, v)
		default:
			return
		}
	}
}
