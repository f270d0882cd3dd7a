// File: internal/service/components.go
package service

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/orchestrator"
	"github.com/xkilldash9x/demoqa-e2e/internal/reporting"
	"github.com/xkilldash9x/demoqa-e2e/internal/steps"
	"github.com/xkilldash9x/demoqa-e2e/internal/store"
)

// Components holds everything a suite run needs and owns their lifecycle.
type Components struct {
	Config       config.Interface
	Metrics      *observability.Metrics
	Fixture      *fixture.Store
	Env          actor.Env
	Orchestrator *orchestrator.Orchestrator
	Runtime      *steps.Runtime

	// Store and DBPool are nil when no database is configured.
	Store  *store.Store
	DBPool *pgxpool.Pool
	// Reporter is nil when no report path is configured.
	Reporter reporting.Reporter

	// verdictsChan decouples scenario completion from persistence and reporting.
	verdictsChan chan schemas.Verdict

	// consumerWG is used to ensure the verdict consumer has finished draining the channel.
	consumerWG *sync.WaitGroup

	shutdownOnce sync.Once
}

// Shutdown flushes pending verdicts and releases resources in order. It is safe to
// call more than once.
func (c *Components) Shutdown() {
	c.shutdownOnce.Do(c.shutdown)
}

func (c *Components) shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Close the verdicts channel. This signals the consumer to drain and stop.
	if c.verdictsChan != nil {
		close(c.verdictsChan)
		logger.Debug("Verdicts channel closed.")
	}

	// 2. Wait for the consumer to finish processing the drained channel.
	if c.consumerWG != nil {
		c.consumerWG.Wait()
		logger.Debug("Verdict consumer finished processing.")
	}

	// 3. Finalize the reports.
	if c.Reporter != nil {
		if err := c.Reporter.Close(); err != nil {
			logger.Warn("Error while finalizing reports.", zap.Error(err))
		} else {
			logger.Debug("Reports written.")
		}
	}

	// 4. Export metrics.
	if c.Config != nil && c.Metrics != nil {
		if err := c.Metrics.WriteTextfile(c.Config.Report().MetricsTextfile); err != nil {
			logger.Warn("Error while exporting metrics.", zap.Error(err))
		}
	}

	// 5. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All run components shut down successfully.")
}

// publish hands v to the verdict consumer.
func (c *Components) publish(v schemas.Verdict) {
	if c.verdictsChan != nil {
		c.verdictsChan <- v
	}
}
