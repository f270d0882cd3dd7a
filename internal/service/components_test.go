// File: internal/service/components_test.go
package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
)

func TestComponentsShutdown_Empty(t *testing.T) {
	c := &Components{}
	assert.NotPanics(t, c.Shutdown)
	assert.NotPanics(t, c.Shutdown)
}

func TestComponentsShutdown_FlushesInOrder(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ReportCfg.MetricsTextfile = filepath.Join(t.TempDir(), "e2e.prom")

	reporter := new(MockReporter)
	reporter.On("Write", mock.Anything).Return(nil)
	reporter.On("Close").Return(errors.New("disk full"))

	c := &Components{
		Config:       cfg,
		Metrics:      observability.NewMetrics(),
		Reporter:     reporter,
		verdictsChan: make(chan schemas.Verdict, 4),
		consumerWG:   &sync.WaitGroup{},
	}
	StartVerdictConsumer(context.Background(), c.consumerWG, c.verdictsChan, nil, reporter, zap.NewNop())
	c.Metrics.RecordVerdict(true)
	c.publish(schemas.Verdict{RunID: "r1"})
	c.publish(schemas.Verdict{RunID: "r2"})

	c.Shutdown()

	assert.Equal(t, []string{"r1", "r2"}, reporter.Written(), "pending verdicts reach the reporter before it closes")
	reporter.AssertCalled(t, "Close")
	assert.FileExists(t, cfg.ReportCfg.MetricsTextfile)
}
