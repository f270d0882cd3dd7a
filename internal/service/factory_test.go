// File: internal/service/factory_test.go
package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/browser"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/fakedemoqa"
	"github.com/xkilldash9x/demoqa-e2e/internal/reporting"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
	"github.com/xkilldash9x/demoqa-e2e/internal/steps"
)

func TestAPIOptions(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.TargetCfg.BaseURL = "https://demoqa.example"
	opts := APIOptions(cfg)
	assert.Equal(t, "https://demoqa.example", opts.BaseURL)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 5.0, opts.RateLimit)

	cfg.TargetCfg.APIBaseURL = "https://api.demoqa.example"
	assert.Equal(t, "https://api.demoqa.example", APIOptions(cfg).BaseURL)
}

func TestSessionFactory(t *testing.T) {
	factory := SessionFactory(config.NewDefaultConfig(), zap.NewNop())

	prov, err := factory(session.KindInteractive)
	require.NoError(t, err)
	assert.IsType(t, &browser.Provisioner{}, prov)
	assert.Equal(t, session.KindInteractive, prov.Kind())

	prov, err = factory(session.KindAPI)
	require.NoError(t, err)
	assert.IsType(t, &apiclient.Provisioner{}, prov)

	_, err = factory(session.Kind("carrier-pigeon"))
	assert.ErrorIs(t, err, schemas.ErrLifecycle)
}

func TestCreate_ValidationErrors(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.ActorConcurrency = 0

	c, err := NewComponentFactory().Create(context.Background(), cfg, zap.NewNop())
	assert.Nil(t, c)
	assert.ErrorContains(t, err, "engine.actor_concurrency")
}

func TestCreate_ReporterFailureCleansUp(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.FixtureCfg.Path = filepath.Join(t.TempDir(), "data.json")
	cfg.ReportCfg.JUnitPath = t.TempDir()

	c, err := NewComponentFactory().Create(context.Background(), cfg, zap.NewNop())
	assert.Nil(t, c)
	assert.ErrorContains(t, err, "failed to open junit report")
}

// TestCreate_RunsAPISuite drives the production wiring against the fake target.
func TestCreate_RunsAPISuite(t *testing.T) {
	srv := fakedemoqa.New()
	t.Cleanup(srv.Close)
	dir := t.TempDir()

	cfg := config.NewDefaultConfig()
	cfg.TargetCfg.BaseURL = srv.URL
	cfg.APICfg.RateLimit = 0
	cfg.FixtureCfg.Path = filepath.Join(dir, "support", "data.json")
	cfg.FixtureCfg.PicturePath = filepath.Join(dir, "test-image.png")
	cfg.ReportCfg.JSONPath = filepath.Join(dir, "reports", "report.json")
	cfg.ReportCfg.JUnitPath = filepath.Join(dir, "reports", "junit.xml")
	cfg.ReportCfg.MetricsTextfile = filepath.Join(dir, "e2e.prom")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := NewComponentFactory().Create(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, c.Store, "history is disabled without a database url")

	status := steps.Run(ctx, c.Runtime, steps.SuiteOptions{Tags: steps.TagAPI, Format: "progress", Output: io.Discard})
	assert.Equal(t, 0, status)
	c.Shutdown()
	c.Shutdown()

	raw, err := os.ReadFile(cfg.ReportCfg.JSONPath)
	require.NoError(t, err)
	var report reporting.Report
	require.NoError(t, jsoniter.Unmarshal(raw, &report))
	assert.Len(t, report.Verdicts, 3)
	for _, v := range report.Verdicts {
		assert.True(t, v.Passed, v.Scenario)
	}

	assert.FileExists(t, cfg.ReportCfg.JUnitPath)
	metrics, err := os.ReadFile(cfg.ReportCfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `e2e_scenario_verdicts_total{result="passed"} 3`)
}
