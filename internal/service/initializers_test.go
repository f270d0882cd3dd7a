// File: internal/service/initializers_test.go
package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
)

func TestDrainChannel(t *testing.T) {
	ch := make(chan schemas.Verdict, 3)
	ch <- schemas.Verdict{RunID: "1"}
	ch <- schemas.Verdict{RunID: "2"}
	close(ch)

	var batch []schemas.Verdict
	drainChannel(ch, &batch)

	require.Len(t, batch, 2)
	assert.Equal(t, "1", batch[0].RunID)
	assert.Equal(t, "2", batch[1].RunID)
}

func TestStartVerdictConsumer(t *testing.T) {
	logger := zap.NewNop()

	t.Run("flushes on close", func(t *testing.T) {
		store := new(MockVerdictStore)
		reporter := new(MockReporter)
		store.On("PersistVerdict", mock.Anything, mock.Anything).Return(nil)
		reporter.On("Write", mock.Anything).Return(nil)

		ch := make(chan schemas.Verdict, 20)
		wg := &sync.WaitGroup{}
		StartVerdictConsumer(context.Background(), wg, ch, store, reporter, logger)

		for i := 0; i < 12; i++ {
			ch <- schemas.Verdict{RunID: string(rune('a' + i))}
		}
		close(ch)
		wg.Wait()

		store.AssertNumberOfCalls(t, "PersistVerdict", 12)
		assert.Len(t, reporter.Written(), 12)
		assert.Equal(t, "a", reporter.Written()[0])
	})

	t.Run("flushes on timeout", func(t *testing.T) {
		reporter := new(MockReporter)
		reporter.On("Write", mock.Anything).Return(nil)

		ch := make(chan schemas.Verdict, 1)
		wg := &sync.WaitGroup{}
		StartVerdictConsumer(context.Background(), wg, ch, nil, reporter, logger)
		ch <- schemas.Verdict{RunID: "late"}

		assert.Eventually(t, func() bool { return len(reporter.Written()) == 1 }, 5*time.Second, 50*time.Millisecond)
		close(ch)
		wg.Wait()
	})

	t.Run("errors are logged and do not stop the consumer", func(t *testing.T) {
		store := new(MockVerdictStore)
		store.On("PersistVerdict", mock.Anything, mock.Anything).Return(errors.New("db down"))

		ch := make(chan schemas.Verdict, 2)
		wg := &sync.WaitGroup{}
		StartVerdictConsumer(context.Background(), wg, ch, store, nil, logger)
		ch <- schemas.Verdict{RunID: "1"}
		ch <- schemas.Verdict{RunID: "2"}
		close(ch)
		wg.Wait()

		store.AssertNumberOfCalls(t, "PersistVerdict", 2)
	})

	t.Run("cancellation drains buffered verdicts", func(t *testing.T) {
		reporter := new(MockReporter)
		reporter.On("Write", mock.Anything).Return(nil)

		ch := make(chan schemas.Verdict, 5)
		ch <- schemas.Verdict{RunID: "1"}
		ch <- schemas.Verdict{RunID: "2"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		wg := &sync.WaitGroup{}
		StartVerdictConsumer(ctx, wg, ch, nil, reporter, logger)
		wg.Wait()

		assert.ElementsMatch(t, []string{"1", "2"}, reporter.Written())
	})
}

func TestInitializeStore_Disabled(t *testing.T) {
	s, pool, err := InitializeStore(context.Background(), config.DatabaseConfig{}, zap.NewNop())
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Nil(t, pool)
}

func TestInitializeStore_InvalidURL(t *testing.T) {
	_, _, err := InitializeStore(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"}, zap.NewNop())
	assert.ErrorContains(t, err, "unable to parse PGX pool config")
}

func TestInitializeReporter(t *testing.T) {
	t.Run("nothing configured", func(t *testing.T) {
		r, err := InitializeReporter(config.ReportConfig{})
		assert.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("both formats", func(t *testing.T) {
		dir := t.TempDir()
		r, err := InitializeReporter(config.ReportConfig{
			JUnitPath: filepath.Join(dir, "junit.xml"),
			JSONPath:  filepath.Join(dir, "report.json"),
		})
		require.NoError(t, err)
		require.NotNil(t, r)
		require.NoError(t, r.Write(schemas.Verdict{RunID: "r", Scenario: "s", Passed: true}))
		require.NoError(t, r.Close())
		assert.FileExists(t, filepath.Join(dir, "junit.xml"))
		assert.FileExists(t, filepath.Join(dir, "report.json"))
	})

	t.Run("unwritable path", func(t *testing.T) {
		_, err := InitializeReporter(config.ReportConfig{JSONPath: t.TempDir()})
		assert.ErrorContains(t, err, "failed to open json report")
	})
}
