package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/metamodel"
	"github.com/syssam/blaze/view"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Empty(t, p.DBMS)
	assert.Equal(t, 32, p.View.BatchSize)
	assert.Equal(t, "lazy", p.View.Updater.FlushMode)
	assert.Equal(t, "query", p.View.Updater.FlushStrategy)
	assert.True(t, p.View.Updater.StrictCascadingCheck)
	assert.False(t, p.Criteria.StatementCache.Enabled)
	assert.Equal(t, 10*time.Minute, p.Criteria.StatementCache.TTL)
	assert.Equal(t, 100*time.Millisecond, p.Stats.SlowThreshold)
	require.NoError(t, p.Validate())

	mode, err := p.FlushMode()
	require.NoError(t, err)
	assert.Equal(t, view.FlushLazy, mode)
	strategy, err := p.FlushStrategy()
	require.NoError(t, err)
	assert.Equal(t, view.StrategyQuery, strategy)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blaze.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dbms: postgres
view:
  batch_size: 8
  updater:
    flush_mode: FULL
    flush_strategy: entity
    strict_cascading_check: false
  expression_validation_disabled: true
criteria:
  statement_cache:
    enabled: true
    ttl: 5m
stats:
  slow_threshold: 250ms
  slow_query_log: true
`), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", p.DBMS)
	assert.Equal(t, 8, p.View.BatchSize)
	assert.Equal(t, "full", p.View.Updater.FlushMode)
	assert.False(t, p.View.Updater.StrictCascadingCheck)
	assert.True(t, p.View.ExpressionValidationDisabled)
	assert.False(t, p.View.ManagedTypeValidationDisabled)
	assert.True(t, p.Criteria.StatementCache.Enabled)
	assert.Equal(t, 5*time.Minute, p.Criteria.StatementCache.TTL)
	assert.Equal(t, 250*time.Millisecond, p.Stats.SlowThreshold)
	assert.True(t, p.Stats.SlowQueryLog)

	strategy, err := p.FlushStrategy()
	require.NoError(t, err)
	assert.Equal(t, view.StrategyEntity, strategy)
	d, err := p.Dialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BLAZE_VIEW_UPDATER_FLUSH_MODE", "partial")
	t.Setenv("BLAZE_VIEW_BATCH_SIZE", "4")
	t.Setenv("BLAZE_CRITERIA_INLINE_CTES", "true")

	p, err := Load("")
	require.NoError(t, err)
	mode, err := p.FlushMode()
	require.NoError(t, err)
	assert.Equal(t, view.FlushPartial, mode)
	assert.Equal(t, 4, p.View.BatchSize)
	assert.True(t, p.Criteria.InlineCTEs)

	t.Setenv("BLAZE_VIEW_UPDATER_FLUSH_STRATEGY", "merge")
	_, err = Load("")
	assert.True(t, blaze.IsConfigurationError(err), err)
}

func TestFromMap(t *testing.T) {
	p, err := FromMap(map[string]string{
		"dbms":                                  "mysql8",
		"view.batch_size":                       "64",
		"view.managed_type_validation_disabled": "true",
		"criteria.statement_cache.ttl":          "30s",
		"stats.slow_query_log":                  "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "mysql8", p.DBMS)
	assert.Equal(t, 64, p.View.BatchSize)
	assert.True(t, p.View.ManagedTypeValidationDisabled)
	assert.Equal(t, 30*time.Second, p.Criteria.StatementCache.TTL)
	assert.Len(t, p.StatsOptions(), 2)

	tests := []struct {
		name  string
		props map[string]string
		want  string
	}{
		{"unknown key", map[string]string{"view.flush_mode": "full"}, "unknown property"},
		{"unknown dbms", map[string]string{"dbms": "informix"}, "unknown dialect"},
		{"batch size", map[string]string{"view.batch_size": "0"}, "must be positive"},
		{"flush mode", map[string]string{"view.updater.flush_mode": "eager"}, "unknown flush mode"},
		{"negative ttl", map[string]string{"criteria.statement_cache.ttl": "-1s"}, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.props)
			require.Error(t, err)
			assert.True(t, blaze.IsConfigurationError(err), err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 12)
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "view.updater.flush_strategy")
}

type person struct {
	view.State
	ID   int64
	Name string
}

func TestViewOptions(t *testing.T) {
	drv, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	mm, err := metamodel.New(metamodel.Entity("Person").Attributes(
		metamodel.ID("id"),
		metamodel.String("name"),
	))
	require.NoError(t, err)

	p, err := FromMap(map[string]string{
		"view.updater.flush_mode":          "full",
		"criteria.statement_cache.enabled": "true",
	})
	require.NoError(t, err)
	opts := append(p.ViewOptions(), view.WithViews(view.Type[person]("Person")))
	m, err := view.NewManager(mm, drv, opts...)
	require.NoError(t, err)
	assert.NotNil(t, m.Factory())

	assert.Len(t, p.FactoryOptions(nil), 2)
	p.Criteria.StatementCache.Enabled = false
	assert.Len(t, p.FactoryOptions(nil), 1)
}
