// Package config loads the configuration properties of blaze from files,
// environment variables and property maps.
//
// Keys are dotted and lower case, e.g. "view.updater.flush_mode". Every key
// can be overridden from the environment with the BLAZE_ prefix and dots
// replaced by underscores, e.g. BLAZE_VIEW_UPDATER_FLUSH_MODE=full.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/view"
)

// EnvPrefix is the prefix of environment variables overriding properties.
const EnvPrefix = "BLAZE"

// Properties holds the configuration of a view manager, its criteria
// factory and the statistics driver.
type Properties struct {
	// DBMS names the dialect. It is empty to use the dialect of the driver.
	DBMS     string   `mapstructure:"dbms" json:"dbms"`
	View     View     `mapstructure:"view" json:"view"`
	Criteria Criteria `mapstructure:"criteria" json:"criteria"`
	Stats    Stats    `mapstructure:"stats" json:"stats"`
}

// View configures the view manager.
type View struct {
	BatchSize                     int     `mapstructure:"batch_size" json:"batch_size"`
	Updater                       Updater `mapstructure:"updater" json:"updater"`
	ExpressionValidationDisabled  bool    `mapstructure:"expression_validation_disabled" json:"expression_validation_disabled"`
	ManagedTypeValidationDisabled bool    `mapstructure:"managed_type_validation_disabled" json:"managed_type_validation_disabled"`
}

// Updater configures flushing.
type Updater struct {
	FlushMode            string `mapstructure:"flush_mode" json:"flush_mode"`
	FlushStrategy        string `mapstructure:"flush_strategy" json:"flush_strategy"`
	StrictCascadingCheck bool   `mapstructure:"strict_cascading_check" json:"strict_cascading_check"`
}

// Criteria configures the criteria factory.
type Criteria struct {
	StatementCache StatementCache `mapstructure:"statement_cache" json:"statement_cache"`
	InlineCTEs     bool           `mapstructure:"inline_ctes" json:"inline_ctes"`
}

// StatementCache configures the cache of rendered statements.
type StatementCache struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" json:"ttl"`
}

// Stats configures the statistics driver.
type Stats struct {
	SlowThreshold time.Duration `mapstructure:"slow_threshold" json:"slow_threshold"`
	SlowQueryLog  bool          `mapstructure:"slow_query_log" json:"slow_query_log"`
}

var defaults = map[string]any{
	"dbms":                                  "",
	"view.batch_size":                       32,
	"view.updater.flush_mode":               "lazy",
	"view.updater.flush_strategy":           "query",
	"view.updater.strict_cascading_check":   true,
	"view.expression_validation_disabled":   false,
	"view.managed_type_validation_disabled": false,
	"criteria.statement_cache.enabled":      false,
	"criteria.statement_cache.ttl":          10 * time.Minute,
	"criteria.inline_ctes":                  false,
	"stats.slow_threshold":                  100 * time.Millisecond,
	"stats.slow_query_log":                  false,
}

// Keys returns the sorted names of all properties.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Default returns the default properties.
func Default() *Properties {
	p, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return p
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads the properties from the file at path, if not empty, and
// applies the BLAZE_ environment overrides. The format of the file is
// derived from its extension (yaml, toml, json or properties).
//
//	p, err := config.Load("blaze.yaml")
//	if err != nil {
//		return err
//	}
//	m, err := view.NewManager(mm, drv, p.ViewOptions()...)
func Load(path string) (*Properties, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		slog.Debug("configuration loaded", "file", v.ConfigFileUsed())
	}
	v.AutomaticEnv()
	p, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FromMap builds the properties from a flat property map. Unknown keys are
// rejected. Environment variables are not consulted.
func FromMap(props map[string]string) (*Properties, error) {
	v := newViper()
	for k, value := range props {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, ok := defaults[key]; !ok {
			return nil, blaze.NewConfigurationError("config", "unknown property %q", k)
		}
		v.Set(key, strings.TrimSpace(value))
	}
	p, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decode(v *viper.Viper) (*Properties, error) {
	p := new(Properties)
	if err := v.Unmarshal(p); err != nil {
		return nil, blaze.NewConfigurationError("config", "decode properties: %v", err)
	}
	p.View.Updater.FlushMode = strings.ToLower(p.View.Updater.FlushMode)
	p.View.Updater.FlushStrategy = strings.ToLower(p.View.Updater.FlushStrategy)
	return p, nil
}

// Validate checks the property values. Errors are *blaze.ConfigurationError.
func (p *Properties) Validate() error {
	if _, err := dbms.ForName(p.DBMS); err != nil {
		return blaze.NewConfigurationError("dbms", "%v", err)
	}
	if p.View.BatchSize < 1 {
		return blaze.NewConfigurationError("view.batch_size", "must be positive, got %d", p.View.BatchSize)
	}
	if _, err := p.FlushMode(); err != nil {
		return err
	}
	if _, err := p.FlushStrategy(); err != nil {
		return err
	}
	if p.Criteria.StatementCache.TTL < 0 {
		return blaze.NewConfigurationError("criteria.statement_cache.ttl", "must not be negative, got %s", p.Criteria.StatementCache.TTL)
	}
	if p.Stats.SlowThreshold < 0 {
		return blaze.NewConfigurationError("stats.slow_threshold", "must not be negative, got %s", p.Stats.SlowThreshold)
	}
	return nil
}

// FlushMode returns the configured flush mode.
func (p *Properties) FlushMode() (view.FlushMode, error) {
	switch p.View.Updater.FlushMode {
	case "lazy", "":
		return view.FlushLazy, nil
	case "partial":
		return view.FlushPartial, nil
	case "full":
		return view.FlushFull, nil
	}
	return 0, blaze.NewConfigurationError("view.updater.flush_mode", "unknown flush mode %q", p.View.Updater.FlushMode)
}

// FlushStrategy returns the configured flush strategy.
func (p *Properties) FlushStrategy() (view.FlushStrategy, error) {
	switch p.View.Updater.FlushStrategy {
	case "query", "":
		return view.StrategyQuery, nil
	case "entity":
		return view.StrategyEntity, nil
	}
	return 0, blaze.NewConfigurationError("view.updater.flush_strategy", "unknown flush strategy %q", p.View.Updater.FlushStrategy)
}

// ViewOptions returns the manager options of the properties. The
// properties must be valid. A statement cache is created when it is
// enabled.
func (p *Properties) ViewOptions() []view.Option {
	mode, _ := p.FlushMode()
	strategy, _ := p.FlushStrategy()
	opts := []view.Option{
		view.WithBatchSize(p.View.BatchSize),
		view.WithFlushMode(mode),
		view.WithFlushStrategy(strategy),
		view.WithStrictCascadingCheck(p.View.Updater.StrictCascadingCheck),
		view.WithFactoryOptions(criteria.WithInlineCTEs(p.Criteria.InlineCTEs)),
	}
	if p.View.ExpressionValidationDisabled {
		opts = append(opts, view.WithoutExpressionValidation())
	}
	if p.View.ManagedTypeValidationDisabled {
		opts = append(opts, view.WithoutManagedTypeValidation())
	}
	if p.Criteria.StatementCache.Enabled {
		opts = append(opts, view.WithCache(blaze.NewMemoryCache(), p.Criteria.StatementCache.TTL))
	}
	return opts
}

// FactoryOptions returns the options of a standalone criteria factory. The
// cache is used when the statement cache is enabled; a nil cache selects an
// in-memory cache.
func (p *Properties) FactoryOptions(cache blaze.Cache) []criteria.Option {
	opts := []criteria.Option{criteria.WithInlineCTEs(p.Criteria.InlineCTEs)}
	if p.Criteria.StatementCache.Enabled {
		if cache == nil {
			cache = blaze.NewMemoryCache()
		}
		opts = append(opts, criteria.WithCache(cache, p.Criteria.StatementCache.TTL))
	}
	return opts
}

// StatsOptions returns the options of the statistics driver.
func (p *Properties) StatsOptions() []sql.StatsOption {
	opts := []sql.StatsOption{sql.WithSlowThreshold(p.Stats.SlowThreshold)}
	if p.Stats.SlowQueryLog {
		opts = append(opts, sql.WithSlowQueryLog())
	}
	return opts
}

// Dialect returns the configured dialect, or the dialect named by driver
// when no dbms is configured.
func (p *Properties) Dialect(driver string) (*dbms.Dialect, error) {
	name := p.DBMS
	if name == "" {
		name = driver
	}
	return dbms.ForName(name)
}
