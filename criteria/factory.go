// Package criteria builds dialect specific SQL statements from JPQL-like
// expressions over the entity metamodel.
//
//	f := criteria.NewFactory(mm, dbms.Postgres())
//	q, args, err := f.From("Document", "d").
//		Select("d.name").
//		Select("d.owner.name", "owner").
//		Where(criteria.Path[string]("d.name").Like("A%")).
//		OrderBy(criteria.Asc("d.name")).
//		SetMaxResults(10).
//		Query()
//
// Paths such as "d.owner.name" are resolved against the metamodel and add the
// implicit joins they need. Function calls go through the function registry
// of the dialect, so group_concat, window functions and the to_string
// aggregates render on every supported database.
//
// Compiled statements are cached by their shape, the statement text before
// path resolution, with the argument values left out. Keys are namespaced by
// a fingerprint of the metamodel and the function registry unless a prefix
// is configured with WithCachePrefix.
package criteria

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/function"
	"github.com/syssam/blaze/metamodel"
)

// Factory creates statement builders for one metamodel and dialect.
// A Factory is safe for concurrent use.
type Factory struct {
	mm         *metamodel.Metamodel
	dialect    *dbms.Dialect
	registry   *function.Registry
	logger     *slog.Logger
	cache      blaze.Cache
	cacheTTL   time.Duration
	namespace  string
	inlineCTEs bool
	group      singleflight.Group
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger of the factory.
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithCache enables the statement cache. A zero ttl keeps entries until
// they are invalidated.
func WithCache(c blaze.Cache, ttl time.Duration) Option {
	return func(f *Factory) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithCachePrefix sets the namespace of the cache keys. Factories sharing a
// cache and a prefix share their compiled statements.
func WithCachePrefix(prefix string) Option {
	return func(f *Factory) {
		f.namespace = prefix
	}
}

// WithInlineCTEs controls whether CTEs are rendered as derived tables on
// databases without WITH support. It is enabled by default.
func WithInlineCTEs(inline bool) Option {
	return func(f *Factory) {
		f.inlineCTEs = inline
	}
}

// WithFunction registers a custom function renderer.
func WithFunction(name string, fn function.Function) Option {
	return func(f *Factory) {
		f.registry.Register(name, fn)
	}
}

// NewFactory returns a factory for the given metamodel and dialect.
func NewFactory(mm *metamodel.Metamodel, d *dbms.Dialect, opts ...Option) *Factory {
	f := &Factory{
		mm:         mm,
		dialect:    d,
		registry:   function.NewRegistry(d),
		logger:     slog.Default(),
		inlineCTEs: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.namespace == "" {
		f.namespace = strconv.FormatUint(f.mm.Fingerprint()^f.registry.Fingerprint(), 36)
	}
	return f
}

// Dialect returns the dialect of the factory.
func (f *Factory) Dialect() *dbms.Dialect { return f.dialect }

// Metamodel returns the metamodel of the factory.
func (f *Factory) Metamodel() *metamodel.Metamodel { return f.mm }

// Registry returns the function registry of the factory.
func (f *Factory) Registry() *function.Registry { return f.registry }

// Logger returns the logger of the factory.
func (f *Factory) Logger() *slog.Logger { return f.logger }

// CacheNamespace returns the namespace of the cache keys.
func (f *Factory) CacheNamespace() string { return f.namespace }

// InvalidateCache removes the cached statements of the factory namespace
// and dialect.
func (f *Factory) InvalidateCache(ctx context.Context) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.DeletePrefix(ctx, blaze.CacheKey{Namespace: f.namespace, Dialect: f.dialect.Name()}.Prefix())
}

// compiled is the cached form of a statement.
type compiled struct {
	SQL string `msgpack:"sql"`
}

// compile returns the SQL of the statement identified by shape. Concurrent
// compilations of the same shape are merged.
func (f *Factory) compile(ctx context.Context, op, shape string, build func() (string, error)) (string, error) {
	key := blaze.CacheKey{Namespace: f.namespace, Dialect: f.dialect.Name(), Operation: op, Shape: shape}.String()
	if f.cache != nil {
		b, err := f.cache.Get(ctx, key)
		if err != nil {
			f.logger.Warn("statement cache get failed", "key", key, "error", err)
		}
		if b != nil {
			var c compiled
			if err := msgpack.Unmarshal(b, &c); err == nil {
				return c.SQL, nil
			}
		}
	}
	v, err, _ := f.group.Do(key, func() (any, error) {
		query, err := build()
		if err != nil {
			return nil, err
		}
		query = f.dialect.Rebind(query)
		f.logger.Debug("compiled statement", "op", op, "sql", query)
		if f.cache != nil {
			b, err := msgpack.Marshal(compiled{SQL: query})
			if err != nil {
				return nil, err
			}
			if err := f.cache.Set(ctx, key, b, f.cacheTTL); err != nil {
				f.logger.Warn("statement cache set failed", "key", key, "error", err)
			}
		}
		return query, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
