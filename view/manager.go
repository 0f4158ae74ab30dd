package view

import (
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/metamodel"
)

// Manager queries and flushes the registered views of one database.
// A Manager is safe for concurrent use; the views it returns are not.
type Manager struct {
	mm           *metamodel.Metamodel
	drv          dialect.Driver
	dialect      *dbms.Dialect
	f            *criteria.Factory
	reg          *registry
	logger       *slog.Logger
	regs         []Registration
	batch        int
	concurrency  int
	mode         FlushMode
	strategy     FlushStrategy
	strict       bool
	validate     bool
	managedTypes bool
	policy       blaze.Policy
	listeners    map[Event][]Listener
	cache        blaze.Cache
	cacheTTL     time.Duration
	factoryOpts  []criteria.Option
	vars         []sessionVar
}

// Option configures a Manager.
type Option func(*Manager)

// WithViews registers view types.
func WithViews(regs ...Registration) Option {
	return func(m *Manager) {
		m.regs = append(m.regs, regs...)
	}
}

// WithLogger sets the logger of the manager and of its criteria factory.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithBatchSize sets the default number of owners loaded per collection
// query. The default is 32.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		m.batch = n
	}
}

// WithFetchConcurrency sets the number of batches of one deferred load that
// are queried concurrently. Batches run sequentially by default.
func WithFetchConcurrency(n int) Option {
	return func(m *Manager) {
		m.concurrency = n
	}
}

// WithFlushMode sets the flush mode of views without an explicit mode.
func WithFlushMode(mode FlushMode) Option {
	return func(m *Manager) {
		m.mode = mode
	}
}

// WithFlushStrategy sets the flush strategy of views without an explicit
// strategy.
func WithFlushStrategy(s FlushStrategy) Option {
	return func(m *Manager) {
		m.strategy = s
	}
}

// WithStrictCascadingCheck controls whether flushing a new object through
// an attribute that does not cascade persists fails. It is enabled by
// default; otherwise such objects are skipped.
func WithStrictCascadingCheck(strict bool) Option {
	return func(m *Manager) {
		m.strict = strict
	}
}

// WithoutExpressionValidation disables rendering the mapping expressions of
// the views when they are registered.
func WithoutExpressionValidation() Option {
	return func(m *Manager) {
		m.validate = false
	}
}

// WithoutManagedTypeValidation disables checking that the field types of
// basic attributes can hold the values of the mapped entity attributes.
func WithoutManagedTypeValidation() Option {
	return func(m *Manager) {
		m.managedTypes = false
	}
}

// WithPolicy sets the policy evaluated before queries and flush operations.
func WithPolicy(p blaze.Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithListener adds a listener called for every view flushed with the event.
func WithListener(e Event, l Listener) Option {
	return func(m *Manager) {
		m.listeners[e] = append(m.listeners[e], l)
	}
}

// WithCache sets the statement cache of the criteria factory.
func WithCache(c blaze.Cache, ttl time.Duration) Option {
	return func(m *Manager) {
		m.cache, m.cacheTTL = c, ttl
	}
}

// WithFactoryOptions passes options to the criteria factory, e.g. custom
// functions used in mapping expressions.
func WithFactoryOptions(opts ...criteria.Option) Option {
	return func(m *Manager) {
		m.factoryOpts = append(m.factoryOpts, opts...)
	}
}

// NewManager builds the view metamodel of the registered views. Invalid
// mappings fail with a *blaze.ConfigurationError.
func NewManager(mm *metamodel.Metamodel, drv dialect.Driver, opts ...Option) (*Manager, error) {
	d, err := dbms.ForName(drv.Dialect())
	if err != nil {
		return nil, err
	}
	m := &Manager{
		mm:           mm,
		drv:          drv,
		dialect:      d,
		logger:       slog.Default(),
		batch:        32,
		concurrency:  1,
		mode:         FlushLazy,
		strategy:     StrategyQuery,
		strict:       true,
		validate:     true,
		managedTypes: true,
		listeners:    make(map[Event][]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.vars) > 0 {
		m.drv = &sessionDriver{Driver: drv, vars: m.vars}
	}
	if m.batch < 1 {
		return nil, blaze.NewConfigurationError("manager", "batch size must be positive, got %d", m.batch)
	}
	fopts := []criteria.Option{criteria.WithLogger(m.logger)}
	if m.cache != nil {
		fopts = append(fopts, criteria.WithCache(m.cache, m.cacheTTL))
	}
	m.f = criteria.NewFactory(mm, d, append(fopts, m.factoryOpts...)...)
	m.reg = &registry{m: m, types: make(map[reflect.Type]*viewType), names: make(map[string]*viewType)}
	for _, r := range m.regs {
		if err := r.declare(m.reg); err != nil {
			return nil, err
		}
	}
	for _, define := range m.reg.fields {
		if err := define(); err != nil {
			return nil, err
		}
	}
	for _, vt := range m.reg.names {
		m.defaults(vt)
	}
	m.logger.Debug("view manager ready", "dialect", d.Name(), "views", len(m.reg.names))
	return m, nil
}

// defaults applies the manager settings to the options a view left unset.
func (m *Manager) defaults(vt *viewType) {
	if vt.mode == 0 {
		vt.mode = m.mode
	}
	if vt.strategy == 0 {
		vt.strategy = m.strategy
	}
	if vt.batch == 0 {
		vt.batch = m.batch
	}
	for _, st := range vt.subtypes {
		m.defaults(st)
	}
}

// Factory returns the criteria factory of the manager.
func (m *Manager) Factory() *criteria.Factory { return m.f }

// Driver returns the driver of the manager. It sets the session variables
// of the manager.
func (m *Manager) Driver() dialect.Driver { return m.drv }

// Views returns the names of the registered views.
func (m *Manager) Views() []string {
	names := make([]string, 0, len(m.reg.names))
	for name := range m.reg.names {
		names = append(names, name)
	}
	return names
}

// validateExpr renders a query selecting the mapping expression.
func (m *Manager) validateExpr(vt *viewType, expr string) error {
	q, args, err := qualify(expr, "x", vt.entity, nil)
	if err != nil {
		return err
	}
	if _, _, err := m.f.From(vt.entity.Name, "x").SelectArgs(q, "", args...).Query(); err != nil {
		return fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	return nil
}

// typeOf returns the view type of T, a pointer to a view struct or a
// polymorphic interface.
func typeOf[T any](m *Manager) (*viewType, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	vt, ok := m.reg.types[t]
	if !ok {
		return nil, fmt.Errorf("view: %s is not a registered view", reflect.TypeFor[T]())
	}
	return vt, nil
}

// structOf returns the view struct behind v, which is a pointer to a view
// struct or an interface holding one.
func (m *Manager) structOf(v any) (reflect.Value, *viewType, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("view: expected a non-nil pointer to a view, got %T", v)
	}
	rv = rv.Elem()
	vt, ok := m.reg.types[rv.Type()]
	if !ok || vt.polymorphic() {
		return reflect.Value{}, nil, fmt.Errorf("view: %T is not a registered view", v)
	}
	return rv, vt, nil
}
