package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/blaze/dialect"
)

// StatementKind classifies statements by their leading keyword.
type StatementKind int

// Statement kinds. Statements starting with a WITH clause or a final table
// select of a DML statement count as selects.
const (
	KindSelect StatementKind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindOther
	numKinds
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	}
	return "other"
}

// KindOf returns the kind of the statement.
func KindOf(query string) StatementKind {
	q := strings.TrimLeft(query, " \t\r\n(")
	i := strings.IndexAny(q, " \t\r\n(")
	if i > 0 {
		q = q[:i]
	}
	switch strings.ToLower(q) {
	case "select", "with", "values":
		return KindSelect
	case "insert", "merge":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	}
	return KindOther
}

// QueryStats counts the statements and transactions of a StatsDriver.
// It is safe for concurrent use.
type QueryStats struct {
	queries   atomic.Int64
	execs     atomic.Int64
	kinds     [numKinds]atomic.Int64
	duration  atomic.Int64
	slow      atomic.Int64
	errors    atomic.Int64
	txs       atomic.Int64
	rollbacks atomic.Int64
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		Queries:   s.queries.Load(),
		Execs:     s.execs.Load(),
		Duration:  time.Duration(s.duration.Load()),
		Slow:      s.slow.Load(),
		Errors:    s.errors.Load(),
		Txs:       s.txs.Load(),
		Rollbacks: s.rollbacks.Load(),
	}
	for k := range s.kinds {
		snap.Kinds[k] = s.kinds[k].Load()
	}
	return snap
}

// Reset sets all counters to zero.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{&s.queries, &s.execs, &s.duration, &s.slow, &s.errors, &s.txs, &s.rollbacks} {
		c.Store(0)
	}
	for k := range s.kinds {
		s.kinds[k].Store(0)
	}
}

func (s *QueryStats) record(kind StatementKind, query bool, d time.Duration, err error) {
	if query {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	s.kinds[kind].Add(1)
	s.duration.Add(int64(d))
	if err != nil {
		s.errors.Add(1)
	}
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	// Queries and Execs count the statements by the driver method used.
	Queries, Execs int64
	// Kinds counts the statements by StatementKind.
	Kinds     [numKinds]int64
	Duration  time.Duration
	Slow      int64
	Errors    int64
	Txs       int64
	Rollbacks int64
}

// Count returns the number of statements of the kind.
func (s StatsSnapshot) Count(k StatementKind) int64 {
	if k < 0 || k >= numKinds {
		return 0
	}
	return s.Kinds[k]
}

// AvgDuration returns the mean duration of a statement.
func (s StatsSnapshot) AvgDuration() time.Duration {
	n := s.Queries + s.Execs
	if n == 0 {
		return 0
	}
	return s.Duration / time.Duration(n)
}

func (s StatsSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "queries=%d execs=%d", s.Queries, s.Execs)
	for k := KindSelect; k < numKinds; k++ {
		if s.Kinds[k] > 0 {
			fmt.Fprintf(&b, " %s=%d", k, s.Kinds[k])
		}
	}
	fmt.Fprintf(&b, " txs=%d rollbacks=%d duration=%s avg=%s slow=%d errors=%d",
		s.Txs, s.Rollbacks, s.Duration, s.AvgDuration(), s.Slow, s.Errors)
	return b.String()
}

// SlowQueryHook is called with every statement slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver is a Driver collecting statement statistics.
type StatsDriver struct {
	*Driver
	stats  *QueryStats
	logger *slog.Logger

	mu        sync.RWMutex
	threshold time.Duration
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// It defaults to 100ms. A zero threshold disables slow query detection.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithSlowQueryHook sets the hook called for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithStatsLogger sets the logger of WithSlowQueryLog. It defaults to
// slog.Default().
func WithStatsLogger(l *slog.Logger) StatsOption {
	return func(s *StatsDriver) {
		s.logger = l
	}
}

// WithSlowQueryLog logs slow statements at warn level.
func WithSlowQueryLog() StatsOption {
	return func(s *StatsDriver) {
		s.hook = func(ctx context.Context, query string, args []any, d time.Duration) {
			s.logger.WarnContext(ctx, "slow query", "duration", d, "kind", KindOf(query).String(), "query", query, "args", args)
		}
	}
}

// NewStatsDriver wraps drv:
//
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog())
//	m, _ := view.NewManager(mm, stats, view.WithViews(...))
//	_ = m.Save(ctx, doc)
//	stats.QueryStats().Stats().Count(sql.KindUpdate)
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		stats:     &QueryStats{},
		logger:    slog.Default(),
		threshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetSlowThreshold changes the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, true, time.Since(start), err)
	return err
}

func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, false, time.Since(start), err)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, isQuery bool, took time.Duration, err error) {
	d.stats.record(KindOf(query), isQuery, took, err)
	d.mu.RLock()
	threshold, hook := d.threshold, d.hook
	d.mu.RUnlock()
	if threshold <= 0 || took <= threshold {
		return
	}
	d.stats.slow.Add(1)
	if hook != nil {
		list, _ := args.([]any)
		hook(ctx, query, list, took)
	}
}

// Tx starts a transaction whose statements are counted too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.stats.txs.Add(1)
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx is a transaction of a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, true, time.Since(start), err)
	return err
}

func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, false, time.Since(start), err)
	return err
}

// Rollback rolls back the transaction and counts it.
func (tx *StatsTx) Rollback() error {
	tx.driver.stats.rollbacks.Add(1)
	return tx.Tx.Rollback()
}

// DebugDriver is a Driver logging every statement at debug level.
type DebugDriver struct {
	*Driver
	logger *slog.Logger
	txs    atomic.Int64
}

// NewDebugDriver wraps drv. A nil logger logs to slog.Default().
func NewDebugDriver(drv *Driver, logger *slog.Logger) *DebugDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugDriver{Driver: drv, logger: logger}
}

func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "sql query", "query", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "sql exec", "query", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction. Its log entries carry a "tx" sequence number.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.logger.DebugContext(ctx, "sql begin", "error", err)
		return nil, err
	}
	l := d.logger.With("tx", d.txs.Add(1))
	l.DebugContext(ctx, "sql begin")
	return &DebugTx{Tx: tx, logger: l}, nil
}

// DebugTx is a transaction of a DebugDriver.
type DebugTx struct {
	dialect.Tx
	logger *slog.Logger
}

func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.logger.DebugContext(ctx, "sql query", "query", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.logger.DebugContext(ctx, "sql exec", "query", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

func (tx *DebugTx) Commit() error {
	err := tx.Tx.Commit()
	tx.logger.Debug("sql commit", "error", err)
	return err
}

func (tx *DebugTx) Rollback() error {
	err := tx.Tx.Rollback()
	tx.logger.Debug("sql rollback", "error", err)
	return err
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
