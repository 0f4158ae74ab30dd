package view

import (
	"context"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/sql"
)

// SessionValue returns the value of a session variable for the statements
// of ctx, or false to leave the variable unset.
type SessionValue func(ctx context.Context) (string, bool)

type sessionVar struct {
	name  string
	value SessionValue
}

// WithSessionVar sets a database session variable before the statements of
// queries and flushes, e.g. the tenant read by row level security policies:
//
//	view.WithSessionVar("app.tenant_id", privacy.TenantID)
//
// Variables already set on the context with sql.WithVar are kept.
func WithSessionVar(name string, value SessionValue) Option {
	return func(m *Manager) {
		m.vars = append(m.vars, sessionVar{name: name, value: value})
	}
}

// sessionDriver attaches the session variables of the manager to the
// context of every statement.
type sessionDriver struct {
	dialect.Driver
	vars []sessionVar
}

func (d *sessionDriver) with(ctx context.Context) context.Context {
	for _, v := range d.vars {
		if _, ok := sql.VarFromContext(ctx, v.name); ok {
			continue
		}
		if val, ok := v.value(ctx); ok {
			ctx = sql.WithVar(ctx, v.name, val)
		}
	}
	return ctx
}

func (d *sessionDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.Driver.Query(d.with(ctx), query, args, v)
}

func (d *sessionDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.Driver.Exec(d.with(ctx), query, args, v)
}

func (d *sessionDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &sessionTx{Tx: tx, d: d}, nil
}

type sessionTx struct {
	dialect.Tx
	d *sessionDriver
}

func (tx *sessionTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.Tx.Query(tx.d.with(ctx), query, args, v)
}

func (tx *sessionTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.Tx.Exec(tx.d.with(ctx), query, args, v)
}

var (
	_ dialect.Driver = (*sessionDriver)(nil)
	_ dialect.Tx     = (*sessionTx)(nil)
)
