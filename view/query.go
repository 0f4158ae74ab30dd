package view

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
	"github.com/syssam/blaze/privacy"
)

// QueryOption configures a view query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	where  []criteria.Predicate
	orders []criteria.Order
	first  int
	max    int
	fetch  []string
	params map[string]any
	keyset []any
	before bool
}

// Where restricts the query. Paths start at the root alias, the entity name
// in lower camel case, e.g. "document.owner.name".
func Where(ps ...criteria.Predicate) QueryOption {
	return func(c *queryConfig) {
		c.where = append(c.where, ps...)
	}
}

// OrderBy orders the result. Paths start at the root alias.
func OrderBy(orders ...criteria.Order) QueryOption {
	return func(c *queryConfig) {
		c.orders = append(c.orders, orders...)
	}
}

// Page returns max views starting at the first.
func Page(first, max int) QueryOption {
	return func(c *queryConfig) {
		c.first, c.max = first, max
	}
}

// Fetch restricts the loaded attributes to the given dotted paths. The id
// and the version are always loaded; accessing other attributes through the
// change model fails with a *blaze.NotFetchedError.
func Fetch(paths ...string) QueryOption {
	return func(c *queryConfig) {
		c.fetch = append(c.fetch, paths...)
	}
}

// Param binds the named parameter of mapping expressions, e.g. ":locale".
func Param(name string, v any) QueryOption {
	return func(c *queryConfig) {
		if c.params == nil {
			c.params = make(map[string]any)
		}
		c.params[name] = v
	}
}

// After returns the views following the view with the given order values.
// Paginate appends the id to the order, so its value comes last.
func After(vs ...any) QueryOption {
	return func(c *queryConfig) {
		c.keyset, c.before = vs, false
	}
}

// Before returns the views preceding the view with the given order values,
// nearest first.
func Before(vs ...any) QueryOption {
	return func(c *queryConfig) {
		c.keyset, c.before = vs, true
	}
}

// Alias returns the root alias of queries over entity.
func Alias(entity string) string { return lowerCamel(entity) }

// bound applies the order and the bounds of the query to s.
func (c *queryConfig) bound(s *criteria.Select) {
	s.OrderBy(c.orders...)
	if c.first > 0 || c.max > 0 {
		s.SetFirstResult(c.first).SetMaxResults(c.max)
	}
	switch {
	case c.keyset == nil:
	case c.before:
		s.BeforeKeyset(c.keyset...)
	default:
		s.AfterKeyset(c.keyset...)
	}
}

// viewQuery is the query passed to policies.
type viewQuery struct {
	vt    *viewType
	alias string
	cfg   *queryConfig
	// keys selects the root rows for subselect fetches. It is ordered and
	// bounded only when the query is.
	keys *criteria.Select
}

func (q *viewQuery) View() string                    { return q.vt.name }
func (q *viewQuery) Entity() string                  { return q.vt.entity.Name }
func (q *viewQuery) Filter() privacy.Filter          { return q }
func (q *viewQuery) Alias() string                   { return q.alias }
func (q *viewQuery) WhereP(ps ...criteria.Predicate) { q.cfg.where = append(q.cfg.where, ps...) }

var (
	_ blaze.Query        = (*viewQuery)(nil)
	_ privacy.Filterable = (*viewQuery)(nil)
)

// prepare evaluates the query policy and returns the root select without
// select items.
func (m *Manager) prepare(ctx context.Context, vt *viewType, opts []QueryOption) (*viewQuery, *criteria.Select, error) {
	cfg := &queryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.params == nil {
		cfg.params = make(map[string]any)
	}
	q := &viewQuery{vt: vt, alias: Alias(vt.entity.Name), cfg: cfg}
	if m.policy != nil {
		if err := m.policy.EvalQuery(ctx, q); err != nil && !errors.Is(err, privacy.Allow) {
			return nil, nil, blaze.NewPolicyError(vt.name, "query", err)
		}
	}
	s := m.f.From(vt.entity.Name, q.alias).Where(cfg.where...)
	q.keys = s.Clone()
	cfg.bound(s)
	if cfg.first > 0 || cfg.max > 0 || cfg.keyset != nil {
		cfg.bound(q.keys)
	}
	return q, s, nil
}

// Find returns the views T matching the options. T is a pointer to a view
// struct or a polymorphic view interface.
//
//	docs, err := view.Find[*DocumentView](ctx, m,
//		view.Where(criteria.Path[string]("document.name").Like("A%")),
//		view.OrderBy(criteria.Asc("document.name")),
//	)
func Find[T any](ctx context.Context, m *Manager, opts ...QueryOption) ([]T, error) {
	vt, err := typeOf[T](m)
	if err != nil {
		return nil, err
	}
	q, s, err := m.prepare(ctx, vt, opts)
	if err != nil {
		return nil, err
	}
	return find[T](ctx, m, vt, q, s)
}

func find[T any](ctx context.Context, m *Manager, vt *viewType, q *viewQuery, s *criteria.Select) ([]T, error) {
	ld := newLoader(m, q.cfg.params)
	fetch, err := fetchTree(vt, q.cfg.fetch)
	if err != nil {
		return nil, err
	}
	p := &projector{m: m, q: s, params: q.cfg.params, keys: q.keys, alias: q.alias}
	proj, err := p.project(vt, q.alias, fetch)
	if err != nil {
		return nil, err
	}
	rows, err := s.All(ctx, m.drv)
	if err != nil {
		return nil, blaze.NewQueryError(vt.entity.Name, "find", err)
	}
	out := make([]T, len(rows))
	for i, row := range rows {
		dst := reflect.ValueOf(&out[i]).Elem()
		if err := proj.decode(dst, row, ld); err != nil {
			return nil, fmt.Errorf("view: decode %s: %w", vt.name, err)
		}
	}
	if err := ld.run(ctx); err != nil {
		return nil, err
	}
	m.logger.Debug("views loaded", "view", vt.name, "count", len(out))
	return out, nil
}

// FindByID returns the view T of the entity with the given id.
func FindByID[T any](ctx context.Context, m *Manager, id any, opts ...QueryOption) (T, error) {
	var zero T
	vt, err := typeOf[T](m)
	if err != nil {
		return zero, err
	}
	alias := Alias(vt.entity.Name)
	vs, err := Find[T](ctx, m, append(opts, Where(criteria.Path[any](alias).EQ(id)))...)
	if err != nil {
		return zero, err
	}
	if len(vs) == 0 {
		return zero, blaze.NewNotFoundErrorWithID(vt.name, id)
	}
	return vs[0], nil
}

// FindOne returns the only view T matching the options.
func FindOne[T any](ctx context.Context, m *Manager, opts ...QueryOption) (T, error) {
	var zero T
	vt, err := typeOf[T](m)
	if err != nil {
		return zero, err
	}
	vs, err := Find[T](ctx, m, append(opts, Page(0, 2))...)
	if err != nil {
		return zero, err
	}
	switch len(vs) {
	case 0:
		return zero, blaze.NewNotFoundError(vt.name)
	case 1:
		return vs[0], nil
	}
	return zero, blaze.NewNotSingularError(vt.name)
}

// PagedList is a page of views.
type PagedList[T any] struct {
	Items []T
	// Total is the number of views matching the query without bounds.
	Total int64
	First int
	Max   int
}

// HasNext reports whether views follow the page.
func (p *PagedList[T]) HasNext() bool { return int64(p.First+len(p.Items)) < p.Total }

// Paginate returns a page of views and the total count. The id is appended
// to the order so pages are stable.
func Paginate[T any](ctx context.Context, m *Manager, first, max int, opts ...QueryOption) (*PagedList[T], error) {
	vt, err := typeOf[T](m)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, fmt.Errorf("view: page size must be positive, got %d", max)
	}
	alias := Alias(vt.entity.Name)
	opts = append(opts, OrderBy(criteria.Asc(alias)), Page(first, max))
	q, s, err := m.prepare(ctx, vt, opts)
	if err != nil {
		return nil, err
	}
	count, err := s.CountQuery().All(ctx, m.drv)
	if err != nil {
		return nil, blaze.NewQueryError(vt.entity.Name, "count", err)
	}
	page := &PagedList[T]{First: first, Max: max}
	if len(count) == 1 {
		if n, err := toInt(count[0][0]); err == nil {
			page.Total = n
		}
	}
	if page.Total == 0 || q.cfg.keyset == nil && int64(first) >= page.Total {
		return page, nil
	}
	if page.Items, err = find[T](ctx, m, vt, q, s); err != nil {
		return nil, err
	}
	return page, nil
}

// fetchTree parses fetch paths into a tree of attribute names. A nil tree
// loads every attribute.
func fetchTree(vt *viewType, paths []string) (fetchSet, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	tree := make(fetchSet)
	for _, p := range paths {
		if err := tree.add(vt, p); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// fetchSet maps attribute names to the fetch set of their subview, nil
// for all attributes.
type fetchSet map[string]fetchSet

func (s fetchSet) add(vt *viewType, path string) error {
	name, rest, nested := strings.Cut(path, ".")
	var a *attribute
	for _, t := range append([]*viewType{vt}, vt.subtypes...) {
		if t.byName != nil && t.byName[name] != nil {
			a = t.byName[name]
			break
		}
	}
	if a == nil {
		return fmt.Errorf("view: %s has no attribute %q", vt.name, name)
	}
	if !nested {
		s[name] = nil
		return nil
	}
	if a.view == nil {
		return fmt.Errorf("view: attribute %q of %s has no nested attributes", name, vt.name)
	}
	sub, ok := s[name]
	if ok && sub == nil {
		return nil
	}
	if sub == nil {
		sub = make(fetchSet)
		s[name] = sub
	}
	return sub.add(a.view, rest)
}

// includes reports whether the attribute is loaded and returns the fetch
// set of its subview.
func (s fetchSet) includes(a *attribute) (bool, fetchSet) {
	if s == nil {
		return true, nil
	}
	if a.id || a.version {
		return true, nil
	}
	sub, ok := s[a.name]
	return ok, sub
}
