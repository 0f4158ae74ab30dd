package criteria

// Path is a typed attribute path such as "d.owner.name". It provides the
// comparison predicates of the attribute.
//
//	var ownerName = criteria.Path[string]("d.owner.name")
//	q.Where(ownerName.EQ("Alice"))
type Path[T any] string

// Name returns the path.
func (p Path[T]) Name() string { return string(p) }

// EQ returns a predicate that checks if the path equals v.
func (p Path[T]) EQ(v T) Predicate { return p.compare(" = ", v) }

// NEQ returns a predicate that checks if the path does not equal v.
func (p Path[T]) NEQ(v T) Predicate { return p.compare(" <> ", v) }

// GT returns a predicate that checks if the path is greater than v.
func (p Path[T]) GT(v T) Predicate { return p.compare(" > ", v) }

// GTE returns a predicate that checks if the path is greater than or equal to v.
func (p Path[T]) GTE(v T) Predicate { return p.compare(" >= ", v) }

// LT returns a predicate that checks if the path is less than v.
func (p Path[T]) LT(v T) Predicate { return p.compare(" < ", v) }

// LTE returns a predicate that checks if the path is less than or equal to v.
func (p Path[T]) LTE(v T) Predicate { return p.compare(" <= ", v) }

func (p Path[T]) compare(op string, v T) Predicate {
	return func(w *Writer) {
		w.Expr(string(p)).WriteString(op).Arg(v)
	}
}

// In returns a predicate that checks if the path is one of vs. An empty list
// matches nothing.
func (p Path[T]) In(vs ...T) Predicate {
	return func(w *Writer) {
		if len(vs) == 0 {
			w.WriteString("1 = 0")
			return
		}
		w.Expr(string(p)).WriteString(" in (").Args(anys(vs)...).WriteString(")")
	}
}

// NotIn returns a predicate that checks if the path is none of vs. An empty
// list matches everything.
func (p Path[T]) NotIn(vs ...T) Predicate {
	return func(w *Writer) {
		if len(vs) == 0 {
			w.WriteString("1 = 1")
			return
		}
		w.Expr(string(p)).WriteString(" not in (").Args(anys(vs)...).WriteString(")")
	}
}

// Between returns a predicate that checks if the path is within [lo, hi].
func (p Path[T]) Between(lo, hi T) Predicate {
	return func(w *Writer) {
		w.Expr(string(p)).WriteString(" between ").Arg(lo).WriteString(" and ").Arg(hi)
	}
}

// Like returns a predicate that matches the path against a LIKE pattern.
func (p Path[T]) Like(pattern string) Predicate {
	return func(w *Writer) {
		w.Expr(string(p)).WriteString(" like ").Arg(pattern)
	}
}

// IsNull returns a predicate that checks if the path is NULL.
func (p Path[T]) IsNull() Predicate {
	return func(w *Writer) {
		w.Expr(string(p)).WriteString(" is null")
	}
}

// NotNull returns a predicate that checks if the path is not NULL.
func (p Path[T]) NotNull() Predicate {
	return func(w *Writer) {
		w.Expr(string(p)).WriteString(" is not null")
	}
}

// EQPath returns a predicate that compares the path with another path.
func (p Path[T]) EQPath(o Path[T]) Predicate {
	return func(w *Writer) {
		w.Expr(string(p)).WriteString(" = ").Expr(string(o))
	}
}

// Asc returns an ascending order by the path.
func (p Path[T]) Asc() Order { return Asc(string(p)) }

// Desc returns a descending order by the path.
func (p Path[T]) Desc() Order { return Desc(string(p)) }

func anys[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
