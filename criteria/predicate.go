package criteria

// Predicate writes a boolean expression.
type Predicate func(*Writer)

// Expr returns a predicate of a raw expression. Its "?" placeholders are
// bound to args in order.
//
//	criteria.Expr("d.age between ? and ?", 18, 65)
func Expr(expr string, args ...any) Predicate {
	return func(w *Writer) {
		w.Expr(expr)
		w.b.Append("", args...)
	}
}

// And joins predicates with AND.
func And(ps ...Predicate) Predicate {
	return junction(" and ", ps)
}

// Or joins predicates with OR.
func Or(ps ...Predicate) Predicate {
	return junction(" or ", ps)
}

func junction(op string, ps []Predicate) Predicate {
	return func(w *Writer) {
		switch len(ps) {
		case 0:
			if op == " and " {
				w.WriteString("1 = 1")
			} else {
				w.WriteString("1 = 0")
			}
			return
		case 1:
			ps[0](w)
			return
		}
		w.WriteString("(")
		for i, p := range ps {
			if i > 0 {
				w.WriteString(op)
			}
			p(w)
		}
		w.WriteString(")")
	}
}

// conjunction writes ps joined with AND without enclosing parentheses.
func conjunction(w *Writer, ps []Predicate) {
	for i, p := range ps {
		if i > 0 {
			w.WriteString(" and ")
		}
		p(w)
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(w *Writer) {
		w.WriteString("not (")
		p(w)
		w.WriteString(")")
	}
}

// Exists returns a predicate that checks whether the subquery has rows.
func Exists(sub Statement) Predicate {
	return func(w *Writer) {
		w.WriteString("exists ").Subquery(sub)
	}
}

// NotExists returns a predicate that checks whether the subquery has no rows.
func NotExists(sub Statement) Predicate {
	return func(w *Writer) {
		w.WriteString("not exists ").Subquery(sub)
	}
}

// InSubquery returns a predicate that checks whether expr is in the result
// of sub.
func InSubquery(expr string, sub Statement) Predicate {
	return func(w *Writer) {
		w.Expr(expr).WriteString(" in ").quantified(sub)
	}
}

// NotInSubquery returns a predicate that checks whether expr is not in the
// result of sub.
func NotInSubquery(expr string, sub Statement) Predicate {
	return func(w *Writer) {
		w.Expr(expr).WriteString(" not in ").quantified(sub)
	}
}
