package view

import (
	"fmt"
	"strings"
)

// FetchStrategy selects how subviews and collections are loaded.
type FetchStrategy uint8

// Fetch strategies. The zero value joins singular subviews and selects
// collections in batches.
const (
	FetchDefault FetchStrategy = iota
	// FetchJoin loads a singular subview with implicit joins of the owner
	// query.
	FetchJoin
	// FetchSelect loads subviews with batched IN queries over the owner ids
	// or the correlation basis.
	FetchSelect
	// FetchSubselect loads a collection with one query restricted by a
	// subquery over the ids of the root query.
	FetchSubselect
	// FetchMultiset loads a collection as a JSON aggregate column of the
	// owner query.
	FetchMultiset
)

func (s FetchStrategy) String() string {
	switch s {
	case FetchJoin:
		return "join"
	case FetchSelect:
		return "select"
	case FetchSubselect:
		return "subselect"
	case FetchMultiset:
		return "multiset"
	}
	return "default"
}

// cascade is a set of cascaded operations.
type cascade uint8

const (
	cascadePersist cascade = 1 << iota
	cascadeUpdate
	cascadeDelete
)

func (c cascade) has(o cascade) bool { return c&o != 0 }

// tag is the parsed view struct tag:
//
//	Name      string         `view:"name,updatable"`
//	Owner     *PersonView    `view:"owner,updatable,cascade=persist+update"`
//	Revisions []RevisionView `view:"revisions,updatable,orphan,fetch=multiset"`
//	Siblings  []DocumentView `view:"owner,correlated=Document.owner"`
type tag struct {
	mapping    string
	id         bool
	version    bool
	updatable  bool
	orphan     bool
	cascade    cascade
	fetch      FetchStrategy
	correlated string
	name       string
	skip       bool
}

func parseTag(s string) (tag, error) {
	if s == "-" {
		return tag{skip: true}, nil
	}
	parts := splitTag(s)
	t := tag{mapping: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch key {
		case "id":
			t.id = true
		case "version":
			t.version = true
		case "updatable":
			t.updatable = true
		case "mutable":
			t.updatable = true
			t.cascade |= cascadeUpdate
		case "orphan":
			t.orphan = true
		case "cascade":
			for _, c := range strings.Split(value, "+") {
				switch c {
				case "persist":
					t.cascade |= cascadePersist
				case "update":
					t.cascade |= cascadeUpdate
				case "delete":
					t.cascade |= cascadeDelete
				default:
					return tag{}, fmt.Errorf("unknown cascade %q", c)
				}
			}
		case "fetch":
			switch value {
			case "join":
				t.fetch = FetchJoin
			case "select":
				t.fetch = FetchSelect
			case "subselect":
				t.fetch = FetchSubselect
			case "multiset":
				t.fetch = FetchMultiset
			default:
				return tag{}, fmt.Errorf("unknown fetch strategy %q", value)
			}
		case "correlated":
			if !strings.Contains(value, ".") {
				return tag{}, fmt.Errorf("correlation %q must be Entity.path", value)
			}
			t.correlated = value
		case "name":
			t.name = value
		case "":
		default:
			return tag{}, fmt.Errorf("unknown option %q", key)
		}
	}
	return t, nil
}

// splitTag splits a tag on the commas outside of parentheses and quotes,
// so mappings may contain function calls with several arguments.
func splitTag(s string) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
