package dbms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/blaze/dialect/sql/sqltext"
)

// StatementType is the kind of a rendered statement.
type StatementType uint8

// Statement types.
const (
	StatementSelect StatementType = iota
	StatementInsert
	StatementUpdate
	StatementDelete
)

// String returns the lower case name of the statement type.
func (t StatementType) String() string {
	switch t {
	case StatementSelect:
		return "select"
	case StatementInsert:
		return "insert"
	case StatementUpdate:
		return "update"
	case StatementDelete:
		return "delete"
	}
	return "StatementType(" + strconv.Itoa(int(t)) + ")"
}

// Extended holds the parts of a statement that are rendered per dialect.
type Extended struct {
	Type StatementType
	// Subquery parenthesizes the statement.
	Subquery bool
	// With is the rendered WITH clause including its keyword, or empty.
	With string
	// Limit and Offset are the bounds of the statement, or empty.
	Limit, Offset string
	// Returning lists the columns a DML statement returns.
	Returning []string
}

// ExtendedResult is the outcome of AppendExtendedSQL.
type ExtendedResult struct {
	SQL string
	// ReturningAliases are the result column names of a select wrapper that
	// returns the DML columns, e.g. "ret_col_0". Empty when the columns keep
	// their names.
	ReturningAliases []string
	// LastInsertID reports that the single returned column must be read
	// through the driver's LastInsertId.
	LastInsertID bool
}

// AppendExtendedSQL adds the WITH clause, limit and DML returning of e to the
// statement text stmt.
func (d *Dialect) AppendExtendedSQL(stmt string, e Extended) (ExtendedResult, error) {
	if e.Subquery && len(e.Returning) > 0 && !d.SupportsModificationQueryInWithClause {
		return ExtendedResult{}, d.Unsupported("returning in a subquery")
	}
	stmt = strings.TrimSpace(stmt)
	if e.Type == StatementSelect {
		return d.extendSelect(stmt, e), nil
	}
	if e.Limit != "" || e.Offset != "" {
		stmt = d.limit.Apply(stmt, e.Limit, e.Offset)
	}
	var (
		res ExtendedResult
		err error
	)
	switch {
	case len(e.Returning) > 0:
		res, err = d.appendReturning(stmt, e)
	case e.With != "" && !d.SupportsWithClauseInModificationQuery && d.returning == ReturningFinalTable:
		// DB2 only allows WITH in front of a select, so the update count is
		// selected from the data change table.
		res = ExtendedResult{
			SQL:              e.With + "select count(*) as ret_col_0 from " + dataChangeTable(e.Type) + " (" + stmt + ")",
			ReturningAliases: []string{"ret_col_0"},
		}
	case e.With != "" && !d.SupportsWithClauseInModificationQuery:
		err = d.Unsupported("with clause in " + e.Type.String())
	default:
		res.SQL = e.With + stmt
	}
	if err != nil {
		return ExtendedResult{}, err
	}
	if e.Subquery && !strings.HasPrefix(res.SQL, "(") {
		res.SQL = "(" + res.SQL + ")"
	}
	return res, nil
}

func (d *Dialect) extendSelect(stmt string, e Extended) ExtendedResult {
	if e.With != "" {
		stmt = e.With + stmt
	}
	if e.Limit != "" || e.Offset != "" {
		stmt = d.limit.Apply(stmt, e.Limit, e.Offset)
	}
	if e.Subquery && !strings.HasPrefix(stmt, "(") {
		stmt = "(" + stmt + ")"
	}
	return ExtendedResult{SQL: stmt}
}

func (d *Dialect) appendReturning(stmt string, e Extended) (ExtendedResult, error) {
	if e.With != "" && !d.SupportsWithClauseInModificationQuery && d.returning != ReturningFinalTable {
		return ExtendedResult{}, d.Unsupported("with clause in " + e.Type.String())
	}
	if e.Type == StatementUpdate && !d.updateReturn && d.returning != ReturningNone {
		return ExtendedResult{}, d.Unsupported("returning in update")
	}
	switch d.returning {
	case ReturningClause:
		return ExtendedResult{SQL: e.With + stmt + " returning " + strings.Join(e.Returning, ", ")}, nil
	case ReturningOutput:
		s, err := d.appendOutput(stmt, e)
		if err != nil {
			return ExtendedResult{}, err
		}
		return ExtendedResult{SQL: e.With + s}, nil
	case ReturningFinalTable:
		var (
			sb      strings.Builder
			aliases = make([]string, len(e.Returning))
		)
		sb.WriteString(e.With)
		sb.WriteString("select ")
		for i, c := range e.Returning {
			aliases[i] = "ret_col_" + strconv.Itoa(i)
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c)
			sb.WriteString(" as ")
			sb.WriteString(aliases[i])
		}
		sb.WriteString(" from ")
		sb.WriteString(dataChangeTable(e.Type))
		sb.WriteString(" (")
		sb.WriteString(stmt)
		sb.WriteByte(')')
		return ExtendedResult{SQL: sb.String(), ReturningAliases: aliases}, nil
	default:
		if e.Type == StatementInsert && len(e.Returning) == 1 && d.SupportsLastInsertID && e.With == "" {
			return ExtendedResult{SQL: stmt, LastInsertID: true}, nil
		}
		return ExtendedResult{}, d.Unsupported("returning columns")
	}
}

func dataChangeTable(t StatementType) string {
	if t == StatementDelete {
		return "old table"
	}
	return "final table"
}

// appendOutput adds an OUTPUT clause. It goes before the VALUES or SELECT of
// an insert, before the FROM or WHERE of an update and before the WHERE of a
// delete.
func (d *Dialect) appendOutput(stmt string, e Extended) (string, error) {
	prefix := "inserted."
	if e.Type == StatementDelete {
		prefix = "deleted."
	}
	cols := make([]string, len(e.Returning))
	for i, c := range e.Returning {
		if j := strings.LastIndexByte(c, '.'); j >= 0 {
			c = c[j+1:]
		}
		cols[i] = prefix + c
	}
	output := "output " + strings.Join(cols, ", ")
	var pos int
	switch e.Type {
	case StatementInsert:
		pos = firstTopLevel(stmt, 0, "values", "select", "default values")
		if pos < 0 {
			return "", fmt.Errorf("dbms: insert without values: %q", stmt)
		}
	case StatementUpdate:
		set := sqltext.IndexOfTopLevel(stmt, "set", 0)
		if set < 0 {
			return "", fmt.Errorf("dbms: update without set: %q", stmt)
		}
		pos = firstTopLevel(stmt, set, "from", "where")
	case StatementDelete:
		pos = firstTopLevel(stmt, 0, "where")
	}
	if pos < 0 {
		return stmt + " " + output, nil
	}
	return stmt[:pos] + output + " " + stmt[pos:], nil
}

func firstTopLevel(s string, from int, keywords ...string) int {
	pos := -1
	for _, kw := range keywords {
		if i := sqltext.IndexOfTopLevel(s, kw, from); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	return pos
}
