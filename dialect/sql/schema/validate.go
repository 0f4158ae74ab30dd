package schema

import (
	"context"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/schema"

	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/metamodel"
)

// ValidationError represents a difference between the metamodel and the
// database.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking indicates that statements of the metamodel fail against the
	// database.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if there are any breaking differences.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) add(err *ValidationError) {
	if err.Breaking {
		r.Errors = append(r.Errors, err)
	} else {
		r.Warnings = append(r.Warnings, err)
	}
}

// ValidateOption configures Check.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	strictTypes       bool
	ignoreForeignKeys bool
}

// StrictTypes reports column type differences as errors.
func StrictTypes() ValidateOption {
	return func(c *validateConfig) {
		c.strictTypes = true
	}
}

// IgnoreForeignKeys skips missing and extra foreign keys.
func IgnoreForeignKeys() ValidateOption {
	return func(c *validateConfig) {
		c.ignoreForeignKeys = true
	}
}

// Validate compares the tables of mm with the database. Missing tables and
// columns and optional attributes mapped to NOT NULL columns are errors;
// other differences are warnings.
//
// Example:
//
//	result, err := schema.Validate(ctx, drv, mm)
//	if err != nil {
//	    return err
//	}
//	if result.HasErrors() {
//	    log.Fatal("schema does not match:\n", result)
//	}
func Validate(ctx context.Context, drv *sql.Driver, mm *metamodel.Metamodel, opts ...ValidateOption) (*ValidationResult, error) {
	ad, err := open(drv)
	if err != nil {
		return nil, err
	}
	changes, _, err := plan(ctx, ad, mm, drv.Dialect(), newConfig(nil), nil)
	if err != nil {
		return nil, err
	}
	return Check(changes, opts...), nil
}

// Check classifies the changes that migrate a database to the metamodel.
func Check(changes []schema.Change, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	for _, c := range changes {
		switch c := c.(type) {
		case *schema.AddTable:
			result.add(&ValidationError{Table: c.T.Name, Message: "table does not exist", Breaking: true})
		case *schema.ModifyTable:
			checkTable(c.T.Name, c.Changes, cfg, result)
		}
	}
	return result
}

func checkTable(table string, changes []schema.Change, cfg *validateConfig, result *ValidationResult) {
	for _, c := range changes {
		switch c := c.(type) {
		case *schema.AddColumn:
			result.add(&ValidationError{Table: table, Column: c.C.Name, Message: "column does not exist", Breaking: true})
		case *schema.DropColumn:
			msg := "column is not mapped"
			if !c.C.Type.Null && c.C.Default == nil {
				// Inserts of the metamodel omit the column.
				result.add(&ValidationError{Table: table, Column: c.C.Name, Message: msg + " and is NOT NULL without a default", Breaking: true})
				continue
			}
			result.add(&ValidationError{Table: table, Column: c.C.Name, Message: msg})
		case *schema.ModifyColumn:
			if c.Change.Is(schema.ChangeNull) {
				if c.To.Type.Null {
					result.add(&ValidationError{Table: table, Column: c.To.Name, Message: "optional attribute is mapped to a NOT NULL column", Breaking: true})
				} else {
					result.add(&ValidationError{Table: table, Column: c.To.Name, Message: "required attribute is mapped to a nullable column"})
				}
			}
			if c.Change.Is(schema.ChangeType) {
				result.add(&ValidationError{
					Table:    table,
					Column:   c.To.Name,
					Message:  fmt.Sprintf("column type %s differs from %s", typeName(c.From.Type.Type), typeName(c.To.Type.Type)),
					Breaking: cfg.strictTypes,
				})
			}
		case *schema.AddPrimaryKey:
			result.add(&ValidationError{Table: table, Message: "table has no primary key"})
		case *schema.ModifyPrimaryKey:
			result.add(&ValidationError{Table: table, Message: "primary key differs", Breaking: true})
		case *schema.AddForeignKey:
			if !cfg.ignoreForeignKeys {
				result.add(&ValidationError{Table: table, Message: fmt.Sprintf("foreign key %s does not exist", columns(c.F.Columns))})
			}
		case *schema.DropForeignKey:
			if !cfg.ignoreForeignKeys {
				result.add(&ValidationError{Table: table, Message: fmt.Sprintf("foreign key %s is not mapped", columns(c.F.Columns))})
			}
		}
	}
}

func typeName(t schema.Type) string {
	switch t := t.(type) {
	case *schema.BoolType:
		return t.T
	case *schema.IntegerType:
		return t.T
	case *schema.FloatType:
		return t.T
	case *schema.DecimalType:
		return t.T
	case *schema.StringType:
		return t.T
	case *schema.TimeType:
		return t.T
	case *schema.BinaryType:
		return t.T
	case *schema.UUIDType:
		return t.T
	case *schema.UnsupportedType:
		return t.T
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("%T", t)
}

func columns(cs []*schema.Column) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return "(" + strings.Join(names, ", ") + ")"
}
