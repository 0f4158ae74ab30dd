package load

import (
	"fmt"
	"go/token"
	"strings"
)

// GoType is the parsed Go type of a view field.
type GoType struct {
	// Slice reports a slice of elements, e.g. []int64 or []*RevisionView.
	Slice bool
	// Pointer reports a pointer to the element type.
	Pointer bool
	// Package is the import path of a qualified element type.
	Package string
	// Name is the element type name, e.g. "int64", "Time" or "RevisionView".
	Name string
	// View is set when the element type is a view of the model.
	View string
}

// Packages maps the qualifiers allowed in field types to their import paths.
var Packages = map[string]string{
	"time": "time",
	"uuid": "github.com/google/uuid",
	"sql":  "database/sql",
	"json": "encoding/json",
}

var builtins = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true,
}

// ParseType parses the Go type of a view field.
func ParseType(s string) (*GoType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("missing field type")
	}
	t := &GoType{}
	rest := s
	if strings.HasPrefix(rest, "[]") && rest != "[]byte" {
		t.Slice, rest = true, rest[2:]
	}
	if strings.HasPrefix(rest, "*") {
		t.Pointer, rest = true, rest[1:]
	}
	switch {
	case rest == "[]byte" && !t.Slice:
		t.Name = rest
	case builtins[rest]:
		t.Name = rest
	case strings.Contains(rest, "."):
		q, name, _ := strings.Cut(rest, ".")
		path, ok := Packages[q]
		if !ok || !token.IsIdentifier(name) || !token.IsExported(name) {
			return nil, fmt.Errorf("unsupported field type %q", s)
		}
		t.Package, t.Name = path, name
	case token.IsIdentifier(rest) && token.IsExported(rest):
		t.Name, t.View = rest, rest
	default:
		return nil, fmt.Errorf("unsupported field type %q", s)
	}
	return t, nil
}

// String returns the Go type expression.
func (t *GoType) String() string {
	var b strings.Builder
	if t.Slice {
		b.WriteString("[]")
	}
	if t.Pointer {
		b.WriteString("*")
	}
	if t.Package != "" {
		b.WriteString(t.Package[strings.LastIndex(t.Package, "/")+1:])
		b.WriteString(".")
	}
	b.WriteString(t.Name)
	return b.String()
}
