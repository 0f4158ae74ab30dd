// Package load reads model files declaring entities and entity views.
//
// A model file is YAML:
//
//	package: model
//	entities:
//	  - name: Document
//	    attributes:
//	      - {name: id, id: true}
//	      - {name: name, kind: string}
//	      - {name: owner, type: many-to-one, target: Person, required: true}
//	views:
//	  - name: DocumentView
//	    entity: Document
//	    updatable: true
//	    fields:
//	      - {name: ID, type: int64}
//	      - {name: Name, type: string, updatable: true}
//	      - {name: Owner, type: "*PersonView"}
package load

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/metamodel"
)

// Attribute types.
const (
	Basic      = "basic"
	ManyToOne  = "many-to-one"
	OneToMany  = "one-to-many"
	ManyToMany = "many-to-many"
)

type (
	// Model is the content of one or more model files.
	Model struct {
		Package  string    `yaml:"package"`
		Entities []*Entity `yaml:"entities"`
		Views    []*View   `yaml:"views"`
		// Files holds the paths the model was loaded from.
		Files []string `yaml:"-"`
	}

	// Entity declares an entity of the metamodel.
	Entity struct {
		Name       string       `yaml:"name"`
		Table      string       `yaml:"table,omitempty"`
		Attributes []*Attribute `yaml:"attributes"`
	}

	// Attribute declares an attribute of an entity.
	Attribute struct {
		Name string `yaml:"name"`
		// Type is one of basic, many-to-one, one-to-many or many-to-many.
		Type string `yaml:"type,omitempty"`
		// Kind is the logical type of a basic attribute, e.g. int64, string.
		Kind      string     `yaml:"kind,omitempty"`
		Column    string     `yaml:"column,omitempty"`
		ID        bool       `yaml:"id,omitempty"`
		Version   bool       `yaml:"version,omitempty"`
		Optional  bool       `yaml:"optional,omitempty"`
		Required  bool       `yaml:"required,omitempty"`
		Target    string     `yaml:"target,omitempty"`
		MappedBy  string     `yaml:"mapped_by,omitempty"`
		JoinTable *JoinTable `yaml:"join_table,omitempty"`
	}

	// JoinTable overrides the join table of a many-to-many association.
	JoinTable struct {
		Name          string `yaml:"name"`
		JoinColumn    string `yaml:"join_column"`
		InverseColumn string `yaml:"inverse_column"`
	}

	// View declares an entity view struct.
	View struct {
		Name      string   `yaml:"name"`
		Entity    string   `yaml:"entity"`
		Comment   string   `yaml:"comment,omitempty"`
		Creatable bool     `yaml:"creatable,omitempty"`
		Updatable bool     `yaml:"updatable,omitempty"`
		Mode      string   `yaml:"mode,omitempty"`
		Strategy  string   `yaml:"strategy,omitempty"`
		Lock      string   `yaml:"lock,omitempty"`
		BatchSize int      `yaml:"batch_size,omitempty"`
		Fields    []*Field `yaml:"fields"`
	}

	// Field declares a field of a view struct.
	Field struct {
		// Name is the Go field name.
		Name string `yaml:"name"`
		// Type is the Go type of the field, e.g. "*time.Time", "[]int64" or
		// "[]*RevisionView" for a collection of subviews.
		Type string `yaml:"type"`
		// Mapping is the attribute path or expression. It defaults to the
		// lower camel case field name.
		Mapping    string   `yaml:"mapping,omitempty"`
		Attribute  string   `yaml:"attribute,omitempty"`
		Updatable  bool     `yaml:"updatable,omitempty"`
		Orphan     bool     `yaml:"orphan,omitempty"`
		Cascade    []string `yaml:"cascade,omitempty"`
		Fetch      string   `yaml:"fetch,omitempty"`
		Correlated string   `yaml:"correlated,omitempty"`
	}
)

// Load reads the model file at path. When path is a directory, all .yaml
// and .yml files in it are merged in name order.
func Load(path string) (*Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		files, err = Files(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("load: no model files in %s", path)
		}
	}
	m := &Model{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		part, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("load: %s: %w", f, err)
		}
		if err := m.merge(part); err != nil {
			return nil, fmt.Errorf("load: %s: %w", f, err)
		}
		m.Files = append(m.Files, f)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Files returns the model files of dir.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// Parse decodes and validates a model.
func Parse(data []byte) (*Model, error) {
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	m := &Model{}
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return m, nil
}

func (m *Model) merge(o *Model) error {
	switch {
	case m.Package == "":
		m.Package = o.Package
	case o.Package != "" && o.Package != m.Package:
		return fmt.Errorf("package %q differs from %q", o.Package, m.Package)
	}
	m.Entities = append(m.Entities, o.Entities...)
	m.Views = append(m.Views, o.Views...)
	return nil
}

// Error describes an invalid declaration of a model.
type Error struct {
	// Subject names the declaration, e.g. "DocumentView.Owner".
	Subject string
	Message string
}

func (e *Error) Error() string {
	return "load: " + e.Subject + ": " + e.Message
}

func errorf(subject, format string, args ...any) error {
	return &Error{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the declarations of the model and builds its metamodel.
// View fields are checked against their Go types; attribute paths are
// resolved when the views are registered with a manager.
func (m *Model) Validate() error {
	if m.Package == "" {
		m.Package = "model"
	}
	if !token.IsIdentifier(m.Package) {
		return errorf("package", "invalid package name %q", m.Package)
	}
	if _, err := m.Metamodel(); err != nil {
		return err
	}
	views := make(map[string]*View, len(m.Views))
	for _, v := range m.Views {
		if !token.IsIdentifier(v.Name) || !token.IsExported(v.Name) {
			return errorf("views", "invalid view name %q", v.Name)
		}
		if _, ok := views[v.Name]; ok {
			return errorf(v.Name, "duplicate view")
		}
		views[v.Name] = v
	}
	for _, v := range m.Views {
		if err := m.validateView(v, views); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) validateView(v *View, views map[string]*View) error {
	if m.entity(v.Entity) == nil {
		return errorf(v.Name, "unknown entity %q", v.Entity)
	}
	if _, err := v.options(); err != nil {
		return err
	}
	if v.BatchSize < 0 {
		return errorf(v.Name, "batch size must not be negative")
	}
	names := make(map[string]bool, len(v.Fields))
	for _, f := range v.Fields {
		subject := v.Name + "." + f.Name
		if !token.IsIdentifier(f.Name) || !token.IsExported(f.Name) || f.Name == "State" {
			return errorf(subject, "invalid field name")
		}
		if names[f.Name] {
			return errorf(subject, "duplicate field")
		}
		names[f.Name] = true
		t, err := ParseType(f.Type)
		if err != nil {
			return errorf(subject, "%v", err)
		}
		if t.View != "" && views[t.View] == nil {
			return errorf(subject, "unknown view %q", t.View)
		}
		if _, err := f.Tag(); err != nil {
			return errorf(subject, "%v", err)
		}
	}
	return nil
}

func (m *Model) entity(name string) *Entity {
	for _, e := range m.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// View returns the named view.
func (m *Model) View(name string) (*View, bool) {
	for _, v := range m.Views {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Metamodel builds the metamodel of the entities.
func (m *Model) Metamodel() (*metamodel.Metamodel, error) {
	builders := make([]*metamodel.EntityBuilder, 0, len(m.Entities))
	for _, e := range m.Entities {
		if !token.IsIdentifier(e.Name) {
			return nil, errorf("entities", "invalid entity name %q", e.Name)
		}
		b := metamodel.Entity(e.Name)
		if e.Table != "" {
			b.Table(e.Table)
		}
		for _, a := range e.Attributes {
			ab, err := a.builder()
			if err != nil {
				return nil, errorf(e.Name+"."+a.Name, "%v", err)
			}
			b.Attributes(ab)
		}
		builders = append(builders, b)
	}
	mm, err := metamodel.New(builders...)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return mm, nil
}

// AttrType returns the attribute type with the default applied.
func (a *Attribute) AttrType() string {
	if a.Type == "" {
		return Basic
	}
	return a.Type
}

// KindOf returns the logical type of a basic attribute.
func (a *Attribute) KindOf() (dbms.Type, error) {
	switch {
	case a.Kind != "":
		return dbms.ParseType(a.Kind)
	case a.ID, a.Version:
		return dbms.TypeInt64, nil
	}
	return dbms.TypeString, nil
}

func (a *Attribute) builder() (*metamodel.AttributeBuilder, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("missing attribute name")
	}
	var b *metamodel.AttributeBuilder
	switch a.AttrType() {
	case Basic:
		k, err := a.KindOf()
		if err != nil {
			return nil, err
		}
		switch {
		case a.ID && a.Version:
			return nil, fmt.Errorf("attribute cannot be both id and version")
		case a.ID:
			b = metamodel.ID(a.Name).Kind(k)
		case a.Version:
			b = metamodel.Version(a.Name).Kind(k)
		default:
			b = metamodel.Field(a.Name, k)
		}
		if a.Optional {
			b.Optional()
		}
	case ManyToOne:
		if a.Target == "" {
			return nil, fmt.Errorf("many-to-one association requires a target")
		}
		b = metamodel.ManyToOne(a.Name, a.Target)
		if a.Required {
			b.Required()
		}
	case OneToMany:
		if a.Target == "" || a.MappedBy == "" {
			return nil, fmt.Errorf("one-to-many association requires a target and mapped_by")
		}
		b = metamodel.OneToMany(a.Name, a.Target, a.MappedBy)
	case ManyToMany:
		if a.Target == "" {
			return nil, fmt.Errorf("many-to-many association requires a target")
		}
		b = metamodel.ManyToMany(a.Name, a.Target)
		if jt := a.JoinTable; jt != nil {
			b.JoinTable(jt.Name, jt.JoinColumn, jt.InverseColumn)
		}
	default:
		return nil, fmt.Errorf("unknown attribute type %q", a.Type)
	}
	if a.Column != "" {
		b.Column(a.Column)
	}
	return b, nil
}

// Options holds the parsed type options of a view.
type Options struct {
	Mode     string
	Strategy string
	Lock     string
}

func (v *View) options() (*Options, error) {
	o := &Options{
		Mode:     strings.ToLower(v.Mode),
		Strategy: strings.ToLower(v.Strategy),
		Lock:     strings.ToLower(v.Lock),
	}
	switch o.Mode {
	case "", "lazy", "partial", "full":
	default:
		return nil, errorf(v.Name, "unknown flush mode %q", v.Mode)
	}
	switch o.Strategy {
	case "", "query", "entity":
	default:
		return nil, errorf(v.Name, "unknown flush strategy %q", v.Strategy)
	}
	switch o.Lock {
	case "", "auto", "optimistic", "none":
	default:
		return nil, errorf(v.Name, "unknown lock mode %q", v.Lock)
	}
	return o, nil
}

// Options returns the normalized type options of the view.
func (v *View) Options() *Options {
	o, err := v.options()
	if err != nil {
		return &Options{}
	}
	return o
}

var cascades = []string{"persist", "update", "delete"}

// Tag returns the view struct tag value of the field, or an empty string
// when the defaults apply.
func (f *Field) Tag() (string, error) {
	var opts []string
	if f.Updatable {
		opts = append(opts, "updatable")
	}
	if f.Orphan {
		opts = append(opts, "orphan")
	}
	if len(f.Cascade) > 0 {
		for _, c := range f.Cascade {
			if !slices.Contains(cascades, c) {
				return "", fmt.Errorf("unknown cascade %q", c)
			}
		}
		opts = append(opts, "cascade="+strings.Join(f.Cascade, "+"))
	}
	switch f.Fetch {
	case "":
	case "join", "select", "subselect", "multiset":
		opts = append(opts, "fetch="+f.Fetch)
	default:
		return "", fmt.Errorf("unknown fetch strategy %q", f.Fetch)
	}
	if f.Correlated != "" {
		if !strings.Contains(f.Correlated, ".") {
			return "", fmt.Errorf("correlated %q must be Entity.path", f.Correlated)
		}
		opts = append(opts, "correlated="+f.Correlated)
	}
	if f.Attribute != "" {
		opts = append(opts, "name="+f.Attribute)
	}
	if f.Mapping == "" && len(opts) == 0 {
		return "", nil
	}
	return strings.Join(append([]string{f.Mapping}, opts...), ","), nil
}
