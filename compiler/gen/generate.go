package gen

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/blaze/compiler/load"
	"github.com/syssam/blaze/metamodel"
)

// Import paths of the packages referenced by generated code.
const (
	viewPkg      = "github.com/syssam/blaze/view"
	metamodelPkg = "github.com/syssam/blaze/metamodel"
	dbmsPkg      = "github.com/syssam/blaze/dialect/dbms"
	dialectPkg   = "github.com/syssam/blaze/dialect"
)

// Generator generates the code of a model with jennifer.
type Generator struct {
	model *load.Model
	cfg   *Config
	mm    *metamodel.Metamodel
}

// NewGenerator creates a generator of the model. The model must be valid.
func NewGenerator(m *load.Model, cfg *Config) *Generator {
	return &Generator{model: m, cfg: cfg}
}

// Generate writes the code of the model to the target directory.
func Generate(ctx context.Context, m *load.Model, cfg *Config) error {
	return NewGenerator(m, cfg).Generate(ctx)
}

// Generate renders and writes all files in parallel. It returns the first
// error; files already written are left in place.
func (g *Generator) Generate(ctx context.Context) error {
	if g.cfg.Target == "" {
		return NewConfigError("Target", nil, "target directory cannot be empty")
	}
	mm, err := g.model.Metamodel()
	if err != nil {
		return err
	}
	g.mm = mm
	if err := os.MkdirAll(g.cfg.Target, 0o755); err != nil {
		return NewGenerationError(g.cfg.Target, "create target directory", err)
	}
	errg, ctx := errgroup.WithContext(ctx)
	if g.cfg.Workers > 0 {
		errg.SetLimit(g.cfg.Workers)
	}
	for _, e := range g.model.Entities {
		dir := pkgName(e.Name)
		errg.Go(func() error {
			return g.writeFile(ctx, g.genEntity(e), dir, dir+".go")
		})
	}
	if len(g.model.Views) > 0 {
		errg.Go(func() error {
			return g.writeFile(ctx, g.genViews(), "", "views.go")
		})
	}
	errg.Go(func() error {
		return g.writeFile(ctx, g.genRegister(), "", "register.go")
	})
	return errg.Wait()
}

// Files returns the paths of the generated files relative to the target
// directory, sorted.
func (g *Generator) Files() []string {
	files := []string{"register.go"}
	if len(g.model.Views) > 0 {
		files = append(files, "views.go")
	}
	for _, e := range g.model.Entities {
		dir := pkgName(e.Name)
		files = append(files, filepath.Join(dir, dir+".go"))
	}
	sort.Strings(files)
	return files
}

// writeFile writes jennifer file directly to disk (no buffering).
func (g *Generator) writeFile(ctx context.Context, f *jen.File, subdir, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := g.cfg.Target
	if subdir != "" {
		dir = filepath.Join(g.cfg.Target, subdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewGenerationError(filepath.Join(subdir, filename), "create directory", err)
	}
	path := filepath.Join(dir, filename)
	out, err := os.Create(path)
	if err != nil {
		return NewGenerationError(filepath.Join(subdir, filename), "create file", err)
	}
	defer out.Close()

	// Jennifer renders with correct imports and formatting
	if err := f.Render(out); err != nil {
		return NewGenerationError(filepath.Join(subdir, filename), "render", err)
	}
	return nil
}

// newFile creates a new Jennifer file with the header comment.
func (g *Generator) newFile(pkg string) *jen.File {
	f := jen.NewFile(pkg)
	if g.cfg.Header != "" {
		f.HeaderComment(g.cfg.Header)
	}
	return f
}

// goType returns the Jennifer code for the Go type of a view field.
func goType(t *load.GoType) jen.Code {
	if t.Package == "" {
		return jen.Id(t.String())
	}
	s := &jen.Statement{}
	if t.Slice {
		s = s.Index()
	}
	if t.Pointer {
		s = s.Op("*")
	}
	return s.Qual(t.Package, t.Name)
}
