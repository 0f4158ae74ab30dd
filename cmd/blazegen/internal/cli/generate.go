package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syssam/blaze/compiler/gen"
	"github.com/syssam/blaze/compiler/load"
)

// GenerateOptions holds the flags of the generate command.
type GenerateOptions struct {
	Target  string
	Package string
	Header  string
	Watch   bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{}
	cmd := &cobra.Command{
		Use:   "generate <model>",
		Short: "Generate view structs and the metamodel of a model",
		Long: `Generate the Go code of a YAML model file, or of all model files
of a directory. The code is written to the target directory, which
defaults to the directory of the model.

With --watch, the code is regenerated whenever a model file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runGenerate(cmd, rootOpts, opts, args[0]); err != nil && !opts.Watch {
				return err
			}
			if !opts.Watch {
				return nil
			}
			return watch(cmd.Context(), rootOpts.Logger(), modelDir(args[0]), func() error {
				return runGenerate(cmd, rootOpts, opts, args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "output directory")
	cmd.Flags().StringVar(&opts.Package, "package", "", "import path of the output directory")
	cmd.Flags().StringVar(&opts.Header, "header", gen.DefaultHeader, "header comment of generated files")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "regenerate when model files change")
	return cmd
}

func runGenerate(cmd *cobra.Command, rootOpts *RootOptions, opts *GenerateOptions, path string) error {
	logger := rootOpts.Logger()
	m, err := load.Load(path)
	if err != nil {
		logger.Error("load model", "path", path, "error", err)
		return err
	}
	target := opts.Target
	if target == "" {
		target = modelDir(path)
	}
	gopts := []gen.Option{gen.WithTarget(target), gen.WithHeader(opts.Header)}
	if opts.Package != "" {
		gopts = append(gopts, gen.WithPackage(opts.Package))
	}
	cfg, err := gen.NewConfig(gopts...)
	if err != nil {
		return err
	}
	g := gen.NewGenerator(m, cfg)
	if err := g.Generate(cmd.Context()); err != nil {
		logger.Error("generate", "target", target, "error", err)
		return err
	}
	logger.Debug("generated", "target", target, "files", g.Files())
	fmt.Fprintf(cmd.OutOrStdout(), "generated %d file(s) for %d view(s) in %s\n", len(g.Files()), len(m.Views), target)
	return nil
}

// modelDir returns the directory holding the model files of path.
func modelDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
