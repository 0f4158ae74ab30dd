package cli

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/syssam/blaze/compiler/load"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/dialect/sql/schema"
)

// Environment variables holding the default connection of validate.
const (
	EnvDriver = "BLAZE_DRIVER"
	EnvDSN    = "BLAZE_DSN"
)

// ErrSchemaMismatch is returned when the database does not match the model.
var ErrSchemaMismatch = errors.New("schema does not match the model")

// ValidateOptions holds the flags of the validate command.
type ValidateOptions struct {
	Driver            string
	DSN               string
	StrictTypes       bool
	IgnoreForeignKeys bool
	Create            bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}
	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a model and the database schema",
		Long: `Validate the declarations of a YAML model. With a database connection,
the tables of the model are compared with the database: missing tables and
columns and nullability mismatches are reported.

The connection defaults to the BLAZE_DRIVER and BLAZE_DSN variables, which
may be set in the environment file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Driver == "" {
				opts.Driver = os.Getenv(EnvDriver)
			}
			if opts.DSN == "" {
				opts.DSN = os.Getenv(EnvDSN)
			}
			return runValidate(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "database/sql driver name (postgres, pgx, mysql or sqlite)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name")
	cmd.Flags().BoolVar(&opts.StrictTypes, "strict-types", false, "report column type differences as errors")
	cmd.Flags().BoolVar(&opts.IgnoreForeignKeys, "ignore-foreign-keys", false, "skip foreign key differences")
	cmd.Flags().BoolVar(&opts.Create, "create", false, "create missing tables and columns before validating")
	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *ValidateOptions, path string) error {
	logger := rootOpts.Logger()
	out := cmd.OutOrStdout()
	m, err := load.Load(path)
	if err != nil {
		return err
	}
	mm, err := m.Metamodel()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "model %s: %d entities, %d views\n", m.Package, len(m.Entities), len(m.Views))
	if opts.Driver == "" {
		return nil
	}
	drv, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return err
	}
	defer drv.Close()
	if name := rootOpts.Properties().DBMS; name != "" {
		drv = sql.OpenDB(name, drv.DB())
	}
	ctx := cmd.Context()
	if opts.Create {
		if err := schema.Create(ctx, drv, mm, schema.WithLogger(logger)); err != nil {
			return err
		}
	}
	var vopts []schema.ValidateOption
	if opts.StrictTypes {
		vopts = append(vopts, schema.StrictTypes())
	}
	if opts.IgnoreForeignKeys {
		vopts = append(vopts, schema.IgnoreForeignKeys())
	}
	result, err := schema.Validate(ctx, drv, mm, vopts...)
	if err != nil {
		return err
	}
	logger.Debug("schema validated", "dialect", drv.Dialect(), "errors", len(result.Errors), "warnings", len(result.Warnings))
	fmt.Fprintln(out, result.String())
	if result.HasErrors() {
		return ErrSchemaMismatch
	}
	return nil
}
