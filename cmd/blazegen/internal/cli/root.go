// Package cli implements the blazegen commands.
package cli

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/syssam/blaze/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	// Config is the path of the blaze configuration file.
	Config string
	// EnvFile is loaded into the environment before the configuration.
	EnvFile string

	props  *config.Properties
	logger *slog.Logger
}

// NewRootCommand creates the root command of blazegen.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "blazegen",
		Short: "Generate and validate blaze entity views",
		Long: `blazegen reads YAML models declaring entities and entity views,
generates the view structs and the static metamodel, and validates
database schemas against the metamodel.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "blaze configuration file (yaml, toml, json or properties)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file loaded when it exists")

	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if o.EnvFile != "" {
		// Variables already set in the environment take precedence.
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	props, err := config.Load(o.Config)
	if err != nil {
		return err
	}
	o.props = props
	return nil
}

// Logger returns the logger of the commands.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// Properties returns the loaded configuration, or the defaults when the
// command runs without the root command.
func (o *RootOptions) Properties() *config.Properties {
	if o.props == nil {
		return config.Default()
	}
	return o.props
}
