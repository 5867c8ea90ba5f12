// Package commands implements the CLI commands for codev.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
	"go.trai.ch/codev/internal/build"
	"go.trai.ch/codev/internal/core/domain"
)

// CLI represents the command line interface for codev.
type CLI struct {
	app       Application
	configure func(GlobalOptions)
	rootCmd   *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Build(ctx context.Context, names []string, opts app.BuildOptions) error
	Fetch(ctx context.Context, opts app.FetchOptions) ([]string, error)
	Clean(ctx context.Context) error
	ExtractServer(ctx context.Context, opts app.ServerOptions) error
	Libraries(ctx context.Context, jar string) ([]domain.ModuleCoordinate, error)
	Split(ctx context.Context, opts app.SplitOptions) error
	Intersect(ctx context.Context, opts app.IntersectOptions) error
	Remap(ctx context.Context, opts app.RemapOptions) error
	Widen(ctx context.Context, opts app.WidenOptions) error
	Mixins(ctx context.Context, opts app.MixinsOptions) error
	Decompile(ctx context.Context, opts app.DecompileOptions) error
	Includes(ctx context.Context, opts app.IncludesOptions) ([]string, error)
	ConvertMappings(ctx context.Context, inputs []string, out string) error
}

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	Config  string
	Verbose bool
	JSON    bool
	Offline bool
}

// Option configures a CLI.
type Option func(*CLI)

// WithConfigure registers fn to receive the global flags before a command runs.
func WithConfigure(fn func(GlobalOptions)) Option {
	return func(c *CLI) {
		c.configure = fn
	}
}

// New creates a new CLI instance with the given app.
func New(a Application, opts ...Option) *CLI {
	rootCmd := &cobra.Command{
		Use:           "codev",
		Short:         "Derive, remap and cache game jars for mod development",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to codev.yaml (default: search upwards)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log debug output")
	rootCmd.PersistentFlags().Bool("json", false, "Log as JSON")
	rootCmd.PersistentFlags().Bool("offline", false, "Forbid network access")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}
	for _, opt := range opts {
		opt(c)
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if c.configure == nil {
			return
		}
		flags := cmd.Flags()
		var g GlobalOptions
		g.Config, _ = flags.GetString("config")
		g.Verbose, _ = flags.GetBool("verbose")
		g.JSON, _ = flags.GetBool("json")
		g.Offline, _ = flags.GetBool("offline")
		c.configure(g)
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newFetchCmd())
	rootCmd.AddCommand(c.newServerCmd())
	rootCmd.AddCommand(c.newSplitCmd())
	rootCmd.AddCommand(c.newIntersectCmd())
	rootCmd.AddCommand(c.newRemapCmd())
	rootCmd.AddCommand(c.newWidenCmd())
	rootCmd.AddCommand(c.newIncludesCmd())
	rootCmd.AddCommand(c.newMixinsCmd())
	rootCmd.AddCommand(c.newDecompileCmd())
	rootCmd.AddCommand(c.newMappingsCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
