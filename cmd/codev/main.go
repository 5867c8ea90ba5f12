// Package main is the entry point for the codev tool.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/codev/cmd/codev/commands"
	"go.trai.ch/codev/internal/app"
	_ "go.trai.ch/codev/internal/wiring"
)

// ComponentProvider is a function that returns the application components.
type ComponentProvider func(context.Context) (*app.Components, func(), error)

// levelSetter is implemented by loggers whose output can be tuned from flags.
type levelSetter interface {
	SetVerbose(verbose bool)
	SetJSON(enabled bool)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr, func(ctx context.Context) (*app.Components, func(), error) {
		c, _, err := graft.ExecuteFor[*app.Components](ctx)
		return c, func() {}, err
	}))
}

func run(
	ctx context.Context,
	args []string,
	stderr io.Writer,
	provider ComponentProvider,
	opts ...func(*app.App),
) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize application components
	components, cleanup, err := provider(ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}
	defer cleanup()

	for _, opt := range opts {
		opt(components.App)
	}

	// 2. Interface - CLI
	cli := commands.New(components.App, commands.WithConfigure(func(g commands.GlobalOptions) {
		components.App.WithConfigPath(g.Config).WithOffline(g.Offline)
		if l, ok := components.Logger.(levelSetter); ok {
			l.SetJSON(g.JSON)
			l.SetVerbose(g.Verbose)
		}
	}))
	cli.SetArgs(args)
	cli.SetOutput(os.Stdout, stderr)

	// 3. Execution
	err = cli.Execute(ctx)

	// Flush stage reports before the error is printed.
	if t, ok := components.Tracer.(shutdowner); ok {
		_ = t.Shutdown(context.WithoutCancel(ctx))
	}

	if err != nil {
		components.Logger.Error(err)
		return 1
	}
	return 0
}
