// Package cmd defines the CLI commands of the pubscraper executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/hiparis-pubscraper/internal/conference"
	"github.com/JakeFAU/hiparis-pubscraper/internal/config"
	"github.com/JakeFAU/hiparis-pubscraper/internal/controller"
	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/roster"
	"github.com/JakeFAU/hiparis-pubscraper/internal/server"
)

// App is the slice of server.App the commands use. Tests swap in a fake
// through newApp.
type App interface {
	Run(ctx context.Context) error
	Crawl(ctx context.Context) (controller.Progress, error)
	Conferences() *conference.Registry
	Roster() *roster.Store
	Artifacts() crawler.BlobStore
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

type rootOptions struct {
	cfgFile string
	out     io.Writer
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	cmd := &cobra.Command{
		Use:   "pubscraper",
		Short: "Collects conference publications authored by Hi! PARIS members.",
		Long: `pubscraper searches conference proceedings sites for every member of a
roster, records each matching publication with its PDF link, and exports the
result as a spreadsheet.

"serve" exposes the crawl controller over HTTP; "run" performs one crawl from
the command line and exits.`,
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Execute runs the CLI until it finishes or receives SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
