package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type runOptions struct {
	rosterPath  string
	conferences []string
	confFile    string
	presets     []string
	year        int
	output      string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one crawl and export the spreadsheet",
		Long: `Crawls every configured conference for every roster member, then writes
the publication spreadsheet to the storage backend. Flags extend the
conferences and replace the roster found in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, root, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.rosterPath, "roster", "", "roster spreadsheet (.xlsx or .csv)")
	flags.StringArrayVar(&opts.conferences, "conference", nil, "conference search URL (repeatable)")
	flags.StringVar(&opts.confFile, "conferences-file", "", "file with one conference search URL per line")
	flags.StringArrayVar(&opts.presets, "preset", nil, "conference preset to add, e.g. icml (repeatable)")
	flags.IntVar(&opts.year, "year", 0, "year for --preset (default conferences.year)")
	flags.StringVarP(&opts.output, "output", "o", "", "also copy the spreadsheet to this local path")
	return cmd
}

func runCrawl(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.rosterPath != "" {
		cfg.Roster.Path = opts.rosterPath
	}
	if opts.confFile != "" {
		cfg.Conferences.File = opts.confFile
	}
	cfg.Conferences.URLs = append(cfg.Conferences.URLs, opts.conferences...)

	ctx := cmd.Context()
	app, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

	year := opts.year
	if year == 0 {
		year = cfg.Conferences.Year
	}
	for _, preset := range opts.presets {
		if _, _, err := app.Conferences().QuickAdd(preset, year); err != nil {
			return fmt.Errorf("preset %s: %w", preset, err)
		}
	}

	p, err := app.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	out := cmd.OutOrStdout()
	if p.Notice != "" {
		_, _ = fmt.Fprintln(out, p.Notice)
	}
	for _, w := range p.Warnings {
		_, _ = fmt.Fprintln(out, "warning:", w)
	}
	if p.Artifact == nil {
		_, _ = fmt.Fprintf(out, "%d publications, no spreadsheet written\n", p.Records)
		return nil
	}
	_, _ = fmt.Fprintf(out, "%d publications written to %s (sha256 %s)\n", p.Records, p.Artifact.URI, p.Artifact.SHA256)

	if opts.output == "" {
		return nil
	}
	data, err := app.Artifacts().GetObject(ctx, p.Artifact.Path)
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.output, data, 0o600); err != nil {
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	_, _ = fmt.Fprintf(out, "copied to %s\n", opts.output)
	return nil
}
