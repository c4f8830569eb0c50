package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"clinical-deid/internal/config"
	"clinical-deid/internal/logger"
	"clinical-deid/internal/pipeline"
	"clinical-deid/internal/report"
)

type maskOptions struct {
	out      string
	csv      string
	color    bool
	strategy string
	verbose  bool
}

func maskCmd() *cobra.Command {
	var opts maskOptions
	cmd := &cobra.Command{
		Use:   "mask <notes.txt>",
		Short: "Mask one file and report the extracted entities",
		Long: `Mask one UTF-8 text file. The masked text goes to stdout (or --out), the
entity count table to --csv, and a PHI summary to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMask(cmd.Context(), args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write masked text to this file instead of stdout")
	cmd.Flags().StringVar(&opts.csv, "csv", "", "write the entity count table (Entity,Type,Count) to this file")
	cmd.Flags().BoolVar(&opts.color, "color", false, "print the masked text with highlighted entities")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "override MASK_STRATEGY (offset or surface)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline activity to stderr")
	return cmd
}

func runMask(ctx context.Context, path string, opts maskOptions, stdout, stderr io.Writer) error {
	cfg := config.Load()
	if opts.strategy != "" {
		cfg.MaskStrategy = opts.strategy
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log := logger.New("mask", level)
	defer log.Sync() //nolint:errcheck // stderr sync fails on some terminals

	raw, err := os.ReadFile(path) // #nosec G304 -- path given by the operator
	if err != nil {
		return err
	}

	p, err := pipeline.Build(ctx, cfg, log, nil, nil)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck // best-effort on exit
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("oracle %s: %w", p.OracleName(), err)
	}

	res, err := p.Process(ctx, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	switch {
	case opts.out != "":
		if err := os.WriteFile(opts.out, []byte(res.Masked), 0o600); err != nil {
			return err
		}
	case !opts.color:
		fmt.Fprintln(stdout, res.Masked)
	}
	if opts.color {
		r := lipgloss.NewRenderer(stdout)
		fmt.Fprintln(stdout, report.RenderTerminal(r, res.Masked, res.Entities))
		fmt.Fprintln(stdout, report.Legend(r))
	}

	if opts.csv != "" {
		if err := writeCSV(opts.csv, res.Counts); err != nil {
			return err
		}
	}

	printSummary(stderr, res)
	return nil
}

func writeCSV(path string, counts []report.EntityCount) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- path given by the operator
	if err != nil {
		return err
	}
	if err := report.WriteCountsCSV(f, counts); err != nil {
		f.Close() //nolint:errcheck // already failing
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, res *pipeline.Result) {
	phi := res.PHI
	fmt.Fprintf(w, "PHI placeholders: %d (names %d, addresses %d, contacts %d, ids %d, dates %d, orgs %d)\n",
		phi.Total, phi.Names, phi.Addresses, phi.Contacts, phi.IDs, phi.Dates, phi.Orgs)
	fmt.Fprintf(w, "Entities: %d\n", len(res.Entities))
	if len(res.Counts) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ENTITY\tTYPE\tCOUNT")
	for _, c := range res.Counts {
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", c.Entity, c.Type, c.Count)
	}
	tw.Flush() //nolint:errcheck // terminal output
}
