// Command deid de-identifies clinical notes and extracts clinical entities.
//
// It masks personal information (names, addresses, contacts, IDs, dates and
// organisations) with a pass of regular expressions followed by a named
// entity recognition pass, then matches the masked text against curated
// dictionaries of diseases, medications, symptoms, lab tests and procedures.
//
// Usage:
//
//	# Serve the HTTP API (and the management API on loopback)
//	./deid serve
//
//	# Mask one file, write the entity count table
//	./deid mask notes.txt --out masked.txt --csv entities.csv
//
//	# Use the spaCy sidecar instead of the built-in rules
//	ORACLE=sidecar SIDECAR_URL=http://ner:8001 ./deid serve
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deid",
		Short: "De-identify clinical notes and extract clinical entities",
		Long: `deid masks personal information in free-text clinical notes and extracts
diseases, medications, symptoms, lab tests and procedures from the masked text.

Configuration comes from deid-config.json, a .env file and environment
variables (PORT, ORACLE, MASK_STRATEGY, TERMS_FILE, ...).

Examples:
  deid serve                                   # HTTP API on :8090
  deid mask notes.txt                          # masked text to stdout
  deid mask notes.txt --out m.txt --csv e.csv  # write both artifacts
  deid mask notes.txt --color                  # highlighted view`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), maskCmd())
	return rootCmd
}
