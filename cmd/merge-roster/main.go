// Command merge-roster triggers a one-shot Roster Merger (C12) run:
// it attaches an externally-produced wallet roster database onto the
// live ledger database and upserts its wallets table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/chimera-labs/chimera-operator/internal/roster"
	"github.com/chimera-labs/chimera-operator/internal/storage"
	"github.com/chimera-labs/chimera-operator/internal/walletperf"
)

var (
	errColor  = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	okColor   = color.New(color.FgGreen)
)

func main() {
	rosterPath := flag.String("roster-path", "data/roster_new.db", "path to roster_new.db")
	dbPath := flag.String("db-path", "data/chimera.db", "path to the live ledger database")
	flag.Parse()

	fmt.Println("=== Chimera Roster Merge ===")
	fmt.Printf("Roster file: %s\n", *rosterPath)
	fmt.Printf("Database: %s\n", *dbPath)
	fmt.Println()

	if _, err := os.Stat(*rosterPath); err != nil {
		errColor.Fprintf(os.Stderr, "ERROR: roster file not found at %s\n", *rosterPath)
		os.Exit(1)
	}

	db, err := storage.Open(*dbPath)
	if err != nil {
		errColor.Fprintf(os.Stderr, "ERROR: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	perf := walletperf.New(db)
	if err := perf.EnsureSchema(); err != nil {
		errColor.Fprintf(os.Stderr, "ERROR: failed to init wallet performance table: %v\n", err)
		os.Exit(1)
	}

	merger := roster.New(db)
	merger.SetPerfTracker(perf)

	fmt.Println("Starting roster merge...")
	result, err := merger.Merge(context.Background(), *rosterPath)
	if err != nil {
		errColor.Fprintf(os.Stderr, "ERROR: roster merge failed: %v\n", err)
		os.Exit(1)
	}

	okColor.Println("Merge completed successfully!")
	fmt.Printf("  Wallets merged: %d\n", result.WalletsMerged)
	fmt.Printf("  Integrity check: %s\n", integrityLabel(result.IntegrityOK))
	if len(result.Warnings) > 0 {
		warnColor.Fprintln(os.Stderr, "  Warnings:")
		for _, w := range result.Warnings {
			warnColor.Fprintf(os.Stderr, "    - %s\n", w)
		}
	}
}

func integrityLabel(ok bool) string {
	if ok {
		return "PASSED"
	}
	return "FAILED"
}
