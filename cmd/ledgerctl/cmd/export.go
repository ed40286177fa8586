package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/beancount"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/converter"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/db"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/pathutil"
)

var (
	dryRun      bool
	resetExport bool
)

var exportCmd = &cobra.Command{
	Use:   "export <vendor|expense|customer> <id>",
	Short: "Export a counterparty ledger to Beancount",
	Long: `Export the ledger of one counterparty to monthly Beancount files.

This command:
1. Loads the ledger for the date range
2. Filters out entries already exported
3. Converts them to Beancount transactions
4. Appends them to monthly files under the export root
5. Records the export history in SQLite

Entries without a date are skipped.

Example:
  ledgerctl export vendor v1 --from 2024-01-01 --to 2024-01-31
  ledgerctl export customer p1 --dry-run`,
	Args: cobra.ExactArgs(2),
	Run:  runExport,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display export statistics",
	Args:  cobra.NoArgs,
	Run:   runStats,
}

func init() {
	exportCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print transactions instead of writing them")
	exportCmd.Flags().BoolVar(&resetExport, "reset", false, "forget earlier exports of this counterparty first")
}

func runExport(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	if err := a.cfg.Validate([]string{"export", "root"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	kind, err := counterparty.ParseKind(args[0])
	exitOnError(err, "invalid ledger kind")

	mapper, err := converter.NewMapper(a.cfg.Export.AccountMapping)
	exitOnError(err, "failed to load account mapping")

	paths := pathutil.New(pathutil.Config{ExportRoot: a.cfg.Export.Root})
	history := db.NewExportHistory(a.conn)
	exporter := converter.NewExporter(
		converter.NewConverter(mapper),
		beancount.NewFileSystemRepository(paths),
		history,
		paths,
		slog.Default(),
	)

	f := a.filter(ctx)
	cp := a.findCounterparty(ctx, kind, args[1], f)
	slog.Info("Starting export", "kind", kind, "counterparty", cp.ID, "from", f.Window.FromDate(), "to", f.Window.ToDate(), "dry_run", dryRun)

	st, err := a.service.Ledger(ctx, cp, f)
	exitOnError(err, "failed to load ledger")

	if resetExport && !dryRun {
		n, err := history.DeleteExports(ctx, string(kind), cp.ID)
		exitOnError(err, "failed to reset export history")
		slog.Info("Forgot earlier exports", "count", n)
	}

	if dryRun {
		plan, err := exporter.Plan(ctx, st)
		exitOnError(err, "failed to plan export")

		for _, item := range plan.Pending {
			path, _ := paths.MonthFilePath(item.Month)
			fmt.Printf("[DRY RUN] Would append to %s\n", path)
			fmt.Println(item.Txn.Format())
		}
		fmt.Printf("%d new, %d already exported, %d undated\n", len(plan.Pending), plan.Skipped, len(plan.Undated))
		return
	}

	result, err := exporter.Export(ctx, st)
	if result != nil {
		for _, path := range result.Files {
			fmt.Printf("Updated %s\n", path)
		}
	}
	exitOnError(err, "failed to export ledger")

	if result.Exported == 0 {
		fmt.Println("No new entries to export")
	}
	fmt.Printf("%d exported, %d already exported, %d undated\n", result.Exported, result.Skipped, result.Undated)
	slog.Info("Export completed", "exported", result.Exported, "files_written", len(result.Files))
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	stats, err := db.NewExportHistory(a.conn).Stats(ctx)
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Export Statistics ===")
	fmt.Printf("Total exported entries: %d\n", stats.TotalEntries)
	fmt.Printf("Counterparties:         %d\n", stats.TotalCounterparties)
	for _, kind := range []counterparty.Kind{counterparty.KindVendor, counterparty.KindExpense, counterparty.KindCustomer} {
		fmt.Printf("  %-20s  %d\n", string(kind)+":", stats.ByKind[string(kind)])
	}
	if stats.LastExport.Valid {
		fmt.Printf("Last export:            %s\n", stats.LastExport.String)
	} else {
		fmt.Printf("Last export:            (never)\n")
	}
	fmt.Println()
}
