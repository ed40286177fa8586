package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

var listCommands = map[counterparty.Kind]struct {
	use   string
	short string
}{
	counterparty.KindVendor:   {"vendors", "List vendors with their payable balances"},
	counterparty.KindExpense:  {"expenses", "List expense categories with their payable balances"},
	counterparty.KindCustomer: {"customers", "List customers with their receivable balances"},
}

func newListCmd(kind counterparty.Kind) *cobra.Command {
	var compact, totals bool

	meta := listCommands[kind]
	cmd := &cobra.Command{
		Use:   meta.use,
		Short: meta.short,
		Long: meta.short + `.

Rows are ordered by most recent transaction. Only the balances of the
requested page are loaded.

Example:
  ledgerctl ` + meta.use + ` --page 2
  ledgerctl ` + meta.use + ` --from 2024-01-01 --to 2024-03-31 --totals`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			a := setup(ctx)
			defer a.Close()

			pageSize := a.cfg.Ledger.PageSize
			if compact {
				pageSize = counterparty.CompactPageSize
			}

			list := a.newList(ctx, kind, pageSize)
			defer list.Close()

			exitOnError(printPage(ctx, a, list), "failed to load balances")
			if totals {
				printTotals(ctx, a, list)
			}
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, fmt.Sprintf("use the compact page size (%d rows)", counterparty.CompactPageSize))
	cmd.Flags().BoolVar(&totals, "totals", false, "also load the totals across every counterparty")
	return cmd
}

// newList loads the counterparties of kind and moves to the requested page.
func (a *app) newList(ctx context.Context, kind counterparty.Kind, pageSize int) *counterparty.List {
	list := counterparty.New(counterparty.Config{
		Kind:     kind,
		Filter:   a.filter(ctx),
		PageSize: pageSize,
		Lister:   a.service,
		Fetcher:  a.service,
		Logger:   slog.Default(),
	})

	if err := list.Load(ctx); err != nil {
		list.Close()
		exitOnError(err, fmt.Sprintf("failed to load %s list", kind))
	}
	list.SetPage(page)
	return list
}

// printPage loads the balances of the current page and prints it.
func printPage(ctx context.Context, a *app, list *counterparty.List) error {
	if err := list.LoadPage(ctx); err != nil {
		return err
	}

	f := list.Filter()
	fmt.Printf("\n=== %s: %s ===\n", strings.ToUpper(string(list.Kind())[:1])+string(list.Kind())[1:], a.companyName(ctx, f.CompanyID))
	if !f.Window.IsZero() {
		fmt.Printf("Period: %s .. %s\n", orDash(f.Window.FromDate()), orDash(f.Window.ToDate()))
	}

	rows := list.Page()
	if len(rows) == 0 {
		fmt.Println("(no entries)")
		return nil
	}

	fmt.Printf("%-12s %-28s %14s %14s %14s  %s\n", "ID", "NAME", "DEBIT", "CREDIT", "BALANCE", "LAST")
	for _, row := range rows {
		if !row.HasBalance {
			fmt.Printf("%-12s %-28s %14s %14s %14s  %s\n", row.ID, truncate(row.Name, 28), "-", "-", "(failed)", "")
			continue
		}
		b := row.Balance
		fmt.Printf("%-12s %-28s %14s %14s %14s  %s\n",
			row.ID,
			truncate(row.Name, 28),
			b.TotalDebit.StringFixed(2),
			b.TotalCredit.StringFixed(2),
			b.Balance.StringFixed(2),
			formatDate(b.LastTransactionDate, a.service.Location()),
		)
	}
	fmt.Printf("Page %d of %d (%d total)\n", list.PageIndex(), list.PageCount(), list.Len())
	return nil
}

// printTotals loads the balance of every counterparty in the list.
func printTotals(ctx context.Context, a *app, list *counterparty.List) {
	rows := list.Rows()
	cps := make([]counterparty.Counterparty, len(rows))
	for i, row := range rows {
		cps[i] = row.Counterparty
	}

	t, err := a.service.Totals(ctx, cps, list.Filter())
	exitOnError(err, "failed to load totals")

	outstanding, advance := "Payable", "Advance paid"
	if list.Kind() == counterparty.KindCustomer {
		outstanding, advance = "Receivable", "Advance received"
	}

	fmt.Println("\n=== Totals ===")
	fmt.Printf("%-18s %14s\n", outstanding+":", t.Outstanding.StringFixed(2))
	fmt.Printf("%-18s %14s\n", advance+":", t.Advance.StringFixed(2))
	fmt.Printf("%-18s %14s\n", "Net:", t.Net.StringFixed(2))
	if t.Failed > 0 {
		fmt.Printf("(%d of %d balances failed to load)\n", t.Failed, t.Counted+t.Failed)
	}
}

func formatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format(ledger.DateLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
