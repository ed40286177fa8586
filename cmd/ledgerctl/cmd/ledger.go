package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/statement"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <vendor|expense|customer> <id>",
	Short: "Show the ledger of one counterparty",
	Long: `Show every entry of one counterparty with its running balance.

Purchases and sales not made on credit are followed by a settlement entry of
the same amount. For vendors without a date range the computed balance is
cross-checked against the balance the API reports.

Example:
  ledgerctl ledger vendor v1
  ledgerctl ledger customer p1 --from 2024-01-01`,
	Args: cobra.ExactArgs(2),
	Run:  runLedger,
}

var itemsCmd = &cobra.Command{
	Use:   "items <sale|purchase|receipt|payment> <id>",
	Short: "Show the line items of one document",
	Long: `Fetch one sale, purchase, receipt or payment and print its line items.

Example:
  ledgerctl items sale s1`,
	Args: cobra.ExactArgs(2),
	Run:  runItems,
}

func runLedger(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	kind, err := counterparty.ParseKind(args[0])
	exitOnError(err, "invalid ledger kind")

	f := a.filter(ctx)
	cp := a.findCounterparty(ctx, kind, args[1], f)

	st, err := a.service.Ledger(ctx, cp, f)
	exitOnError(err, "failed to load ledger")

	printStatement(st, a.service)

	if kind == counterparty.KindVendor && f.Window.IsZero() {
		if server, ok := a.service.ServerBalance(ctx, cp.ID, f); ok && statement.Mismatch(st.Balance.Balance, server) {
			fmt.Printf("Warning: API reports a balance of %s\n", server.StringFixed(2))
		}
	}
}

// findCounterparty resolves the display name of id. An id missing from the
// list is still shown, under its id.
func (a *app) findCounterparty(ctx context.Context, kind counterparty.Kind, id string, f counterparty.Filter) counterparty.Counterparty {
	list, err := a.service.Counterparties(ctx, kind, f)
	exitOnError(err, fmt.Sprintf("failed to list %s counterparties", kind))

	for _, cp := range list {
		if cp.ID == id {
			return cp
		}
	}
	return counterparty.Counterparty{ID: id, Name: id, Kind: kind}
}

func printStatement(st *statement.Statement, s *statement.Service) {
	fmt.Printf("\n=== %s ===\n", st.Title())

	if len(st.Entries) == 0 {
		fmt.Println("(no entries)")
	} else {
		fmt.Printf("%-10s %-9s %-14s %-16s %12s %12s %12s\n", "DATE", "SOURCE", "ID", "REF", "DEBIT", "CREDIT", "BALANCE")
		for i, e := range st.Entries {
			debit, credit := "", ""
			if e.Side == ledger.Debit {
				debit = e.Amount.StringFixed(2)
			} else {
				credit = e.Amount.StringFixed(2)
			}
			source := string(e.Source)
			if e.Synthetic {
				source += "*"
			}
			fmt.Printf("%-10s %-9s %-14s %-16s %12s %12s %12s\n",
				formatDate(e.Date, s.Location()),
				source,
				truncate(e.ID, 14),
				truncate(e.ReferenceNumber, 16),
				debit,
				credit,
				st.Running[i].StringFixed(2),
			)
		}
		fmt.Println("* settled at the time of the transaction")
	}

	b := st.Balance
	fmt.Printf("\nTotal debit:  %14s\n", b.TotalDebit.StringFixed(2))
	fmt.Printf("Total credit: %14s\n", b.TotalCredit.StringFixed(2))
	fmt.Printf("Balance:      %14s\n", b.Balance.StringFixed(2))
}

func runItems(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	entry := ledger.Entry{Source: ledger.Source(args[0]), ID: args[1]}
	items, err := a.service.LineItems(ctx, entry)
	exitOnError(err, "failed to load line items")

	fmt.Printf("\n=== %s %s ===\n", entry.Source, entry.ID)
	if len(items) == 0 {
		fmt.Println("(no line items)")
		return
	}

	fmt.Printf("%-8s %-28s %10s %12s %8s %12s\n", "TYPE", "NAME", "QTY", "PRICE", "TAX %", "AMOUNT")
	total := decimal.Zero
	for _, it := range items {
		fmt.Printf("%-8s %-28s %10s %12s %8s %12s\n",
			it.ItemType,
			truncate(it.Name, 28),
			it.Quantity.String(),
			it.UnitPrice.StringFixed(2),
			it.TaxRate.String(),
			it.Amount.StringFixed(2),
		)
		total = total.Add(it.Amount)
	}
	fmt.Printf("%-8s %-28s %10s %12s %8s %12s\n", "", "Total", "", "", "", total.StringFixed(2))
}
