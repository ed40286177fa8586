package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

type recordLister func(c *api.Client, ctx context.Context, q api.Query) ([]api.Record, error)

var recordSources = map[string]recordLister{
	"sales":            (*api.Client).ListSales,
	"receipts":         (*api.Client).ListReceipts,
	"payment-expenses": (*api.Client).ListPaymentExpenses,
}

var recordsCmd = &cobra.Command{
	Use:   "records <sales|receipts|payment-expenses>",
	Short: "List raw transaction records",
	Long: `List the sales, receipts or expense payments of the selected company
inside the --from/--to range, oldest first, with their total.

Example:
  ledgerctl records payment-expenses --from 2024-01-01`,
	Args: cobra.ExactArgs(1),
	Run:  runRecords,
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List client businesses (master admin only)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := setup(ctx)
		defer a.Close()

		clients, err := a.client.ListClients(ctx)
		exitOnError(err, "failed to list clients")

		if len(clients) == 0 {
			fmt.Println("(no clients)")
			return
		}
		fmt.Printf("%-24s %s\n", "ID", "NAME")
		for _, c := range clients {
			fmt.Printf("%-24s %s\n", ledger.ID(c), ledger.Text(c, "name", "clientName", "companyName"))
		}
	},
}

// recordSource resolves the lister for a records argument.
func recordSource(name string) (recordLister, error) {
	list, ok := recordSources[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(recordSources))
		for n := range recordSources {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown record type %q, expected one of %s", name, strings.Join(names, ", "))
	}
	return list, nil
}

func runRecords(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	list, err := recordSource(args[0])
	exitOnError(err, "invalid record type")

	f := a.filter(ctx)
	records, err := list(a.client, ctx, api.Query{
		CompanyID: f.Company(),
		FromDate:  f.Window.FromDate(),
		ToDate:    f.Window.ToDate(),
	})
	exitOnError(err, "failed to list "+args[0])

	loc := a.service.Location()
	// not every endpoint honours the date range
	inWindow := make([]api.Record, 0, len(records))
	for _, rec := range records {
		if f.Window.Contains(ledger.Date(rec, loc)) {
			inWindow = append(inWindow, rec)
		}
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		di, dj := ledger.Date(inWindow[i], loc), ledger.Date(inWindow[j], loc)
		if di.IsZero() || dj.IsZero() {
			return !di.IsZero() && dj.IsZero()
		}
		return di.Before(dj)
	})

	fmt.Printf("\n=== %s: %s ===\n", args[0], a.companyName(ctx, f.CompanyID))
	if len(inWindow) == 0 {
		fmt.Println("(no entries)")
		return
	}

	total := decimal.Zero
	fmt.Printf("%-10s %-14s %-16s %-14s %-14s %12s\n", "DATE", "ID", "REF", "COUNTERPARTY", "METHOD", "AMOUNT")
	for _, rec := range inWindow {
		amount := ledger.Amount(rec)
		total = total.Add(amount)
		fmt.Printf("%-10s %-14s %-16s %-14s %-14s %12s\n",
			formatDate(ledger.Date(rec, loc), loc),
			truncate(ledger.ID(rec), 14),
			truncate(ledger.Text(rec, "invoiceNumber", "referenceNumber", "receiptNumber"), 16),
			truncate(ledger.Text(rec, "partyId", "vendorId", "expenseId"), 14),
			truncate(ledger.Text(rec, "paymentMethod"), 14),
			amount.StringFixed(2),
		)
	}
	fmt.Printf("%d records, total %s\n", len(inWindow), total.StringFixed(2))
}
