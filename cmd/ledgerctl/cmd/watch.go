package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/realtime"
)

var watchKind string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a counterparty list current from real-time events",
	Long: `Print a counterparty list and print it again whenever the API
reports a change to sales, purchases, receipts, payments, journals or
permissions.

Events only trigger a reload; their payload is never applied directly.
Stop with Ctrl-C.

Example:
  ledgerctl watch --kind customer`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchKind, "kind", string(counterparty.KindVendor), "list to watch: vendor, expense or customer")
}

func runWatch(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	kind, err := counterparty.ParseKind(watchKind)
	exitOnError(err, "invalid kind")

	err = a.cfg.Validate([]string{"api", "socketUrl"})
	exitOnError(err, "invalid configuration")

	user, err := a.session.User(ctx)
	exitOnError(err, "failed to read user")
	var userID, clientID string
	if user != nil {
		userID, clientID = user.ID, user.ClientID
	}

	list := a.newList(ctx, kind, a.cfg.Ledger.PageSize)
	defer list.Close()
	exitOnError(printPage(ctx, a, list), "failed to load balances")

	client, err := realtime.Dial(ctx, realtime.Config{
		URL:    a.cfg.API.SocketURL,
		Tokens: api.StoreTokenSource(a.session),
		Logger: slog.Default(),
	})
	exitOnError(err, "failed to connect to the event channel")
	defer client.Close()

	rooms := realtime.Rooms(userID, clientID)
	exitOnError(client.Join(rooms...), "failed to join rooms")
	slog.Info("Watching for changes", "kind", kind, "rooms", rooms)

	d := realtime.NewDispatcher()
	inv := realtime.NewInvalidator(list, slog.Default())
	inv.OnRefresh = func(err error) {
		if err != nil || ctx.Err() != nil {
			return
		}
		list.SetPage(page)
		if err := printPage(ctx, a, list); err != nil && ctx.Err() == nil {
			slog.Warn("failed to reload balances", "error", err)
		}
	}
	inv.Bind(d)
	d.On(func(msg realtime.Message) {
		a.companies.Reset()
	}, realtime.EventCompanyUpdate, realtime.EventPermissionUpdate)
	d.On(func(msg realtime.Message) {
		fmt.Println("Permissions changed. Reloading.")
	}, realtime.EventPermissionUpdate)

	go inv.Run(ctx)

	if err := client.Run(ctx, d); err != nil {
		exitOnError(err, "event channel closed")
	}
	slog.Info("Stopped watching")
}
