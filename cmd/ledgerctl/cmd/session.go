package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/db"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

var (
	loginToken    string
	loginUserID   string
	loginClientID string
	loginName     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a bearer token for the bookkeeping API",
	Long: `Store a bearer token in the local session.

The token is verified by listing the companies it can access. A token the
API rejects is not kept.

Example:
  ledgerctl login --token dev-token --user-id u1 --client-id cl1`,
	Args: cobra.NoArgs,
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd.Context())
		defer a.Close()

		exitOnError(a.session.Clear(cmd.Context()), "failed to clear session")
		fmt.Println("Logged out")
	},
}

var companyCmd = &cobra.Command{
	Use:   "company [id]",
	Short: "Show or select the company",
	Long: `Without an argument, list the companies of the session and mark the
selected one. With an id, select that company. "null" selects all companies.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runCompany,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "bearer token (required)")
	loginCmd.Flags().StringVar(&loginUserID, "user-id", "", "user id, used for the real-time rooms")
	loginCmd.Flags().StringVar(&loginClientID, "client-id", "", "client id, used for the real-time rooms")
	loginCmd.Flags().StringVar(&loginName, "name", "", "display name")

	loginCmd.MarkFlagRequired("token")
}

func runLogin(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	exitOnError(a.session.SetToken(ctx, loginToken), "failed to store token")

	companies, err := a.client.ListMyCompanies(ctx)
	if err != nil {
		if clearErr := a.session.Clear(ctx); clearErr != nil {
			slog.Warn("failed to clear rejected token", "error", clearErr)
		}
		exitOnError(err, "failed to verify token")
	}

	if loginUserID != "" || loginClientID != "" || loginName != "" {
		user := &db.User{ID: loginUserID, Name: loginName, ClientID: loginClientID}
		exitOnError(a.session.SetUser(ctx, user), "failed to store user")
	}

	slog.Info("Logged in", "companies", len(companies))
	fmt.Printf("Logged in. %d companies available.\n", len(companies))
}

func runCompany(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := setup(ctx)
	defer a.Close()

	companies, err := a.companies.Wait(ctx)
	exitOnError(err, "failed to list companies")

	if len(args) == 1 {
		id := args[0]
		if id != counterparty.AllCompanies && !hasCompany(companies, id) {
			exitOnError(fmt.Errorf("unknown company %q", id), "failed to select company")
		}
		exitOnError(a.session.SetSelectedCompany(ctx, id), "failed to select company")
		fmt.Printf("Selected: %s\n", a.companyName(ctx, id))
		return
	}

	selected, err := a.session.SelectedCompany(ctx)
	exitOnError(err, "failed to read selected company")

	printMarker := func(on bool) string {
		if on {
			return "*"
		}
		return " "
	}
	fmt.Printf("%s %-24s %s\n", printMarker(selected == counterparty.AllCompanies), counterparty.AllCompanies, "All companies")
	for _, c := range companies {
		id := ledger.ID(c)
		fmt.Printf("%s %-24s %s\n", printMarker(id == selected), id, ledger.Text(c, "companyName", "name"))
	}
}

func hasCompany(companies []api.Record, id string) bool {
	for _, c := range companies {
		if ledger.ID(c) == id {
			return true
		}
	}
	return false
}
