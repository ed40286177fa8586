// Package cmd provides CLI commands for ledgerctl.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/db"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/preload"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/statement"
)

var (
	cfgFile   string
	debug     bool
	companyID string
	dateFrom  string
	dateTo    string
	page      int
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Receivables and payables from the bookkeeping API",
	Long: `ledgerctl shows vendor, expense and customer ledgers from the
bookkeeping API.

It supports:
- Paginated counterparty lists with balances
- Per-counterparty ledgers with running balances
- Live refresh on real-time events
- Exporting ledgers to Beancount files

Example:
  ledgerctl login --token <token>
  ledgerctl vendors --from 2024-01-01 --to 2024-03-31
  ledgerctl ledger vendor v1`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Commands run under a context cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&companyID, "company", "", "company id (default is the selected company, \"null\" for all)")
	rootCmd.PersistentFlags().StringVar(&dateFrom, "from", "", "start date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&dateTo, "to", "", "end date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().IntVar(&page, "page", 1, "page number")

	rootCmd.AddCommand(loginCmd, logoutCmd, companyCmd)
	rootCmd.AddCommand(newListCmd(counterparty.KindVendor), newListCmd(counterparty.KindExpense), newListCmd(counterparty.KindCustomer))
	rootCmd.AddCommand(ledgerCmd, itemsCmd, recordsCmd, clientsCmd, watchCmd)
	rootCmd.AddCommand(exportCmd, statsCmd)
}

// app holds what every command needs.
type app struct {
	cfg       *config.Config
	conn      *db.Connection
	session   *db.SessionStore
	client    *api.Client
	service   *statement.Service
	companies *preload.Warmer[[]api.Record]
}

// setup loads configuration, opens the local database and starts warming the
// company list.
func setup(ctx context.Context) *app {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	if err := cfg.Validate(
		[]string{"api", "url"},
		[]string{"db", "path"},
	); err != nil {
		exitOnError(err, "invalid configuration")
	}

	slog.Debug("Opening database", "path", cfg.DBPath)
	conn, err := db.Open(cfg.DBPath)
	exitOnError(err, "failed to open database")

	session := db.NewSessionStore(conn)
	client := api.NewClient(api.ClientConfig{
		APIURL:  cfg.API.URL,
		Tokens:  api.StoreTokenSource(session),
		Timeout: cfg.API.Timeout,
	})

	companies := preload.New[[]api.Record](client.ListMyCompanies)
	if token, _ := session.Token(); token != "" {
		companies.Start(ctx)
	}

	return &app{
		cfg:       cfg,
		conn:      conn,
		session:   session,
		client:    client,
		service:   statement.NewService(client, cfg.Ledger.Location, slog.Default()),
		companies: companies,
	}
}

func (a *app) Close() {
	if err := a.conn.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// filter builds the screen filter from flags and the stored company
// selection.
func (a *app) filter(ctx context.Context) counterparty.Filter {
	id := companyID
	if id == "" {
		stored, err := a.session.SelectedCompany(ctx)
		exitOnError(err, "failed to read selected company")
		id = stored
	}

	w, err := ledger.ParseWindow(dateFrom, dateTo, a.cfg.Ledger.Location)
	exitOnError(err, "invalid date range")

	return counterparty.Filter{CompanyID: id, Window: w}
}

// companyName resolves a company id through the warmed company list.
func (a *app) companyName(ctx context.Context, id string) string {
	if id == "" || id == counterparty.AllCompanies {
		return "All companies"
	}
	companies, err := a.companies.Wait(ctx)
	if err != nil {
		slog.Debug("company list unavailable", "error", err)
		return id
	}
	for _, c := range companies {
		if ledger.ID(c) == id {
			if name := ledger.Text(c, "companyName", "name"); name != "" {
				return name
			}
		}
	}
	return id
}

// Helper function to get config file path.
func getConfigFile() string {
	return cfgFile
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err == nil {
		return
	}
	slog.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	if api.IsAuthError(err) {
		fmt.Fprintln(os.Stderr, "Run `ledgerctl login --token <token>` to sign in.")
	}
	os.Exit(1)
}
