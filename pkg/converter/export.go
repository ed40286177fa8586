package converter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/beancount"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/db"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/pathutil"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/statement"
)

// History remembers which entries were already exported.
// *db.ExportHistory satisfies it.
type History interface {
	ExportedKeys(ctx context.Context, kind, counterpartyID string) (map[string]bool, error)
	RecordExports(ctx context.Context, records []db.ExportRecord) error
}

// Plan is the outcome of comparing a statement with the export history.
type Plan struct {
	// Pending are the entries not yet exported, oldest first.
	Pending []Item
	// Skipped counts entries exported by an earlier run.
	Skipped int
	// Undated are entries that carry no date and cannot be exported.
	Undated []ledger.Entry
}

// Result summarizes an export run.
type Result struct {
	Exported int
	Skipped  int
	Undated  int
	Files    []string
}

// Exporter appends new statement entries to monthly Beancount files.
type Exporter struct {
	converter *Converter
	repo      beancount.Repository
	history   History
	paths     *pathutil.PathResolver
	logger    *slog.Logger
}

// NewExporter creates a new Exporter.
func NewExporter(converter *Converter, repo beancount.Repository, history History, paths *pathutil.PathResolver, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		converter: converter,
		repo:      repo,
		history:   history,
		paths:     paths,
		logger:    logger,
	}
}

// Plan converts st and drops the entries already exported.
func (x *Exporter) Plan(ctx context.Context, st *statement.Statement) (*Plan, error) {
	cp := st.Counterparty
	exported, err := x.history.ExportedKeys(ctx, string(cp.Kind), cp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exported keys: %w", err)
	}

	items, undated := x.converter.Convert(st)
	plan := &Plan{Undated: undated}
	for _, item := range items {
		if exported[item.Key] {
			plan.Skipped++
			continue
		}
		plan.Pending = append(plan.Pending, item)
	}
	return plan, nil
}

// Export writes the pending entries of st, one append per month, and records
// each month in the history once its file was written.
func (x *Exporter) Export(ctx context.Context, st *statement.Statement) (*Result, error) {
	plan, err := x.Plan(ctx, st)
	if err != nil {
		return nil, err
	}

	result := &Result{Skipped: plan.Skipped, Undated: len(plan.Undated)}
	if len(plan.Undated) > 0 {
		x.logger.Warn("Skipping undated entries", "counterparty", st.Counterparty.ID, "count", len(plan.Undated))
	}

	byMonth := make(map[string][]Item)
	for _, item := range plan.Pending {
		byMonth[item.Month] = append(byMonth[item.Month], item)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	cp := st.Counterparty
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		items := byMonth[month]
		txns := make([]beancount.Transaction, len(items))
		for i, item := range items {
			txns[i] = item.Txn
		}

		comment := fmt.Sprintf("%s %s (%s)", cp.Kind, cp.Name, cp.ID)
		path, err := x.repo.AppendTransactions(month, txns, comment)
		if err != nil {
			return result, fmt.Errorf("failed to append %s: %w", month, err)
		}

		rel := x.paths.Rel(path)
		records := make([]db.ExportRecord, len(items))
		for i, item := range items {
			records[i] = db.ExportRecord{
				LedgerKind:     string(cp.Kind),
				CounterpartyID: cp.ID,
				EntryKey:       item.Key,
				EntryDate:      item.Txn.Date,
				Amount:         item.Entry.Amount,
				BeancountFile:  rel,
			}
		}
		if err := x.history.RecordExports(ctx, records); err != nil {
			return result, fmt.Errorf("failed to record exports for %s: %w", month, err)
		}

		result.Exported += len(items)
		result.Files = append(result.Files, path)
		x.logger.Info("Updated file", "path", path, "entries", len(items))
	}

	return result, nil
}
