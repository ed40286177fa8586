package statement

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

const defaultTotalsConcurrency = 8

// Totals are the screen-level totals across a counterparty list.
type Totals struct {
	// Outstanding sums positive balances: amounts still owed.
	Outstanding decimal.Decimal
	// Advance sums the magnitude of negative balances: amounts paid ahead.
	Advance decimal.Decimal
	// Net is Outstanding - Advance.
	Net decimal.Decimal
	// Counted is the number of counterparties included. Failed ones are left
	// out and counted in Failed.
	Counted int
	Failed  int
}

// Totals loads the balance of every counterparty in list and sums them.
// Individual failures are logged and skipped. Cancelling ctx aborts the whole
// load and returns ctx.Err().
func (s *Service) Totals(ctx context.Context, list []counterparty.Counterparty, f counterparty.Filter) (Totals, error) {
	var (
		mu     sync.Mutex
		totals = Totals{
			Outstanding: decimal.Zero,
			Advance:     decimal.Zero,
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultTotalsConcurrency)
	for _, cp := range list {
		g.Go(func() error {
			b, err := s.FetchBalance(gctx, cp, f)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("failed to load balance for totals", "counterparty_id", cp.ID, "error", err)
				mu.Lock()
				totals.Failed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			totals.add(b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Totals{}, err
	}

	totals.Net = totals.Outstanding.Sub(totals.Advance)
	return totals, nil
}

func (t *Totals) add(b ledger.Balance) {
	t.Counted++
	switch b.Balance.Sign() {
	case 1:
		t.Outstanding = t.Outstanding.Add(b.Balance)
	case -1:
		t.Advance = t.Advance.Add(b.Balance.Neg())
	}
}
