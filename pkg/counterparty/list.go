package counterparty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

// Page sizes used by the list screens.
const (
	DefaultPageSize = 10
	CompactPageSize = 7

	defaultMaxConcurrent = 10
)

// ErrClosed is returned by operations on a closed list.
var ErrClosed = errors.New("list is closed")

// Config configures a List.
type Config struct {
	Kind     Kind
	Filter   Filter
	PageSize int // Default: DefaultPageSize

	Lister  Lister
	Fetcher BalanceFetcher
	// Cache is created when nil. Passing one in lets tests inspect it.
	Cache *Cache
	// MaxConcurrent bounds balance fetches started by LoadPage.
	MaxConcurrent int
	Logger        *slog.Logger
}

// Row is one counterparty as rendered in the list.
type Row struct {
	Counterparty
	State      State
	Balance    ledger.Balance
	HasBalance bool
}

// List is the view-model behind a counterparty list screen.
//
// Balances are loaded lazily per row. At most one fetch per counterparty is
// in flight, loaded rows are not fetched again until the filter changes or the
// list is refreshed, and results arriving after Close or after a filter change
// are discarded.
type List struct {
	mu       sync.RWMutex
	kind     Kind
	filter   Filter
	page     int
	pageSize int
	items    []Counterparty
	byID     map[string]Counterparty

	cache         *Cache
	lister        Lister
	fetcher       BalanceFetcher
	maxConcurrent int
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a List. It holds no counterparties until Load is called.
func New(cfg Config) *List {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &List{
		kind:          cfg.Kind,
		filter:        cfg.Filter,
		page:          1,
		pageSize:      pageSize,
		byID:          make(map[string]Counterparty),
		cache:         cache,
		lister:        cfg.Lister,
		fetcher:       cfg.Fetcher,
		maxConcurrent: maxConcurrent,
		logger:        logger.With("list", string(cfg.Kind)),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Kind returns the current view.
func (l *List) Kind() Kind {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.kind
}

// Filter returns the current filter state.
func (l *List) Filter() Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter
}

// Len returns the number of counterparties.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Load fetches the counterparty list. On failure the list is emptied and the
// error returned so the caller can tell a failed load from an empty one.
func (l *List) Load(ctx context.Context) error {
	ctx, cancel := l.bind(ctx)
	defer cancel()

	l.mu.RLock()
	kind, filter := l.kind, l.filter
	gen := l.cache.Generation()
	l.mu.RUnlock()

	items, err := l.lister.Counterparties(ctx, kind, filter)
	if l.ctx.Err() != nil {
		return ErrClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.cache.Generation() {
		// filter changed while loading; the newer load owns the list
		return nil
	}
	if err != nil {
		l.items = nil
		l.byID = make(map[string]Counterparty)
		return fmt.Errorf("failed to load %s list: %w", kind, err)
	}

	l.items = items
	l.byID = make(map[string]Counterparty, len(items))
	for _, cp := range items {
		l.byID[cp.ID] = cp
	}
	l.logger.Debug("list loaded", "count", len(items))
	return nil
}

// SetCompany changes the company filter. "null" or "" selects all companies.
func (l *List) SetCompany(companyID string) {
	l.reset(func() { l.filter.CompanyID = companyID })
}

// SetWindow changes the date range.
func (l *List) SetWindow(w ledger.Window) {
	l.reset(func() { l.filter.Window = w })
}

// SetKind toggles the view, e.g. between vendors and expenses.
func (l *List) SetKind(kind Kind) {
	l.reset(func() {
		l.kind = kind
		l.items = nil
		l.byID = make(map[string]Counterparty)
	})
}

// Refresh clears every cached balance, returns to the first page and reloads
// the list.
func (l *List) Refresh(ctx context.Context) error {
	l.reset(func() {})
	return l.Load(ctx)
}

// reset applies a filter mutation, invalidates the cache and returns to page 1.
// The cache is invalidated under the list lock so a fetch can never pair the
// new generation with the old filter.
func (l *List) reset(mutate func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mutate()
	l.page = 1
	l.cache.Invalidate()
}

// OnVisible starts a balance fetch for every id that is idle. Calls for ids
// already loading or loaded are ignored.
func (l *List) OnVisible(ids ...string) {
	if l.ctx.Err() != nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, id := range ids {
		cp, ok := l.byID[id]
		if !ok {
			continue
		}
		gen, ok := l.cache.MarkLoading(id)
		if !ok {
			continue
		}

		l.wg.Add(1)
		go func(cp Counterparty, f Filter) {
			defer l.wg.Done()
			l.fetch(l.ctx, cp, gen, f)
		}(cp, l.filter)
	}
}

// LoadPage loads the balances of every idle row on the current page, at most
// MaxConcurrent at a time, and waits for them. Individual failures leave the
// row idle and are only logged.
func (l *List) LoadPage(ctx context.Context) error {
	ctx, cancel := l.bind(ctx)
	defer cancel()

	type job struct {
		cp  Counterparty
		gen uint64
	}

	l.mu.RLock()
	filter := l.filter
	var jobs []job
	for _, row := range l.pageRowsLocked() {
		if gen, ok := l.cache.MarkLoading(row.ID); ok {
			jobs = append(jobs, job{cp: row.Counterparty, gen: gen})
		}
	}
	l.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(l.maxConcurrent)
	for _, j := range jobs {
		g.Go(func() error {
			l.fetch(ctx, j.cp, j.gen, filter)
			return nil
		})
	}
	_ = g.Wait()

	if l.ctx.Err() != nil {
		return ErrClosed
	}
	return ctx.Err()
}

func (l *List) fetch(ctx context.Context, cp Counterparty, gen uint64, f Filter) {
	b, err := l.fetcher.FetchBalance(ctx, cp, f)
	if l.ctx.Err() != nil {
		return
	}
	if err != nil {
		l.cache.MarkFailed(cp.ID, gen)
		l.logger.Warn("failed to load balance", "counterparty_id", cp.ID, "error", err)
		return
	}
	if !l.cache.MarkLoaded(cp.ID, gen, b) {
		l.logger.Debug("dropped stale balance", "counterparty_id", cp.ID)
	}
}

// Wait blocks until every fetch started by OnVisible has finished.
func (l *List) Wait() {
	l.wg.Wait()
}

// Close stops the list. Results of fetches still in flight are discarded.
func (l *List) Close() {
	l.cancel()
}

// Rows returns every counterparty, most recent transaction first.
// Counterparties without a known transaction sort last, in list order.
func (l *List) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedLocked()
}

// Page returns the rows of the current page.
func (l *List) Page() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pageRowsLocked()
}

// PageIndex returns the current 1-based page.
func (l *List) PageIndex() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.page
}

// PageCount returns the number of pages, at least 1.
func (l *List) PageCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pageCountLocked()
}

// SetPage moves to page n, clamped to the valid range.
func (l *List) SetPage(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch count := l.pageCountLocked(); {
	case n < 1:
		l.page = 1
	case n > count:
		l.page = count
	default:
		l.page = n
	}
}

func (l *List) pageCountLocked() int {
	if len(l.items) == 0 {
		return 1
	}
	return (len(l.items) + l.pageSize - 1) / l.pageSize
}

func (l *List) pageRowsLocked() []Row {
	rows := l.sortedLocked()
	start := (l.page - 1) * l.pageSize
	if start >= len(rows) {
		return nil
	}
	end := start + l.pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func (l *List) sortedLocked() []Row {
	rows := make([]Row, len(l.items))
	for i, cp := range l.items {
		b, ok := l.cache.Balance(cp.ID)
		rows[i] = Row{
			Counterparty: cp,
			State:        l.cache.State(cp.ID),
			Balance:      b,
			HasBalance:   ok,
		}
	}
	SortByLastTransaction(rows)
	return rows
}

// SortByLastTransaction orders rows most recent first. Rows with no known
// transaction date keep their relative order after all dated rows.
func SortByLastTransaction(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a := rows[i].Balance.LastTransactionDate
		b := rows[j].Balance.LastTransactionDate
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.After(b)
	})
}

// bind derives a context that is also cancelled when the list is closed.
func (l *List) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
