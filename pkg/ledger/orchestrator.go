package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/koperasi-ledger/pkg/cache"
)

// Orchestrator serves members, transactions and loans through a response cache.
// It is safe for concurrent use.
type Orchestrator struct {
	cache     *cache.ResponseCache
	transport cache.Transport
	res       Resources
	logger    zerolog.Logger
}

// New creates an orchestrator. Writes go straight to transport; reads go
// through c, which should wrap the same transport.
func New(c *cache.ResponseCache, transport cache.Transport, res Resources, logger zerolog.Logger) *Orchestrator {
	if c == nil {
		panic("cache cannot be nil")
	}
	if transport == nil {
		panic("transport cannot be nil")
	}

	return &Orchestrator{
		cache:     c,
		transport: transport,
		res:       res,
		logger:    logger,
	}
}

// Resources returns the sheet bindings.
func (o *Orchestrator) Resources() Resources {
	return o.res
}

// Members returns the member rows, from cache while fresh.
func (o *Orchestrator) Members(ctx context.Context, forceRefresh bool) ([]Record, error) {
	return o.read(ctx, o.res.Members, forceRefresh)
}

// Transactions returns the transaction rows, from cache while fresh.
func (o *Orchestrator) Transactions(ctx context.Context, forceRefresh bool) ([]Record, error) {
	return o.read(ctx, o.res.Transactions, forceRefresh)
}

// Loans returns the loan rows, from cache while fresh.
func (o *Orchestrator) Loans(ctx context.Context, forceRefresh bool) ([]Record, error) {
	return o.read(ctx, o.res.Loans, forceRefresh)
}

func (o *Orchestrator) read(ctx context.Context, r Resource, forceRefresh bool) ([]Record, error) {
	data, err := o.cache.Fetch(ctx, r.Endpoint, cache.FetchOptions{
		TTL:          r.TTL,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Name, err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Name, err)
	}
	return records, nil
}

// cached decodes whatever is stored for r, expired or not. It never calls the API.
func (o *Orchestrator) cached(r Resource) []Record {
	entry, ok := o.cache.Get(cache.Key(r.Endpoint, nil))
	if !ok {
		return []Record{}
	}

	records, err := decodeRecords(entry.Data)
	if err != nil {
		o.logger.Warn().Err(err).Str("resource", r.Name).Msg("Cached payload is not a row list")
		return []Record{}
	}
	return records
}

// SearchMembers returns cached members whose name contains query, ignoring case.
// An empty query returns every cached member.
func (o *Orchestrator) SearchMembers(query string) []Record {
	return o.FilterMembers(o.cached(o.res.Members), query)
}

// SearchTransactions returns cached transactions of memberName.
// An empty name returns every cached transaction.
func (o *Orchestrator) SearchTransactions(memberName string) []Record {
	return o.FilterTransactions(o.cached(o.res.Transactions), memberName)
}

// LoanByMember returns the first cached loan of memberName.
func (o *Orchestrator) LoanByMember(memberName string) (Record, bool) {
	return o.FirstLoan(o.cached(o.res.Loans), memberName)
}

// LoansByMember returns every cached loan of memberName in cached order.
func (o *Orchestrator) LoansByMember(memberName string) []Record {
	return o.FilterLoans(o.cached(o.res.Loans), memberName)
}

// FilterMembers applies the SearchMembers match to members already in hand.
func (o *Orchestrator) FilterMembers(members []Record, query string) []Record {
	if query == "" {
		return members
	}

	needle := strings.ToLower(query)
	field := o.res.Members.nameField()

	matches := []Record{}
	for _, m := range members {
		if strings.Contains(strings.ToLower(m.Field(field)), needle) {
			matches = append(matches, m)
		}
	}
	return matches
}

// FilterTransactions applies the SearchTransactions match to txs already in hand.
func (o *Orchestrator) FilterTransactions(txs []Record, memberName string) []Record {
	if memberName == "" {
		return txs
	}
	return filterByName(txs, o.res.Transactions.nameField(), memberName)
}

// FilterLoans returns the loans of memberName, preserving order.
func (o *Orchestrator) FilterLoans(loans []Record, memberName string) []Record {
	return filterByName(loans, o.res.Loans.nameField(), memberName)
}

// FirstLoan returns the first loan of memberName.
func (o *Orchestrator) FirstLoan(loans []Record, memberName string) (Record, bool) {
	field := o.res.Loans.nameField()
	for _, l := range loans {
		if l.Field(field) == memberName {
			return l, true
		}
	}
	return nil, false
}

func filterByName(records []Record, field, value string) []Record {
	matches := []Record{}
	for _, r := range records {
		if r.Field(field) == value {
			matches = append(matches, r)
		}
	}
	return matches
}

// Preload reads all three resources concurrently and waits for them to settle.
// Failures are logged and otherwise ignored.
func (o *Orchestrator) Preload(ctx context.Context) {
	start := time.Now()

	reads := []struct {
		res  Resource
		read func(context.Context, bool) ([]Record, error)
	}{
		{o.res.Members, o.Members},
		{o.res.Transactions, o.Transactions},
		{o.res.Loans, o.Loans},
	}

	counts := make([]int, len(reads))
	var g errgroup.Group
	for i, r := range reads {
		g.Go(func() error {
			records, err := r.read(ctx, false)
			if err != nil {
				o.logger.Warn().Err(err).Str("resource", r.res.Name).Msg("Preload failed")
				counts[i] = -1
				return err
			}
			counts[i] = len(records)
			return nil
		})
	}

	err := g.Wait()

	event := o.logger.Info()
	if err != nil {
		event = o.logger.Warn()
	}
	event.
		Int("members", counts[0]).
		Int("transactions", counts[1]).
		Int("loans", counts[2]).
		Dur("duration", time.Since(start)).
		Msg("Preload complete")
}

// OnMembersUpdate registers fn for every successful members refresh.
func (o *Orchestrator) OnMembersUpdate(fn func([]Record)) (unsubscribe func()) {
	return o.subscribe(o.res.Members, fn)
}

// OnTransactionsUpdate registers fn for every successful transactions refresh.
func (o *Orchestrator) OnTransactionsUpdate(fn func([]Record)) (unsubscribe func()) {
	return o.subscribe(o.res.Transactions, fn)
}

// OnLoansUpdate registers fn for every successful loans refresh.
func (o *Orchestrator) OnLoansUpdate(fn func([]Record)) (unsubscribe func()) {
	return o.subscribe(o.res.Loans, fn)
}

func (o *Orchestrator) subscribe(r Resource, fn func([]Record)) func() {
	return o.cache.OnUpdate(cache.Key(r.Endpoint, nil), func(data []byte) {
		records, err := decodeRecords(data)
		if err != nil {
			o.logger.Warn().Err(err).Str("resource", r.Name).Msg("Skipping update notification")
			return
		}
		fn(records)
	})
}

// CacheStats reports every cache entry.
func (o *Orchestrator) CacheStats() []cache.EntryStat {
	return o.cache.Stats()
}

// ClearCache drops every cache entry. Subscriptions stay registered.
func (o *Orchestrator) ClearCache() {
	o.cache.Clear()
}
