// Package ledger binds the members, transactions and loans sheets of the
// spreadsheet API to a response cache.
//
// Reads go through the cache with a per-resource TTL. Local filters work on
// whatever payload is currently cached and never call the API. Writes call the
// API directly and only invalidate the affected cache keys once the API has
// accepted them, so a failed write leaves the last known good view in place.
//
// # Basic Usage
//
//	rc := cache.New(sheetClient, cache.DefaultConfig())
//	orch := ledger.New(rc, sheetClient, ledger.DefaultResources(apiURL), logger)
//
//	orch.Preload(ctx)
//
//	members, err := orch.Members(ctx, false)
//	matches := orch.SearchMembers("ali")
//
//	_, err = orch.AddLoan(ctx, ledger.Record{"Name": "Bob", "LoanAmount": "10000"})
package ledger
