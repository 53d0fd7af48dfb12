package ledger

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/koperasi-ledger/pkg/cache"
)

// AddMember appends a member row and invalidates the members cache.
func (o *Orchestrator) AddMember(ctx context.Context, member Record) (map[string]any, error) {
	return o.add(ctx, o.res.Members, member)
}

// AddTransaction appends a transaction row and invalidates the transactions cache.
func (o *Orchestrator) AddTransaction(ctx context.Context, tx Record) (map[string]any, error) {
	return o.add(ctx, o.res.Transactions, tx)
}

// AddLoan appends a loan row and invalidates the loans cache.
func (o *Orchestrator) AddLoan(ctx context.Context, loan Record) (map[string]any, error) {
	return o.add(ctx, o.res.Loans, loan)
}

func (o *Orchestrator) add(ctx context.Context, r Resource, record Record) (map[string]any, error) {
	if len(record) == 0 {
		return nil, fmt.Errorf("add %s: %w", r.Name, validationError("record is empty"))
	}

	return o.write(ctx, writeOp{
		action: "add",
		req: cache.Request{
			Method: http.MethodPost,
			URL:    r.Endpoint,
			Body:   map[string]any{"data": []Record{record}},
		},
		invalidate: []Resource{r},
	})
}

// UpdateLoan patches the loan rows whose ID column equals id and invalidates
// the loans cache.
func (o *Orchestrator) UpdateLoan(ctx context.Context, id string, fields Record) (map[string]any, error) {
	r := o.res.Loans
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("update loan: %w", validationError("id is required"))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("update loan %s: %w", id, validationError("no fields to update"))
	}

	target, err := rowURL(r.Endpoint, r.idField(), id)
	if err != nil {
		return nil, fmt.Errorf("update loan %s: %w", id, err)
	}

	return o.write(ctx, writeOp{
		action: "update",
		req: cache.Request{
			Method: http.MethodPatch,
			URL:    target,
			Body:   map[string]any{"data": fields},
		},
		invalidate: []Resource{r},
	})
}

// DeleteMember deletes the member rows named name. Both the members and the
// transactions caches are invalidated, since the member's transactions go with it.
func (o *Orchestrator) DeleteMember(ctx context.Context, name string) (map[string]any, error) {
	r := o.res.Members
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("delete member: %w", validationError("name is required"))
	}

	target, err := rowURL(r.Endpoint, r.nameField(), name)
	if err != nil {
		return nil, fmt.Errorf("delete member %q: %w", name, err)
	}

	return o.write(ctx, writeOp{
		action:     "delete",
		req:        cache.Request{Method: http.MethodDelete, URL: target},
		invalidate: []Resource{r, o.res.Transactions},
	})
}

// UpdateMember merges partial over the freshest row of the member named name
// and writes the merged row back by its ID.
func (o *Orchestrator) UpdateMember(ctx context.Context, name string, partial Record) (map[string]any, error) {
	r := o.res.Members
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("update member: %w", validationError("name is required"))
	}
	if len(partial) == 0 {
		return nil, fmt.Errorf("update member %q: %w", name, validationError("no fields to update"))
	}

	members, err := o.Members(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("update member %q: %w", name, err)
	}

	var existing Record
	for _, m := range members {
		if m.Field(r.nameField()) == name {
			existing = m
			break
		}
	}
	if existing == nil {
		return nil, fmt.Errorf("update member %q: %w", name, ErrMemberNotFound)
	}

	id := existing.Field(r.idField())
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("update member %q: %w", name, ErrMissingID)
	}

	merged := existing.clone()
	for k, v := range partial {
		merged[k] = v
	}

	target, err := rowURL(r.Endpoint, r.idField(), id)
	if err != nil {
		return nil, fmt.Errorf("update member %q: %w", name, err)
	}

	return o.write(ctx, writeOp{
		action: "update",
		req: cache.Request{
			Method: http.MethodPatch,
			URL:    target,
			Body:   map[string]any{"data": merged},
		},
		invalidate: []Resource{r},
	})
}

type writeOp struct {
	action     string
	req        cache.Request
	invalidate []Resource
}

// write sends op and invalidates its resources only when the API accepted it.
func (o *Orchestrator) write(ctx context.Context, op writeOp) (map[string]any, error) {
	resource := op.invalidate[0].Name

	body, err := o.transport.Do(ctx, op.req)
	if err != nil {
		o.logger.Error().
			Err(err).
			Str("resource", resource).
			Str("method", op.req.Method).
			Str("url", op.req.URL).
			Msg("Write failed")
		return nil, fmt.Errorf("%s %s: %w", op.action, resource, err)
	}

	for _, r := range op.invalidate {
		o.cache.Invalidate(r.Endpoint, nil)
	}

	o.logger.Info().
		Str("resource", resource).
		Str("method", op.req.Method).
		Msg("Write accepted")

	resp, err := decodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op.action, resource, err)
	}
	return resp, nil
}
