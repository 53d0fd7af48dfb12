package ledger

import (
	"fmt"
	"net/url"
	"time"
)

// Default TTLs per resource.
const (
	MembersTTL      = 30 * time.Minute
	TransactionsTTL = 15 * time.Minute
	LoansTTL        = 15 * time.Minute
)

// Default column names.
const (
	DefaultNameField = "Name"
	DefaultIDField   = "ID"
)

// Resource binds one sheet to its endpoint and cache TTL.
type Resource struct {
	// Name identifies the resource in logs (members, transactions, loans).
	Name string

	// Endpoint is the sheet URL; it is also the cache resource ID.
	Endpoint string

	TTL time.Duration

	// NameField is the column holding the member name.
	NameField string

	// IDField is the row identifier column used for updates.
	IDField string
}

// Resources holds the three sheets the orchestrator serves.
type Resources struct {
	Members      Resource
	Transactions Resource
	Loans        Resource
}

// DefaultResources returns the standard sheet layout under baseURL.
func DefaultResources(baseURL string) Resources {
	return Resources{
		Members:      newResource("members", SheetURL(baseURL, "Members"), MembersTTL),
		Transactions: newResource("transactions", SheetURL(baseURL, "Transactions"), TransactionsTTL),
		Loans:        newResource("loans", SheetURL(baseURL, "Loans"), LoansTTL),
	}
}

func newResource(name, endpoint string, ttl time.Duration) Resource {
	return Resource{
		Name:      name,
		Endpoint:  endpoint,
		TTL:       ttl,
		NameField: DefaultNameField,
		IDField:   DefaultIDField,
	}
}

// SheetURL returns the endpoint of sheet under baseURL (?sheet=<sheet>).
// An unparsable baseURL is returned with the query appended verbatim.
func SheetURL(baseURL, sheet string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + "?sheet=" + url.QueryEscape(sheet)
	}
	q := u.Query()
	q.Set("sheet", sheet)
	u.RawQuery = q.Encode()
	return u.String()
}

// rowURL addresses the rows whose column equals value: <endpoint path>/<column>/<value>?<query>.
func rowURL(endpoint, column, value string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.JoinPath(url.PathEscape(column), url.PathEscape(value)).String(), nil
}

func (r Resource) nameField() string {
	if r.NameField == "" {
		return DefaultNameField
	}
	return r.NameField
}

func (r Resource) idField() string {
	if r.IDField == "" {
		return DefaultIDField
	}
	return r.IDField
}
