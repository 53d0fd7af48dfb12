package cache

import (
	"net/url"
	"sort"
	"strings"
)

// resourceEscaper keeps the ':' separator out of the resource part so that
// no resource ID can collide with a filtered key.
var resourceEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key generates the deterministic cache key for a resource and its filters.
// Filters are sorted by name, so logically identical requests map to the same
// key regardless of map iteration order.
// Format: resource:name1=val1:name2=val2
//
// Example:
//
//	https%3A//sheetdb.io/api/v1/abc?sheet=Loans:member=Bob:status=open
func Key(resourceID string, filters map[string]string) string {
	resourceID = resourceEscaper.Replace(resourceID)
	if len(filters) == 0 {
		return resourceID
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	parts = append(parts, resourceID)
	for _, name := range names {
		parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(filters[name]))
	}

	return strings.Join(parts, ":")
}
