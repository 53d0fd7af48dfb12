// Package testutil provides testing utilities for the ledger packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Row is one spreadsheet row.
type Row map[string]any

// MockSheet is an in-memory SheetDB-style API for tests.
//
//	GET    /?sheet=S                 list rows
//	POST   /?sheet=S                 {"data":[rows]} append
//	PATCH  /{column}/{value}?sheet=S {"data":{fields}} update matching rows
//	DELETE /{column}/{value}?sheet=S delete matching rows
type MockSheet struct {
	server *httptest.Server

	mu       sync.Mutex
	sheets   map[string][]Row
	failures map[string]int
	headers  map[string]string
	requests map[string]int

	LastRequestHeader http.Header
}

// NewMockSheet creates and starts a mock spreadsheet server.
func NewMockSheet() *MockSheet {
	mock := &MockSheet{
		sheets:   make(map[string][]Row),
		failures: make(map[string]int),
		headers:  make(map[string]string),
		requests: make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server base URL.
func (m *MockSheet) URL() string {
	return m.server.URL
}

// SheetURL returns the endpoint URL of a sheet.
func (m *MockSheet) SheetURL(sheet string) string {
	return m.server.URL + "/?sheet=" + sheet
}

// Close shuts down the mock server.
func (m *MockSheet) Close() {
	m.server.Close()
}

// SetRows replaces the rows of a sheet.
func (m *MockSheet) SetRows(sheet string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = append([]Row(nil), rows...)
}

// Rows returns a copy of a sheet's rows.
func (m *MockSheet) Rows(sheet string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.sheets[sheet]...)
}

// FailWith makes every request with method to sheet answer status until
// cleared with status 0. Method "*" matches any method.
func (m *MockSheet) FailWith(method, sheet string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + sheet
	if status == 0 {
		delete(m.failures, key)
		return
	}
	m.failures[key] = status
}

// SetHeader adds a header to every response.
func (m *MockSheet) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// RequestCount returns how many requests with method hit sheet.
func (m *MockSheet) RequestCount(method, sheet string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[method+" "+sheet]
}

// Reset clears all request counters.
func (m *MockSheet) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.LastRequestHeader = nil
}

func (m *MockSheet) handle(w http.ResponseWriter, r *http.Request) {
	sheet := r.URL.Query().Get("sheet")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[r.Method+" "+sheet]++
	m.LastRequestHeader = r.Header.Clone()

	for key, value := range m.headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	status, failing := m.failures[r.Method+" "+sheet]
	if !failing {
		status, failing = m.failures["* "+sheet]
	}
	if failing {
		writeJSON(w, status, map[string]string{"error": fmt.Sprintf("injected failure %d", status)})
		return
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if r.Method == http.MethodPost || r.Method == http.MethodPatch {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}

	column, value := splitTarget(r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		rows := m.sheets[sheet]
		if rows == nil {
			rows = []Row{}
		}
		writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		var rows []Row
		if err := json.Unmarshal(payload.Data, &rows); err != nil {
			var row Row
			if err := json.Unmarshal(payload.Data, &row); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data must be a row or rows"})
				return
			}
			rows = []Row{row}
		}
		m.sheets[sheet] = append(m.sheets[sheet], rows...)
		writeJSON(w, http.StatusCreated, map[string]int{"created": len(rows)})

	case http.MethodPatch:
		var fields Row
		if err := json.Unmarshal(payload.Data, &fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data must be an object"})
			return
		}
		updated := 0
		for _, row := range m.sheets[sheet] {
			if fmt.Sprint(row[column]) == value {
				for k, v := range fields {
					row[k] = v
				}
				updated++
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": updated})

	case http.MethodDelete:
		kept := m.sheets[sheet][:0]
		deleted := 0
		for _, row := range m.sheets[sheet] {
			if fmt.Sprint(row[column]) == value {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		m.sheets[sheet] = kept
		writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// splitTarget extracts {column}/{value} from a row-targeted path.
func splitTarget(path string) (string, string) {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
