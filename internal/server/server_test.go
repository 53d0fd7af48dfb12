package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/koperasi-ledger/internal/testutil"
	"github.com/Sternrassler/koperasi-ledger/pkg/cache"
	"github.com/Sternrassler/koperasi-ledger/pkg/client"
	"github.com/Sternrassler/koperasi-ledger/pkg/ledger"
)

type testEnv struct {
	sheet  *testutil.MockSheet
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sheet := testutil.NewMockSheet()
	t.Cleanup(sheet.Close)

	sheet.SetRows("Members",
		testutil.Row{"ID": "1", "Name": "Alice", "Status": "Active"},
		testutil.Row{"ID": "2", "Name": "Bob", "Status": "Active"},
	)
	sheet.SetRows("Transactions",
		testutil.Row{"Name": "Alice", "Amount": "500"},
		testutil.Row{"Name": "Bob", "Amount": "250"},
	)
	sheet.SetRows("Loans",
		testutil.Row{"ID": "L1", "Name": "Bob", "LoanAmount": "5000"},
	)

	cfg := client.DefaultConfig("ledger-test/1.0")
	cfg.Retry = client.NoRetry()
	sheetClient, err := client.New(cfg)
	require.NoError(t, err)

	logger := zerolog.Nop()
	rc := cache.New(sheetClient, cache.Config{Logger: &logger})
	orch := ledger.New(rc, sheetClient, ledger.DefaultResources(sheet.URL()), logger)

	srv := New(orch, "127.0.0.1:0", logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{sheet: sheet, server: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeList(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestReady(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	env.server.SetReady(true)
	resp, _ = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/members", nil)

	resp, body := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ledger_cache_misses_total")
	assert.Contains(t, string(body), "ledger_api_requests_total")
}

func TestListMembers(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/members", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeList(t, body), 2)

	resp, body = env.do(t, http.MethodGet, "/api/members?q=ali", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := decodeList(t, body)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0]["Name"])

	assert.Equal(t, 1, env.sheet.RequestCount(http.MethodGet, "Members"))

	env.do(t, http.MethodGet, "/api/members?refresh=true", nil)
	assert.Equal(t, 2, env.sheet.RequestCount(http.MethodGet, "Members"))
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/transactions?member=Bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := decodeList(t, body)
	require.Len(t, txs, 1)
	assert.Equal(t, "250", txs[0]["Amount"])
}

func TestLoans(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/loans?member=Bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeList(t, body), 1)

	resp, body = env.do(t, http.MethodGet, "/api/loans/by-member/Bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"L1"`)

	resp, _ = env.do(t, http.MethodGet, "/api/loans/by-member/Alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddLoan_InvalidatesAndRefetches(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/loans", nil)

	resp, body := env.do(t, http.MethodPost, "/api/loans", map[string]string{"Name": "Bob", "LoanAmount": "10000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"created":1}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeList(t, body), 2)
	assert.Equal(t, 2, env.sheet.RequestCount(http.MethodGet, "Loans"))
}

func TestUpdateLoan(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPatch, "/api/loans/L1", map[string]string{"LoanAmount": "4000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "4000", env.sheet.Rows("Loans")[0]["LoanAmount"])
}

func TestUpdateMember(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPatch, "/api/members/Alice", map[string]string{"Status": "Inactive"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Inactive", env.sheet.Rows("Members")[0]["Status"])

	resp, body := env.do(t, http.MethodPatch, "/api/members/Zed", map[string]string{"Status": "Inactive"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "member not found")
}

func TestDeleteMember(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodDelete, "/api/members/Bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, env.sheet.Rows("Members"), 1)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		setup  func()
		method string
		path   string
		body   any
		want   int
	}{
		{
			name:   "invalid json",
			method: http.MethodPost,
			path:   "/api/members",
			body:   "{not json",
			want:   http.StatusBadRequest,
		},
		{
			name:   "empty record",
			method: http.MethodPost,
			path:   "/api/transactions",
			body:   map[string]string{},
			want:   http.StatusBadRequest,
		},
		{
			name:   "upstream read failure",
			setup:  func() { env.sheet.FailWith(http.MethodGet, "Transactions", http.StatusInternalServerError) },
			method: http.MethodGet,
			path:   "/api/transactions",
			want:   http.StatusBadGateway,
		},
		{
			name:   "upstream write failure",
			setup:  func() { env.sheet.FailWith(http.MethodPost, "Loans", http.StatusBadRequest) },
			method: http.MethodPost,
			path:   "/api/loans",
			body:   map[string]string{"Name": "Bob"},
			want:   http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/members", nil)

	resp, body := env.do(t, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Entries []cache.EntryStat `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Len(t, stats.Entries, 1)
	assert.False(t, stats.Entries[0].Expired)

	resp, _ = env.do(t, http.MethodDelete, "/api/cache", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/cache/stats", nil)
	assert.JSONEq(t, `{"entries":[]}`, string(body))
}

func TestStartShutdown(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.server.Start())
	assert.NotEqual(t, "127.0.0.1:0", env.server.Addr())

	resp, err := http.Get("http://" + env.server.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
}

func TestListMembers_ConcurrentCacheClear(t *testing.T) {
	env := newTestEnv(t)

	const readers = 20
	counts := make(chan int, readers)

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodDelete, env.http.URL+"/api/cache", nil)
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Get(env.http.URL + "/api/members")
			if err != nil {
				counts <- -1
				return
			}
			defer resp.Body.Close()

			var members []map[string]any
			if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&members) != nil {
				counts <- -1
				return
			}
			counts <- len(members)
		}()
	}
	wg.Wait()
	close(counts)

	for n := range counts {
		assert.Equal(t, 2, n, "every read must return the rows it fetched")
	}
}

func TestLoanByMember_ConcurrentWrite(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	statuses := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			data := strings.NewReader(`{"Name":"Carol","LoanAmount":"100"}`)
			if resp, err := http.Post(env.http.URL+"/api/loans", "application/json", data); err == nil {
				resp.Body.Close()
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Get(env.http.URL + "/api/loans/by-member/Bob")
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestListTransactions_ContextCancelled(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}
