package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

type rangeServer struct {
	mu       sync.Mutex
	rows     map[string]int
	ranges   []string
	requests []*http.Request
}

func (s *rangeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(context.Background()))
	s.ranges = append(s.ranges, r.Header.Get("Range"))
	s.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

	total, ok := s.rows[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"relation does not exist"}`))

		return
	}

	from, to := 0, total-1
	status := http.StatusOK

	if rng := r.Header.Get("Range"); rng != "" {
		parts := strings.SplitN(rng, "-", 2)
		from, _ = strconv.Atoi(parts[0])
		to, _ = strconv.Atoi(parts[1])
		status = http.StatusPartialContent
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, _ := strconv.Atoi(limit)
		to = from + n - 1
	}

	page := []map[string]any{}

	for i := from; i <= to && i < total; i++ {
		page = append(page, map[string]any{"id": i})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(page)
}

func newTestClient(t *testing.T, rows map[string]int) (*Client, *rangeServer) {
	t.Helper()

	srv := &rangeServer{rows: rows}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return NewClient(Options{BaseURL: ts.URL, APIKey: "anon-key"}), srv
}

func TestFetchAll_PagesUntilShortPage(t *testing.T) {
	client, srv := newTestClient(t, map[string]int{"Foo": 2500})

	records, err := client.FetchAll(context.Background(), "Foo", 1000)
	require.NoError(t, err)

	assert.Len(t, records, 2500)
	assert.Equal(t, []string{"0-999", "1000-1999", "2000-2999"}, srv.ranges)

	for i, rec := range records {
		id, ok := rec["id"].(json.Number)
		require.True(t, ok)
		assert.Equal(t, strconv.Itoa(i), id.String())
	}
}

func TestFetchAll_RequestCount(t *testing.T) {
	tests := []struct {
		rows     int
		pageSize int
		requests int
	}{
		{0, 1000, 1},
		{1, 1000, 1},
		{999, 1000, 1},
		{1000, 1000, 2},
		{2000, 1000, 3},
		{7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.rows, tt.pageSize), func(t *testing.T) {
			client, srv := newTestClient(t, map[string]int{"Bar": tt.rows})

			records, err := client.FetchAll(context.Background(), "Bar", tt.pageSize)
			require.NoError(t, err)

			assert.NotNil(t, records)
			assert.Len(t, records, tt.rows)
			assert.Len(t, srv.ranges, tt.requests)
		})
	}
}

func TestFetchAll_DefaultPageSize(t *testing.T) {
	client, srv := newTestClient(t, map[string]int{"Foo": 10})

	_, err := client.FetchAll(context.Background(), "Foo", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"0-999"}, srv.ranges)
}

func TestFetchAll_Headers(t *testing.T) {
	client, srv := newTestClient(t, map[string]int{"Foo": 1})

	_, err := client.FetchAll(context.Background(), "Foo", 1000)
	require.NoError(t, err)
	require.Len(t, srv.requests, 1)

	req := srv.requests[0]
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", req.Header.Get("Authorization"))
	assert.Equal(t, "items", req.Header.Get("Range-Unit"))
	assert.Equal(t, "*", req.URL.Query().Get("select"))
	assert.Equal(t, "/rest/v1/Foo", req.URL.Path)
}

func TestFetchAll_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, map[string]int{})

	records, err := client.FetchAll(context.Background(), "Missing", 1000)
	require.Error(t, err)
	assert.Nil(t, records)

	var fetchErr *ResourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "Missing", fetchErr.Resource)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.Body, "relation does not exist")
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetchAll_BodyExcerptIsBounded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	t.Cleanup(ts.Close)

	client := NewClient(Options{BaseURL: ts.URL, APIKey: "k"})

	_, err := client.FetchAll(context.Background(), "Foo", 10)

	var fetchErr *ResourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Len(t, fetchErr.Body, bodyExcerptSize)
}

func TestFetchAll_InvalidJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	t.Cleanup(ts.Close)

	client := NewClient(Options{BaseURL: ts.URL, APIKey: "k"})

	_, err := client.FetchAll(context.Background(), "Foo", 10)

	var fetchErr *ResourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusOK, fetchErr.StatusCode)
	assert.Error(t, fetchErr.Unwrap())
}

func TestFetchAll_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	client := NewClient(Options{BaseURL: url, APIKey: "k"})

	_, err := client.FetchAll(context.Background(), "Foo", 10)

	var fetchErr *ResourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
}

func TestProbe(t *testing.T) {
	client, srv := newTestClient(t, map[string]int{"PropertyConfig": 50})

	name, rows, err := client.Probe(context.Background(), []string{"Property", "PropertyConfig", "Other"}, 5)
	require.NoError(t, err)

	assert.Equal(t, "PropertyConfig", name)
	assert.Len(t, rows, 5)
	assert.Len(t, srv.requests, 2)
	assert.Equal(t, "5", srv.requests[1].URL.Query().Get("limit"))
}

func TestProbe_NoResource(t *testing.T) {
	client, _ := newTestClient(t, map[string]int{})

	_, _, err := client.Probe(context.Background(), []string{"A", "B"}, 5)
	assert.ErrorIs(t, err, ErrNoResource)
}

func TestInstrumentedClient(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: true, ServiceName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	client, _ := newTestClient(t, map[string]int{"Foo": 3})

	var fetcher harvest.Fetcher = NewInstrumentedClient(client, tel)

	records, err := fetcher.FetchAll(context.Background(), "Foo", 2)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = fetcher.FetchAll(context.Background(), "Missing", 2)

	var fetchErr *ResourceFetchError
	assert.True(t, errors.As(err, &fetchErr))
}
