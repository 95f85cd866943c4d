package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopQuery = `query layout { shop { name description } }`

type shopData struct {
	Shop struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"shop"`
}

func newTestServer(t *testing.T, calls *atomic.Int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Options{StoreDomain: "hydrogen-preview.myshopify.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://hydrogen-preview.myshopify.com/api/2023-04/graphql.json", c.Endpoint())

	c, err = NewClient(Options{StoreDomain: "http://127.0.0.1:9000/", APIVersion: "2024-01"})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/api/2024-01/graphql.json", c.Endpoint())

	_, err = NewClient(Options{})
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/2023-04/graphql.json", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Shopify-Storefront-Access-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, shopQuery, req["query"])

		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"Snowdevil","description":"Boards"}}}`))
	})

	c, err := NewClient(Options{StoreDomain: srv.URL, Token: "secret"})
	require.NoError(t, err)

	var out shopData
	require.NoError(t, c.Query(context.Background(), shopQuery, nil, &out))
	assert.Equal(t, "Snowdevil", out.Shop.Name)
	assert.Equal(t, "Boards", out.Shop.Description)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryErrors(t *testing.T) {
	t.Run("GraphQL errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"Field 'shopp' doesn't exist"},{"message":"second"}]}`))
		})
		c, err := NewClient(Options{StoreDomain: srv.URL})
		require.NoError(t, err)

		err = c.Query(context.Background(), shopQuery, nil, &shopData{})
		var qe *QueryError
		require.True(t, errors.As(err, &qe))
		assert.Len(t, qe.Errors, 2)
		assert.Contains(t, err.Error(), "Field 'shopp' doesn't exist; second")
	})

	t.Run("Non-2xx status", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		c, err := NewClient(Options{StoreDomain: srv.URL})
		require.NoError(t, err)

		err = c.Query(context.Background(), shopQuery, nil, &shopData{})
		assert.ErrorContains(t, err, "status 401")
	})

	t.Run("Malformed body", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})
		c, err := NewClient(Options{StoreDomain: srv.URL})
		require.NoError(t, err)

		err = c.Query(context.Background(), shopQuery, nil, &shopData{})
		assert.ErrorContains(t, err, "decoding storefront response")
	})

	t.Run("Cancelled context", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{}}`))
		})
		c, err := NewClient(Options{StoreDomain: srv.URL})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = c.Query(ctx, shopQuery, nil, &shopData{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestQueryCache(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"Cached","description":""}}}`))
	})

	c, err := NewClient(Options{StoreDomain: srv.URL, Cache: NewMemoryCache(), CacheTTL: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		var out shopData
		require.NoError(t, c.Query(context.Background(), shopQuery, nil, &out))
		assert.Equal(t, "Cached", out.Shop.Name)
	}
	assert.EqualValues(t, 1, calls.Load())

	// different variables are a different cache entry
	require.NoError(t, c.Query(context.Background(), shopQuery, map[string]any{"country": "CA"}, &shopData{}))
	assert.EqualValues(t, 2, calls.Load())
}

func TestQueryFailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c, err := NewClient(Options{StoreDomain: srv.URL, Cache: NewMemoryCache(), CacheTTL: time.Minute})
	require.NoError(t, err)

	assert.Error(t, c.Query(context.Background(), shopQuery, nil, &shopData{}))
	assert.Error(t, c.Query(context.Background(), shopQuery, nil, &shopData{}))
	assert.EqualValues(t, 2, calls.Load())
}
