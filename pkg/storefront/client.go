// Package storefront is a small GraphQL client for the Storefront API.
package storefront

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/andesco/shopfront/pkg/metrics"
)

const (
	DefaultAPIVersion = "2023-04"
	tokenHeader       = "X-Shopify-Storefront-Access-Token"
)

// Querier runs a read query against the storefront and decodes its data into out.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]any, out any) error
}

// Options configures a Client.
type Options struct {
	StoreDomain string
	Token       string
	APIVersion  string
	Timeout     time.Duration
	Cache       Cache
	CacheTTL    time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	endpoint string
	token    string
	cache    Cache
	cacheTTL time.Duration
	http     *http.Client
}

// NewClient builds a client for the given store domain. The domain may be a
// bare host or a full https origin.
func NewClient(opts Options) (*Client, error) {
	if opts.StoreDomain == "" {
		return nil, fmt.Errorf("store domain is required")
	}
	domain := strings.TrimSuffix(opts.StoreDomain, "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}

	version := opts.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint: fmt.Sprintf("%s/api/%s/graphql.json", domain, version),
		token:    opts.Token,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		http:     httpClient,
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// GraphQLError is a single entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
}

// QueryError is returned when the API answers with a non-empty errors array.
type QueryError struct {
	Errors []GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return "storefront query failed: " + strings.Join(msgs, "; ")
}

// Query posts query to the Storefront API and decodes the "data" member into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}

	key := cacheKey(body)
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			log.Printf("WARN: storefront cache read failed: %v", err)
		} else if ok {
			metrics.StorefrontQueries.WithLabelValues("cache_hit").Inc()
			return decodeData(data, out)
		}
	}

	data, err := c.do(ctx, body)
	if err != nil {
		metrics.StorefrontQueries.WithLabelValues("error").Inc()
		return err
	}
	metrics.StorefrontQueries.WithLabelValues("ok").Inc()

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			log.Printf("WARN: storefront cache write failed: %v", err)
		}
	}

	return decodeData(data, out)
}

func (c *Client) do(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building storefront request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying storefront: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading storefront response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("storefront responded with status %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding storefront response: %w", err)
	}
	if len(r.Errors) > 0 {
		return nil, &QueryError{Errors: r.Errors}
	}
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil, fmt.Errorf("storefront response has no data")
	}
	return r.Data, nil
}

func decodeData(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding storefront data: %w", err)
	}
	return nil
}

func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "storefront:" + hex.EncodeToString(sum[:])
}
