// Package layout implements the root document of the storefront: the loader
// that fetches shop metadata and the HTML shell rendered around every page.
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/andesco/shopfront/pkg/metrics"
	"github.com/andesco/shopfront/pkg/storefront"
)

// Query asks for the fields the shell renders.
const Query = `#graphql
  query layout {
    shop {
      name
      description
    }
  }
`

// ShopInfo is the storefront entity shown in the shell. Description is
// nullable upstream.
type ShopInfo struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Data is what the loader hands to the document and to /?_data=root.
// Layout is the upstream "data" object exactly as received; Shop is decoded
// from it for rendering and never serialized.
type Data struct {
	Layout json.RawMessage `json:"layout"`
	Shop   ShopInfo        `json:"-"`
}

// Headers enable Partytown's atomics mode, which needs a cross-origin
// isolated document.
func Headers() http.Header {
	h := make(http.Header)
	h.Set("Cross-Origin-Embedder-Policy", "credentialless")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	return h
}

// Load runs the layout query. Errors are returned to the caller untouched
// apart from wrapping; there is no retry and no fallback data.
func Load(ctx context.Context, q storefront.Querier) (Data, http.Header, error) {
	start := time.Now()
	defer func() { metrics.LoaderDuration.Observe(time.Since(start).Seconds()) }()

	var raw json.RawMessage
	if err := q.Query(ctx, Query, nil, &raw); err != nil {
		return Data{}, nil, fmt.Errorf("loading layout: %w", err)
	}

	var layout struct {
		Shop ShopInfo `json:"shop"`
	}
	if err := json.Unmarshal(raw, &layout); err != nil {
		return Data{}, nil, fmt.Errorf("decoding layout: %w", err)
	}
	return Data{Layout: raw, Shop: layout.Shop}, Headers(), nil
}
