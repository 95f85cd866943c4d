package partytown

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolveURL(t *testing.T) {
	location := mustParse(t, "https://shop.test/products/hat?variant=1")

	t.Run("Proxies scripts through the page origin", func(t *testing.T) {
		got := ResolveURL(mustParse(t, "https://example.com/gtm.js"), location, "script")
		assert.Equal(t, "https://shop.test/reverse-proxy?apiUrl=https%3A%2F%2Fexample.com%2Fgtm.js", got.String())
	})

	t.Run("Keeps the original query string inside apiUrl", func(t *testing.T) {
		got := ResolveURL(mustParse(t, "https://www.googletagmanager.com/gtm.js?id=GTM-N5D3D8Q&l=dataLayer"), location, "script")
		assert.Equal(t, "/reverse-proxy", got.Path)
		assert.Equal(t, "https://www.googletagmanager.com/gtm.js?id=GTM-N5D3D8Q&l=dataLayer", got.Query().Get("apiUrl"))
	})

	t.Run("Leaves non-script resources alone", func(t *testing.T) {
		for _, typ := range []string{"image", "iframe", "xhr", "fetch", "", "Script"} {
			in := mustParse(t, "https://example.com/pixel.gif")
			assert.Same(t, in, ResolveURL(in, location, typ), typ)
		}
	})

	t.Run("Does not wrap an already proxied URL", func(t *testing.T) {
		in := mustParse(t, "https://shop.test/reverse-proxy?apiUrl=https%3A%2F%2Fexample.com%2Fgtm.js")
		assert.Same(t, in, ResolveURL(in, location, "script"))
	})

	t.Run("Is idempotent on its own output", func(t *testing.T) {
		once := ResolveURL(mustParse(t, "https://example.com/a.js"), location, "script")
		twice := ResolveURL(once, location, "script")
		assert.Equal(t, once.String(), twice.String())
	})

	t.Run("Any URL containing the proxy path short-circuits", func(t *testing.T) {
		in := mustParse(t, "https://cdn.example.com/reverse-proxy/lib.js")
		assert.Same(t, in, ResolveURL(in, location, "script"))
	})

	t.Run("Nil URL", func(t *testing.T) {
		assert.Nil(t, ResolveURL(nil, location, "script"))
	})

	t.Run("Missing location gives a relative proxy URL", func(t *testing.T) {
		got := ResolveURL(mustParse(t, "https://example.com/gtm.js"), nil, "script")
		assert.Equal(t, "/reverse-proxy?apiUrl=https%3A%2F%2Fexample.com%2Fgtm.js", got.String())
	})
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://shop.test", Origin(mustParse(t, "https://shop.test/a/b?c=d")))
	assert.Equal(t, "http://localhost:3000", Origin(mustParse(t, "http://localhost:3000/")))
	assert.Equal(t, "", Origin(mustParse(t, "/relative")))
	assert.Equal(t, "", Origin(nil))
}
