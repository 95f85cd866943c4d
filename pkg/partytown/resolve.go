// Package partytown holds the pieces of the Partytown integration that live on
// the server: the URL resolver that routes sandboxed script loads through the
// same-origin reverse proxy, and the inline config snippet.
package partytown

import (
	"net/url"
	"strings"
)

const (
	// ProxyPath is the same-origin route that fetches remote scripts server-side.
	ProxyPath = "/reverse-proxy"

	// ProxyParam carries the original absolute URL on ProxyPath requests.
	ProxyParam = "apiUrl"

	// ResourceScript is the only resource type that gets proxied.
	ResourceScript = "script"
)

// ResolveURL decides where a resource requested by a sandboxed script should
// be loaded from. Scripts are rewritten to ProxyPath on the page's origin;
// every other resource type, and any URL already routed through the proxy,
// is returned as is.
//
// ResolveURL never fails. A nil u yields nil. A location without scheme or
// host produces a relative proxy URL.
func ResolveURL(u *url.URL, location *url.URL, resourceType string) *url.URL {
	if u == nil || resourceType != ResourceScript {
		return u
	}

	// already proxied, don't wrap it again
	if IsProxied(u) {
		return u
	}

	proxyURL := &url.URL{Path: ProxyPath}
	if location != nil {
		proxyURL.Scheme = location.Scheme
		proxyURL.Host = location.Host
	}

	q := url.Values{}
	q.Add(ProxyParam, u.String())
	proxyURL.RawQuery = q.Encode()

	return proxyURL
}

// IsProxied reports whether u already points at the reverse proxy.
func IsProxied(u *url.URL) bool {
	return strings.Contains(u.String(), ProxyPath)
}

// Origin returns the scheme://host part of u.
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
