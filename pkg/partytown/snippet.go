package partytown

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config mirrors the options the Partytown loader reads from window.partytown.
type Config struct {
	Debug   bool
	Forward []string
	Lib     string
}

// DefaultConfig forwards the GTM entry points into the worker.
func DefaultConfig() Config {
	return Config{
		Debug:   true,
		Forward: []string{"dataLayer.push", "gtag"},
		Lib:     "/~partytown/",
	}
}

// resolveURLFunc is the browser side of ResolveURL. Both are built from the
// same constants and must stay in step.
const resolveURLFunc = `function(url, location, type) {
    if (type !== %[1]q) {
      return url;
    }
    if (url.href.includes(%[2]q)) {
      return url;
    }
    var proxyUrl = new URL(location.origin + %[2]q);
    proxyUrl.searchParams.append(%[3]q, url.href);
    return proxyUrl;
  }`

// Snippet returns the inline script body that configures Partytown before its
// loader runs.
func (c Config) Snippet() (string, error) {
	forward := c.Forward
	if forward == nil {
		forward = []string{}
	}
	fwd, err := json.Marshal(forward)
	if err != nil {
		return "", fmt.Errorf("encoding forward list: %w", err)
	}
	lib, err := json.Marshal(c.Lib)
	if err != nil {
		return "", fmt.Errorf("encoding lib path: %w", err)
	}

	var b strings.Builder
	b.WriteString("partytown = {\n")
	fmt.Fprintf(&b, "  debug: %t,\n", c.Debug)
	fmt.Fprintf(&b, "  forward: %s,\n", fwd)
	fmt.Fprintf(&b, "  lib: %s,\n", lib)
	b.WriteString("  resolveUrl: ")
	fmt.Fprintf(&b, resolveURLFunc, ResourceScript, ProxyPath, ProxyParam)
	b.WriteString("\n};\n")
	return b.String(), nil
}

// LoaderSrc is the path of the Partytown loader script under Lib.
func (c Config) LoaderSrc() string {
	lib := c.Lib
	if !strings.HasSuffix(lib, "/") {
		lib += "/"
	}
	if c.Debug {
		return lib + "debug/partytown.js"
	}
	return lib + "partytown.js"
}
