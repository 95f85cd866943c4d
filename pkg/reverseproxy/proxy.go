// Package reverseproxy fetches remote resources server-side on behalf of the
// page, so third-party scripts can be loaded from the storefront's own origin.
package reverseproxy

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"

	"github.com/andesco/shopfront/pkg/partytown"
)

var (
	ErrInvalidURL       = errors.New("invalid proxy target")
	ErrDomainNotAllowed = errors.New("domain not allowed")
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; shopfront-reverse-proxy/1.0)"
	defaultMaxBody   = 10 << 20
)

// passthroughHeaders are copied from the upstream response.
var passthroughHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"ETag",
	"Expires",
	"Last-Modified",
}

type Options struct {
	Rules          RuleSet
	AllowedDomains []string
	UserAgent      string
	Timeout        time.Duration
	MaxBodyBytes   int64
	LogURLs        bool
	// Transport is used for upstream requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

type Proxy struct {
	rules          RuleSet
	allowedDomains []string
	userAgent      string
	maxBody        int64
	logURLs        bool
	client         *http.Client
}

// Request is one proxied fetch. Origin is the page origin the resource is
// loaded for; it is used to keep redirects on the proxy.
type Request struct {
	URL    string
	Header http.Header
	Origin *url.URL
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func New(opts Options) *Proxy {
	var allowed []string
	for _, d := range opts.AllowedDomains {
		if d = strings.TrimSpace(d); d != "" {
			allowed = append(allowed, d)
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	return &Proxy{
		rules:          opts.Rules,
		allowedDomains: allowed,
		userAgent:      userAgent,
		maxBody:        maxBody,
		logURLs:        opts.LogURLs,
		client: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// DefaultAllowedDomains is used when ALLOWED_DOMAINS is not set at all.
// Setting it to an empty string allows every host.
const DefaultAllowedDomains = "googletagmanager.com"

// LookupFunc reports the value of a setting and whether it is set, like
// os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// NewFromEnv loads rules from rulesetPath and reads the remaining settings
// from the process environment.
func NewFromEnv(rulesetPath string) (*Proxy, error) {
	return NewFromLookup(rulesetPath, os.LookupEnv)
}

// NewFromLookup is NewFromEnv with settings read through lookup.
func NewFromLookup(rulesetPath string, lookup LookupFunc) (*Proxy, error) {
	rules, err := LoadRuleSet(rulesetPath)
	if err != nil {
		return nil, err
	}
	opts, err := OptionsFromLookup(rules, lookup)
	if err != nil {
		return nil, err
	}
	return New(opts), nil
}

// OptionsFromLookup reads ALLOWED_DOMAINS, ALLOWED_DOMAINS_RULESET,
// HTTP_TIMEOUT (seconds), USER_AGENT and LOG_URLS.
func OptionsFromLookup(rules RuleSet, lookup LookupFunc) (Options, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	domains, ok := lookup("ALLOWED_DOMAINS")
	if !ok {
		domains = DefaultAllowedDomains
	}
	allowedDomains := strings.Split(domains, ",")
	if get("ALLOWED_DOMAINS_RULESET") == "true" {
		allowedDomains = append(allowedDomains, rules.Domains()...)
	}

	timeout := 15
	if timeoutStr := get("HTTP_TIMEOUT"); timeoutStr != "" {
		var err error
		timeout, err = strconv.Atoi(timeoutStr)
		if err != nil || timeout <= 0 {
			return Options{}, fmt.Errorf("invalid HTTP_TIMEOUT %q", timeoutStr)
		}
	}

	return Options{
		Rules:          rules,
		AllowedDomains: allowedDomains,
		UserAgent:      get("USER_AGENT"),
		Timeout:        time.Duration(timeout) * time.Second,
		LogURLs:        get("LOG_URLS") == "true",
	}, nil
}

// StatusFor maps a Fetch error to the HTTP status returned to the browser.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrDomainNotAllowed):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// AllowedDomains returns the effective allow-list. Empty means any host.
func (p *Proxy) AllowedDomains() []string {
	return p.allowedDomains
}

// Rules returns the loaded rule set.
func (p *Proxy) Rules() RuleSet {
	return p.rules
}

// Allowed reports whether host may be fetched. An empty allow-list allows all.
func (p *Proxy) Allowed(host string) bool {
	if len(p.allowedDomains) == 0 {
		return true
	}
	for _, d := range p.allowedDomains {
		if domainMatches(host, d) {
			return true
		}
	}
	return false
}

// Fetch retrieves req.URL and returns the (possibly rewritten) response.
// Upstream error statuses are returned as responses, not errors.
func (p *Proxy) Fetch(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, req.URL)
	}
	if !p.Allowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, u.Hostname())
	}

	if p.logURLs {
		log.Println(u.String())
	}

	rule := p.rules.Match(u.Hostname(), u.Path)
	finalURL, err := modifyURL(u, rule)
	if err != nil {
		return nil, fmt.Errorf("error modifying URL: %w", err)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	p.setHeaders(upstreamReq, req.Header, rule)

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		return nil, fmt.Errorf("error fetching site: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp, p.maxBody)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     make(http.Header),
	}
	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
	if out.Header.Get("Content-Type") == "" && len(body) > 0 {
		out.Header.Set("Content-Type", mimetype.Detect(body).String())
	}
	if rule.Headers.CSP != "" {
		out.Header.Set("Content-Security-Policy", rule.Headers.CSP)
	}

	if loc := resp.Header.Get("Location"); loc != "" && isRedirect(resp.StatusCode) {
		out.Header.Set("Location", p.rewriteLocation(u, loc, req.Origin))
	}

	out.Body = applyRules(body, out.Header.Get("Content-Type"), rule)
	return out, nil
}

func (p *Proxy) setHeaders(req *http.Request, incoming http.Header, rule Rule) {
	switch {
	case rule.Headers.UserAgent != "":
		req.Header.Set("User-Agent", rule.Headers.UserAgent)
	case incoming.Get("User-Agent") != "":
		req.Header.Set("User-Agent", incoming.Get("User-Agent"))
	default:
		req.Header.Set("User-Agent", p.userAgent)
	}

	if rule.Headers.XForwardedFor != "" && rule.Headers.XForwardedFor != "none" {
		req.Header.Set("X-Forwarded-For", rule.Headers.XForwardedFor)
	}

	if rule.Headers.Referer != "" {
		if rule.Headers.Referer != "none" {
			req.Header.Set("Referer", rule.Headers.Referer)
		}
	} else if referer := incoming.Get("Referer"); referer != "" {
		req.Header.Set("Referer", referer)
	}

	if rule.Headers.Cookie != "" {
		req.Header.Set("Cookie", rule.Headers.Cookie)
	}

	if accept := incoming.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}
	// decoded in readBody
	req.Header.Set("Accept-Encoding", "gzip, br")
}

// rewriteLocation keeps a redirected script on the proxy.
func (p *Proxy) rewriteLocation(base *url.URL, location string, origin *url.URL) string {
	target, err := base.Parse(location)
	if err != nil {
		return location
	}
	return partytown.ResolveURL(target, origin, partytown.ResourceScript).String()
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// readBody reads at most limit bytes and undoes gzip or brotli encoding.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzipReader.Close()
		r = gzipReader
	case "br":
		r = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return body, nil
}

func modifyURL(u *url.URL, rule Rule) (string, error) {
	newURL := *u

	for _, urlMod := range rule.URLMods.Domain {
		re := regexp.MustCompile(urlMod.Match)
		newURL.Host = re.ReplaceAllString(newURL.Host, urlMod.Replace)
	}

	for _, urlMod := range rule.URLMods.Path {
		re := regexp.MustCompile(urlMod.Match)
		newURL.Path = re.ReplaceAllString(newURL.Path, urlMod.Replace)
	}

	if len(rule.URLMods.Query) > 0 {
		v := newURL.Query()
		for _, query := range rule.URLMods.Query {
			if query.Value == "" {
				v.Del(query.Key)
				continue
			}
			v.Set(query.Key, query.Value)
		}
		newURL.RawQuery = v.Encode()
	}

	return newURL.String(), nil
}

func applyRules(body []byte, contentType string, rule Rule) []byte {
	if len(rule.RegexRules) == 0 && len(rule.Injections) == 0 {
		return body
	}

	for _, regexRule := range rule.RegexRules {
		re := regexp.MustCompile(regexRule.Match)
		body = re.ReplaceAll(body, []byte(regexRule.Replace))
	}

	if len(rule.Injections) == 0 || !strings.HasPrefix(contentType, "text/html") {
		return body
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		log.Printf("WARN: Could not parse HTML for injection: %v", err)
		return body
	}
	for _, injection := range rule.Injections {
		if injection.Replace != "" {
			doc.Find(injection.Position).ReplaceWithHtml(injection.Replace)
		}
		if injection.Append != "" {
			doc.Find(injection.Position).AppendHtml(injection.Append)
		}
		if injection.Prepend != "" {
			doc.Find(injection.Position).PrependHtml(injection.Prepend)
		}
	}
	html, err := doc.Html()
	if err != nil {
		log.Printf("WARN: Could not render HTML after injection: %v", err)
		return body
	}
	return []byte(html)
}
