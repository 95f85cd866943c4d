package handlers

import (
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/andesco/shopfront/pkg/metrics"
	"github.com/andesco/shopfront/pkg/partytown"
	"github.com/andesco/shopfront/pkg/reverseproxy"
)

// ReverseProxy serves GET /reverse-proxy?apiUrl=<url>, fetching the target on
// behalf of scripts running in the Partytown worker.
func ReverseProxy(p *reverseproxy.Proxy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetURL, err := extractURL(c)
		if err != nil {
			log.Printf("ERROR: Could not extract URL: %v", err)
			metrics.ProxyRequests.WithLabelValues("bad_request").Inc()
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		// Protocol honours X-Forwarded-Proto from trusted proxies, so a TLS
		// terminator in front keeps rewritten redirects on https.
		origin := &url.URL{Scheme: c.Protocol(), Host: c.Hostname()}

		// Convert Fiber headers to http.Header
		headers := make(http.Header)
		c.Request().Header.VisitAll(func(key, value []byte) {
			headers.Add(string(key), string(value))
		})

		resp, err := p.Fetch(c.UserContext(), reverseproxy.Request{
			URL:    targetURL,
			Header: headers,
			Origin: origin,
		})
		switch status := reverseproxy.StatusFor(err); status {
		case fiber.StatusOK:
		case fiber.StatusBadRequest:
			metrics.ProxyRequests.WithLabelValues("bad_request").Inc()
			return c.Status(status).SendString(err.Error())
		case fiber.StatusForbidden:
			log.Printf("WARN: Refused to proxy %s: %v", targetURL, err)
			metrics.ProxyRequests.WithLabelValues("forbidden").Inc()
			return c.Status(status).SendString(err.Error())
		default:
			log.Printf("ERROR: Failed to proxy %s: %v", targetURL, err)
			metrics.ProxyRequests.WithLabelValues("upstream_error").Inc()
			return c.Status(status).SendString("upstream fetch failed")
		}

		metrics.ProxyRequests.WithLabelValues("ok").Inc()
		for key, values := range resp.Header {
			for _, value := range values {
				c.Set(key, value)
			}
		}
		return c.Status(resp.StatusCode).Send(resp.Body)
	}
}

// extractURL reads the proxied target from the apiUrl query parameter.
func extractURL(c *fiber.Ctx) (string, error) {
	// Gofiber decodes query values
	target := c.Query(partytown.ProxyParam)
	if target == "" {
		return "", fmt.Errorf("missing %s query parameter", partytown.ProxyParam)
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("error parsing %s '%s': %w", partytown.ProxyParam, target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s must be an absolute http(s) URL: %s", partytown.ProxyParam, target)
	}
	return u.String(), nil
}
