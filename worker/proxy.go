//go:build js && wasm

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"syscall/js"

	"github.com/andesco/shopfront/pkg/partytown"
	"github.com/andesco/shopfront/pkg/reverseproxy"
)

var proxyInstance *reverseproxy.Proxy

func initProxy(env js.Value) (*reverseproxy.Proxy, error) {
	if proxyInstance != nil {
		return proxyInstance, nil
	}

	p, err := reverseproxy.NewFromLookup(getEnvVar(env, "RULESET", ""), envLookup(env))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reverse proxy: %w", err)
	}
	proxyInstance = p
	return proxyInstance, nil
}

func proxyHandler(request, env, ctx js.Value) (js.Value, error) {
	p, err := initProxy(env)
	if err != nil {
		log.Printf("ERROR: Could not initialize proxy: %v", err)
		return createErrorResponse(500, "Could not initialize reverse proxy"), nil
	}

	reqURL, err := url.Parse(request.Get("url").String())
	if err != nil {
		return createErrorResponse(400, err.Error()), nil
	}
	target := reqURL.Query().Get(partytown.ProxyParam)
	if target == "" {
		return createErrorResponse(400, "missing "+partytown.ProxyParam+" query parameter"), nil
	}

	headers := make(http.Header)
	jsHeaders := request.Get("headers")
	for _, name := range []string{"Referer", "User-Agent", "Accept"} {
		if v := jsHeaders.Call("get", name); !v.IsNull() {
			headers.Set(name, v.String())
		}
	}

	resp, err := p.Fetch(context.Background(), reverseproxy.Request{
		URL:    target,
		Header: headers,
		Origin: &url.URL{Scheme: reqURL.Scheme, Host: reqURL.Host},
	})
	switch status := reverseproxy.StatusFor(err); status {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusForbidden:
		log.Printf("WARN: Refused to proxy %s: %v", target, err)
		return createErrorResponse(status, err.Error()), nil
	default:
		log.Printf("ERROR: Failed to proxy %s: %v", target, err)
		return createErrorResponse(status, "upstream fetch failed"), nil
	}

	jsRespHeaders := js.Global().Get("Object").New()
	for key, values := range resp.Header {
		jsRespHeaders.Set(key, strings.Join(values, ", "))
	}

	responseInit := js.Global().Get("Object").New()
	responseInit.Set("status", resp.StatusCode)
	responseInit.Set("headers", jsRespHeaders)

	body := js.Global().Get("Uint8Array").New(len(resp.Body))
	js.CopyBytesToJS(body, resp.Body)
	return js.Global().Get("Response").New(body, responseInit), nil
}

// Utility function to create error responses for Workers
func createErrorResponse(status int, message string) js.Value {
	responseInit := js.Global().Get("Object").New()
	responseInit.Set("status", status)
	responseInit.Set("statusText", message)

	headers := js.Global().Get("Object").New()
	headers.Set("Content-Type", "text/plain")
	responseInit.Set("headers", headers)

	return js.Global().Get("Response").New(message, responseInit)
}

// envLookup reads worker bindings the way os.LookupEnv reads the environment.
func envLookup(env js.Value) reverseproxy.LookupFunc {
	return func(key string) (string, bool) {
		if env.IsUndefined() || env.Get(key).IsUndefined() {
			return "", false
		}
		return env.Get(key).String(), true
	}
}

func getEnvVar(env js.Value, key, fallback string) string {
	if !env.IsUndefined() && !env.Get(key).IsUndefined() {
		return env.Get(key).String()
	}
	return fallback
}
