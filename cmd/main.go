package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akamensky/argparse"

	"github.com/andesco/shopfront/handlers"
	"github.com/andesco/shopfront/pkg/gtm"
	"github.com/andesco/shopfront/pkg/layout"
	"github.com/andesco/shopfront/pkg/partytown"
	"github.com/andesco/shopfront/pkg/reverseproxy"
	"github.com/andesco/shopfront/pkg/storefront"
)

func main() {
	parser := argparse.NewParser("shopfront", "Storefront root document with Partytown-proxied Google Tag Manager")

	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Default:  getenv("PORT", "8080"),
		Help:     "Port the webserver will listen on",
	})
	ruleset := parser.String("r", "ruleset", &argparse.Options{
		Required: false,
		Default:  os.Getenv("RULESET"),
		Help:     "Reverse proxy ruleset files or directories, separated by ';'",
	})
	storeDomain := parser.String("s", "store-domain", &argparse.Options{
		Required: false,
		Default:  os.Getenv("PUBLIC_STORE_DOMAIN"),
		Help:     "Shop domain, e.g. hydrogen-preview.myshopify.com",
	})
	token := parser.String("t", "storefront-token", &argparse.Options{
		Required: false,
		Default:  os.Getenv("PUBLIC_STOREFRONT_API_TOKEN"),
		Help:     "Storefront API access token",
	})
	apiVersion := parser.String("", "api-version", &argparse.Options{
		Required: false,
		Default:  getenv("STOREFRONT_API_VERSION", storefront.DefaultAPIVersion),
		Help:     "Storefront API version",
	})
	gtmID := parser.String("g", "gtm-id", &argparse.Options{
		Required: false,
		Default:  getenv("GTM_ID", gtm.DefaultID),
		Help:     "Google Tag Manager container id",
	})
	staticDir := parser.String("", "static", &argparse.Options{
		Required: false,
		Default:  getenv("STATIC_DIR", "public"),
		Help:     "Directory holding assets/ and ~partytown/",
	})
	cacheTTL := parser.String("", "cache-ttl", &argparse.Options{
		Required: false,
		Default:  getenv("CACHE_TTL", "0s"),
		Help:     "Cache storefront queries for this long (0 disables caching)",
	})
	redisURL := parser.String("", "redis-url", &argparse.Options{
		Required: false,
		Default:  os.Getenv("REDIS_URL"),
		Help:     "Share the storefront query cache through Redis",
	})
	trustedProxies := parser.String("", "trusted-proxies", &argparse.Options{
		Required: false,
		Default:  os.Getenv("TRUSTED_PROXIES"),
		Help:     "Comma separated proxy IPs/CIDRs whose X-Forwarded-* headers are honored",
	})
	release := parser.Flag("", "partytown-release", &argparse.Options{
		Required: false,
		Default:  os.Getenv("PARTYTOWN_RELEASE") == "true",
		Help:     "Use the minified Partytown build instead of the debug build",
	})
	debug := parser.Flag("d", "debug", &argparse.Options{
		Required: false,
		Default:  os.Getenv("DEBUG") == "true",
		Help:     "Formatted HTML and access logs",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	ttl, err := time.ParseDuration(*cacheTTL)
	if err != nil {
		log.Fatalf("ERROR: invalid cache ttl %q: %v", *cacheTTL, err)
	}

	ctx := context.Background()
	var cache storefront.Cache
	switch {
	case ttl <= 0:
	case *redisURL != "":
		rc, err := storefront.NewRedisCache(ctx, *redisURL)
		if err != nil {
			log.Fatalf("ERROR: %v", err)
		}
		defer rc.Close()
		cache = rc
	default:
		cache = storefront.NewMemoryCache()
	}

	client, err := storefront.NewClient(storefront.Options{
		StoreDomain: *storeDomain,
		Token:       *token,
		APIVersion:  *apiVersion,
		Cache:       cache,
		CacheTTL:    ttl,
	})
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	container, err := gtm.New(*gtmID)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	pt := partytownConfig(*release)
	doc, err := layout.NewDocument(layout.Options{
		GTM:        container,
		Partytown:  pt,
		Stylesheet: "/assets/app.css",
		Favicon:    "/assets/favicon.svg",
		Pretty:     *debug,
	})
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	proxy, err := reverseproxy.NewFromEnv(*ruleset)
	if err != nil {
		log.Fatalf("ERROR: Failed to initialize reverse proxy: %v", err)
	}

	app := handlers.NewApp(handlers.Config{
		Storefront:     client,
		Document:       doc,
		Proxy:          proxy,
		StaticDir:      *staticDir,
		AccessLog:      *debug,
		TrustedProxies: splitList(*trustedProxies),
	})

	go func() {
		log.Printf("INFO: shopfront listening on :%s (storefront %s)", *port, client.Endpoint())
		if err := app.Listen(":" + *port); err != nil {
			log.Fatalf("ERROR: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("INFO: Received %s, shutting down", sig)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("ERROR: graceful shutdown failed: %v", err)
	}
}

// partytownConfig keeps the debug build unless a release build is asked for.
func partytownConfig(release bool) partytown.Config {
	pt := partytown.DefaultConfig()
	if release {
		pt.Debug = false
	}
	return pt
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
