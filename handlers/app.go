// Package handlers wires the storefront's HTTP surface onto a Fiber app.
package handlers

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/andesco/shopfront/pkg/layout"
	"github.com/andesco/shopfront/pkg/partytown"
	"github.com/andesco/shopfront/pkg/reverseproxy"
	"github.com/andesco/shopfront/pkg/storefront"
)

type Config struct {
	Storefront storefront.Querier
	Document   *layout.Document
	Proxy      *reverseproxy.Proxy
	// StaticDir holds assets/ and ~partytown/. Optional.
	StaticDir string
	// AccessLog enables the request logger.
	AccessLog bool
	// TrustedProxies limits whose X-Forwarded-* headers are believed. When
	// empty every peer is trusted.
	TrustedProxies []string
}

// NewApp builds the Fiber app with all routes mounted.
func NewApp(cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            errorHandler,
		EnableTrustedProxyCheck: len(cfg.TrustedProxies) > 0,
		TrustedProxies:          cfg.TrustedProxies,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:        "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
			DisableColors: !term.IsTerminal(int(os.Stdout.Fd())),
		}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get(partytown.ProxyPath, ReverseProxy(cfg.Proxy))
	app.Get("/ruleset", Ruleset(cfg.Proxy))
	app.Get("/", Layout(cfg.Storefront, cfg.Document))

	if cfg.StaticDir != "" {
		app.Static("/assets", filepath.Join(cfg.StaticDir, "assets"))
		app.Static("/~partytown", filepath.Join(cfg.StaticDir, "~partytown"))
	}

	return app
}

// errorHandler is the last stop for errors returned by handlers.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	if code >= fiber.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Method(), c.Path(), err)
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(code).SendString("Internal Server Error")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(err.Error())
}
