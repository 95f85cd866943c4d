package handlers

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/andesco/shopfront/pkg/reverseproxy"
)

// Ruleset exposes the loaded proxy rules as YAML unless EXPOSE_RULESET=false.
func Ruleset(p *reverseproxy.Proxy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if os.Getenv("EXPOSE_RULESET") == "false" {
			return c.Status(fiber.StatusForbidden).SendString("Ruleset Disabled")
		}

		body, err := yaml.Marshal(p.Rules())
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/x-yaml")
		return c.Send(body)
	}
}
