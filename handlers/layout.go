package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andesco/shopfront/pkg/layout"
	"github.com/andesco/shopfront/pkg/storefront"
)

// Layout renders the root document. With ?_data=root it returns the loader
// data as JSON instead. Loader errors go to the app's ErrorHandler.
func Layout(q storefront.Querier, doc *layout.Document) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, headers, err := layout.Load(c.UserContext(), q)
		if err != nil {
			return err
		}

		for key, values := range headers {
			for _, value := range values {
				c.Set(key, value)
			}
		}

		if c.Query("_data") == "root" {
			return c.JSON(data)
		}

		c.Type("html", "utf-8")
		return doc.Render(c, data, "")
	}
}
