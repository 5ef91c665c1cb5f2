package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/quizgen/internal/catalog"
	"github.com/makeasinger/quizgen/pkg/response"
)

type CatalogHandler struct {
	catalog *catalog.Catalog
}

func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// List handles GET /api/catalog
func (h *CatalogHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.catalog)
}

// Sector handles GET /api/catalog/:sector
func (h *CatalogHandler) Sector(c *fiber.Ctx) error {
	sector, ok := h.catalog.Sector(c.Params("sector"))
	if !ok {
		return response.NotFound(c, "Sector not found")
	}
	return response.OK(c, sector)
}
