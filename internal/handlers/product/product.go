// Package product expose le catalogue en lecture.
package product

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/handlers"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/services"
	"mehashop_back_end/internal/store"
)

const defaultSort = "price"

type Handler struct {
	catalog store.Catalog
	cache   *cache.Cache
	images  *services.ImageSigner
}

// NewHandler accepte un cache et un signer nil (catégories lues en base, pas d'URL d'image).
func NewHandler(catalog store.Catalog, c *cache.Cache, images *services.ImageSigner) *Handler {
	return &Handler{catalog: catalog, cache: c, images: images}
}

type listRequest struct {
	CategoryID *int64        `json:"category_id"`
	MinPrice   *models.Money `json:"min_price"`
	MaxPrice   *models.Money `json:"max_price"`
	SortBy     string        `json:"sort_by"`
}

// ListProducts filtre par catégorie et fourchette de prix, tri sur une liste blanche de champs.
func (h *Handler) ListProducts(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SortBy == "" {
		req.SortBy = defaultSort
	}
	if !models.ProductSortFields[req.SortBy] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sort_by parameter"})
		return
	}

	products, err := h.catalog.Products(c.Request.Context(), models.ProductFilter{
		CategoryID: req.CategoryID,
		MinPrice:   req.MinPrice,
		MaxPrice:   req.MaxPrice,
		SortBy:     req.SortBy,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	for i := range products {
		h.images.Sign(c.Request.Context(), &products[i])
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	p, err := h.catalog.Product(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	h.images.Sign(c.Request.Context(), &p)
	c.JSON(http.StatusOK, p)
}

// ListCategories passe par le cache Redis ; une panne Redis retombe sur la base.
func (h *Handler) ListCategories(c *gin.Context) {
	ctx := c.Request.Context()
	load := func(ctx context.Context) ([]models.Category, error) {
		return h.catalog.Categories(ctx)
	}

	var (
		cats []models.Category
		err  error
	)
	if h.cache != nil {
		cats, err = h.cache.Categories(ctx, load)
	} else {
		cats, err = load(ctx)
	}
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	c.JSON(http.StatusOK, cats)
}
