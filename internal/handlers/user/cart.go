package user

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"mehashop_back_end/internal/handlers"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
)

type CartHandler struct {
	carts store.Carts
}

func NewCartHandler(carts store.Carts) *CartHandler {
	return &CartHandler{carts: carts}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	items, err := h.carts.CartItems(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if items == nil {
		items = []models.CartItem{}
	}

	total := models.Zero
	for _, it := range items {
		total = total.Add(it.Product.Price.Mul(it.Quantity))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var input struct {
		ProductID int64 `json:"product_id"`
		Quantity  *int  `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ProductID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id is required"})
		return
	}
	qty := 1
	if input.Quantity != nil {
		qty = *input.Quantity
	}
	if !validQuantity(c, qty) {
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	// L'ajout cumule avec la ligne existante : la borne porte sur le total.
	items, err := h.carts.CartItems(ctx, userID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	for _, it := range items {
		if it.ProductID == input.ProductID && !validQuantity(c, it.Quantity+qty) {
			return
		}
	}

	item, err := h.carts.AddCartItem(ctx, userID, input.ProductID, qty)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var input struct {
		ItemID   int64 `json:"item_id"`
		Quantity int   `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ItemID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
		return
	}
	if !validQuantity(c, input.Quantity) {
		return
	}

	item, err := h.carts.UpdateCartItem(c.Request.Context(), middleware.UserID(c), input.ItemID, input.Quantity)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *CartHandler) DeleteItem(c *gin.Context) {
	var input struct {
		ItemID int64 `json:"item_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.ItemID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
		return
	}

	if err := h.carts.DeleteCartItem(c.Request.Context(), middleware.UserID(c), input.ItemID); err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func validQuantity(c *gin.Context, qty int) bool {
	switch {
	case qty < 1:
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be at least 1"})
	case qty > models.MaxItemQuantity:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("quantity must not exceed %d", models.MaxItemQuantity)})
	default:
		return true
	}
	return false
}
