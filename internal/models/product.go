package models

// Product est en lecture seule pour le noyau commande : son prix est recopié dans OrderItem.
type Product struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Price       Money          `json:"price"`
	CategoryID  *int64         `json:"category_id"`
	Attributes  map[string]any `json:"attributes"`
	ImageKey    string         `json:"-"`
	ImageURL    string         `json:"image_url,omitempty"`
}

// ProductFilter reprend les critères de la liste produits.
type ProductFilter struct {
	CategoryID *int64
	MinPrice   *Money
	MaxPrice   *Money
	SortBy     string
}

// Champs de tri autorisés pour la liste produits.
var ProductSortFields = map[string]bool{
	"price": true, "-price": true,
	"name": true, "-name": true,
	"id": true, "-id": true,
}
