package models

type Cart struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
}

// MaxItemQuantity borne la quantité d'une ligne de panier.
const MaxItemQuantity = 999

type CartItem struct {
	ID        int64   `json:"id"`
	CartID    int64   `json:"-"`
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// CartLine est une ligne de panier verrouillée avec le prix courant du produit.
type CartLine struct {
	ItemID    int64
	CartID    int64
	ProductID int64
	Quantity  int
	Price     Money
}
