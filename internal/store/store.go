// Package store définit l'accès aux données relationnelles (catalogue, paniers, commandes,
// utilisateurs, outbox). L'implémentation de production est Postgres (pgx) ; le paquet
// memory fournit une version en mémoire pour les tests.
package store

import (
	"context"
	"errors"

	"mehashop_back_end/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

// Tx expose les opérations autorisées dans une transaction du registre des commandes.
type Tx interface {
	// CartLines verrouille les lignes du panier de l'utilisateur avec le prix courant du produit.
	CartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	ClearCart(ctx context.Context, cartID int64) error
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItems(ctx context.Context, items []models.OrderItem) error
	OrderForUpdate(ctx context.Context, orderID int64) (models.Order, error)
	OrderByPaymentIDForUpdate(ctx context.Context, paymentID string) (models.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrder(ctx context.Context, order models.Order) error
	AppendOutbox(ctx context.Context, event models.OutboxEvent) error
}

type Orders interface {
	// InTx exécute fn dans une transaction ; toute erreur annule l'ensemble.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Order(ctx context.Context, orderID int64) (models.Order, error)
	OrderByPaymentID(ctx context.Context, paymentID string) (models.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	OrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
}

type Catalog interface {
	Products(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	Product(ctx context.Context, productID int64) (models.Product, error)
	Categories(ctx context.Context) ([]models.Category, error)
}

type Carts interface {
	// Cart renvoie le panier de l'utilisateur, créé à la première demande.
	Cart(ctx context.Context, userID int64) (models.Cart, error)
	CartItems(ctx context.Context, userID int64) ([]models.CartItem, error)
	// AddCartItem incrémente la quantité si le produit est déjà dans le panier.
	AddCartItem(ctx context.Context, userID, productID int64, quantity int) (models.CartItem, error)
	UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int) (models.CartItem, error)
	DeleteCartItem(ctx context.Context, userID, itemID int64) error
}

type Users interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, userID int64) (models.User, error)
	UserByLogin(ctx context.Context, login string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByProvider(ctx context.Context, provider, providerID string) (models.User, error)
	LinkProvider(ctx context.Context, userID int64, provider, providerID string) error
}

type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventSent(ctx context.Context, id int64) error
}

// Store regroupe tous les dépôts.
type Store interface {
	Orders
	Catalog
	Carts
	Users
	Outbox
}
