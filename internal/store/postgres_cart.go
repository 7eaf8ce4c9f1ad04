package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mehashop_back_end/internal/models"
)

func (p *Postgres) Cart(ctx context.Context, userID int64) (models.Cart, error) {
	return ensureCart(ctx, p.pool, userID)
}

func ensureCart(ctx context.Context, q querier, userID int64) (models.Cart, error) {
	cart := models.Cart{UserID: userID}
	err := q.QueryRow(ctx, `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`, userID).Scan(&cart.ID)
	if err != nil {
		return models.Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	return cart, nil
}

const cartItemSelect = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ` + productColumns + `
	FROM cart_items ci
	JOIN carts c ON c.id = ci.cart_id
	JOIN products p ON p.id = ci.product_id`

func scanCartItem(row pgx.Row) (models.CartItem, error) {
	var (
		it    models.CartItem
		price string
		attrs []byte
	)
	pr := &it.Product
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity,
		&pr.ID, &pr.Name, &pr.Description, &price, &pr.CategoryID, &attrs, &pr.ImageKey)
	if err != nil {
		return models.CartItem{}, notFound(err)
	}
	if pr.Price, err = models.ParseMoney(price); err != nil {
		return models.CartItem{}, fmt.Errorf("parse product price: %w", err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &pr.Attributes); err != nil {
			return models.CartItem{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return it, nil
}

func (p *Postgres) CartItems(ctx context.Context, userID int64) ([]models.CartItem, error) {
	if _, err := ensureCart(ctx, p.pool, userID); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, cartItemSelect+` WHERE c.user_id = $1 ORDER BY ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.CartItem, 0)
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) cartItem(ctx context.Context, userID, itemID int64) (models.CartItem, error) {
	return scanCartItem(p.pool.QueryRow(ctx, cartItemSelect+` WHERE c.user_id = $1 AND ci.id = $2`, userID, itemID))
}

func (p *Postgres) AddCartItem(ctx context.Context, userID, productID int64, quantity int) (models.CartItem, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return models.CartItem{}, err
	}
	if !exists {
		return models.CartItem{}, ErrNotFound
	}

	cart, err := ensureCart(ctx, p.pool, userID)
	if err != nil {
		return models.CartItem{}, err
	}

	var itemID int64
	err = p.pool.QueryRow(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id`, cart.ID, productID, quantity).Scan(&itemID)
	if err != nil {
		return models.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return p.cartItem(ctx, userID, itemID)
}

func (p *Postgres) UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int) (models.CartItem, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE cart_items ci SET quantity = $3
		FROM carts c
		WHERE c.id = ci.cart_id AND c.user_id = $1 AND ci.id = $2`, userID, itemID, quantity)
	if err != nil {
		return models.CartItem{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.CartItem{}, ErrNotFound
	}
	return p.cartItem(ctx, userID, itemID)
}

func (p *Postgres) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM cart_items ci
		USING carts c
		WHERE c.id = ci.cart_id AND c.user_id = $1 AND ci.id = $2`, userID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
