package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"mehashop_back_end/internal/models"
)

var productOrderBy = map[string]string{
	"price":  "p.price ASC, p.id ASC",
	"-price": "p.price DESC, p.id ASC",
	"name":   "p.name ASC, p.id ASC",
	"-name":  "p.name DESC, p.id ASC",
	"id":     "p.id ASC",
	"-id":    "p.id DESC",
}

const productColumns = `p.id, p.name, p.description, p.price::text, p.category_id, p.attributes, COALESCE(p.image_key, '')`

func scanProduct(row pgx.Row) (models.Product, error) {
	var (
		p     models.Product
		price string
		attrs []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.CategoryID, &attrs, &p.ImageKey); err != nil {
		return models.Product{}, notFound(err)
	}
	var err error
	if p.Price, err = models.ParseMoney(price); err != nil {
		return models.Product{}, fmt.Errorf("parse product price: %w", err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return models.Product{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return p, nil
}

func (p *Postgres) Products(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, f.MinPrice.String())
		where = append(where, fmt.Sprintf("p.price >= $%d::numeric", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, f.MaxPrice.String())
		where = append(where, fmt.Sprintf("p.price <= $%d::numeric", len(args)))
	}

	orderBy, ok := productOrderBy[f.SortBy]
	if !ok {
		orderBy = productOrderBy["price"]
	}

	sql := `SELECT ` + productColumns + ` FROM products p`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY ` + orderBy

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Product, 0)
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	return out, rows.Err()
}

func (p *Postgres) Product(ctx context.Context, productID int64) (models.Product, error) {
	return scanProduct(p.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, productID))
}

func (p *Postgres) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, parent_id FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
