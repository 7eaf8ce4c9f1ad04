package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mehashop_back_end/internal/models"
)

// querier est commun à *pgxpool.Pool et pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, status, created_at, total_price::text,
	COALESCE(payment_id, ''), COALESCE(payment_status, ''), COALESCE(payment_method, ''),
	COALESCE(confirmation_url, '')`

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o     models.Order
		total string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.CreatedAt, &total,
		&o.PaymentID, &o.PaymentStatus, &o.PaymentMethod, &o.ConfirmationURL)
	if err != nil {
		return models.Order{}, notFound(err)
	}
	if o.TotalPrice, err = models.ParseMoney(total); err != nil {
		return models.Order{}, fmt.Errorf("parse total_price: %w", err)
	}
	return o, nil
}

func (p *Postgres) Order(ctx context.Context, orderID int64) (models.Order, error) {
	return scanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

func (p *Postgres) OrderByPaymentID(ctx context.Context, paymentID string) (models.Order, error) {
	return scanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1`, paymentID))
}

func (p *Postgres) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return orderItems(ctx, p.pool, orderID)
}

func (p *Postgres) OrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func orderItems(ctx context.Context, q querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, price::text
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OrderItem
	for rows.Next() {
		var (
			it    models.OrderItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.Price, err = models.ParseMoney(price); err != nil {
			return nil, fmt.Errorf("parse item price: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// pgTx implémente Tx au-dessus d'une transaction pgx.
type pgTx struct {
	q querier
}

func (t *pgTx) CartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	// Le verrou sur la ligne du panier sérialise deux créations de commande concurrentes.
	var cartID int64
	err := t.q.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := t.q.Query(ctx, `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, p.price::text
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
		FOR UPDATE OF ci`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var (
			l     models.CartLine
			price string
		)
		if err := rows.Scan(&l.ItemID, &l.CartID, &l.ProductID, &l.Quantity, &price); err != nil {
			return nil, err
		}
		if l.Price, err = models.ParseMoney(price); err != nil {
			return nil, fmt.Errorf("parse product price: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *pgTx) ClearCart(ctx context.Context, cartID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, order *models.Order) error {
	return t.q.QueryRow(ctx, `INSERT INTO orders (user_id, status, total_price)
		VALUES ($1, $2, $3::numeric) RETURNING id, created_at`,
		order.UserID, order.Status, order.TotalPrice.String(),
	).Scan(&order.ID, &order.CreatedAt)
}

func (t *pgTx) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	for i := range items {
		it := &items[i]
		err := t.q.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4::numeric) RETURNING id`,
			it.OrderID, it.ProductID, it.Quantity, it.Price.String(),
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item (product %d): %w", it.ProductID, err)
		}
	}
	return nil
}

func (t *pgTx) OrderForUpdate(ctx context.Context, orderID int64) (models.Order, error) {
	return scanOrder(t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
}

func (t *pgTx) OrderByPaymentIDForUpdate(ctx context.Context, paymentID string) (models.Order, error) {
	return scanOrder(t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1 FOR UPDATE`, paymentID))
}

func (t *pgTx) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return orderItems(ctx, t.q, orderID)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o models.Order) error {
	tag, err := t.q.Exec(ctx, `UPDATE orders SET status = $2, total_price = $3::numeric,
		payment_id = NULLIF($4, ''), payment_status = NULLIF($5, ''), payment_method = NULLIF($6, ''),
		confirmation_url = NULLIF($7, '')
		WHERE id = $1`,
		o.ID, o.Status, o.TotalPrice.String(), o.PaymentID, o.PaymentStatus, o.PaymentMethod, o.ConfirmationURL)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendOutbox(ctx context.Context, e models.OutboxEvent) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, err := t.q.Exec(ctx, `INSERT INTO outbox_events (event_id, type, order_id, user_id, payload)
		VALUES ($1, $2, $3, $4, $5)`, e.EventID, e.Type, e.OrderID, e.UserID, string(payload))
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
