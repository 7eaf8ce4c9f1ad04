package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"mehashop_back_end/internal/models"
)

const userColumns = `id, username, COALESCE(email, ''), COALESCE(name, ''), COALESCE(password, ''),
	provider, COALESCE(provider_id, ''), created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.Password, &u.Provider, &u.ProviderID, &u.CreatedAt)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	if u.Provider == "" {
		u.Provider = "local"
	}
	err := p.pool.QueryRow(ctx, `INSERT INTO users (username, email, name, password, provider, provider_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''))
		RETURNING id, created_at`,
		u.Username, strings.ToLower(u.Email), u.Name, u.Password, u.Provider, u.ProviderID,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) UserByID(ctx context.Context, userID int64) (models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// UserByLogin accepte indifféremment le nom d'utilisateur ou l'email.
func (p *Postgres) UserByLogin(ctx context.Context, login string) (models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users
		WHERE username = $1 OR email = lower($1) LIMIT 1`, login))
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email))
}

func (p *Postgres) UserByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users
		WHERE provider = $1 AND provider_id = $2`, provider, providerID))
}

func (p *Postgres) LinkProvider(ctx context.Context, userID int64, provider, providerID string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET provider = $2, provider_id = $3 WHERE id = $1`,
		userID, provider, providerID)
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
