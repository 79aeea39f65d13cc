package postgres

import (
	"context"

	"github.com/gobarber/gobarber/libs/db"
	"github.com/gobarber/gobarber/services/booking-service/internal/identity"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
)

// UserRepository reads, registers and updates directory users.
type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, provider
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Provider)
	if err != nil {
		return model.User{}, mapError("get user", err)
	}
	return u, nil
}

func (r *UserRepository) IsProvider(ctx context.Context, id string) (bool, error) {
	var provider bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND provider)
	`, id).Scan(&provider)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, mapError("check provider", err)
	}
	return provider, nil
}

// CreateAccount inserts a user. A taken email maps to store.ErrConflict.
func (r *UserRepository) CreateAccount(ctx context.Context, acc identity.Account) (model.User, error) {
	u := acc.User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, provider, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text
	`, u.Name, u.Email, u.Provider, acc.PasswordHash).Scan(&u.ID)
	if err != nil {
		return model.User{}, mapError("create user", err)
	}
	return u, nil
}

func (r *UserRepository) GetAccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	var acc identity.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, provider, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(&acc.User.ID, &acc.User.Name, &acc.User.Email, &acc.User.Provider, &acc.PasswordHash)
	if err != nil {
		return identity.Account{}, mapError("get user by email", err)
	}
	return acc, nil
}

func (r *UserRepository) GetAccount(ctx context.Context, id string) (identity.Account, error) {
	var acc identity.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, provider, password_hash
		FROM users
		WHERE id = $1
	`, id).Scan(&acc.User.ID, &acc.User.Name, &acc.User.Email, &acc.User.Provider, &acc.PasswordHash)
	if err != nil {
		return identity.Account{}, mapError("get account", err)
	}
	return acc, nil
}

// UpdateAccount writes name, email and password hash. The provider flag is
// not changed here. A taken email maps to store.ErrConflict.
func (r *UserRepository) UpdateAccount(ctx context.Context, acc identity.Account) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, updated_at = now()
		WHERE id = $1
		RETURNING id::text, name, email, provider
	`, acc.User.ID, acc.User.Name, acc.User.Email, acc.PasswordHash).Scan(&u.ID, &u.Name, &u.Email, &u.Provider)
	if err != nil {
		return model.User{}, mapError("update account", err)
	}
	return u, nil
}
