package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Store is the account-backed identity provider.
type Store struct {
	DB         *pgxpool.Pool
	BcryptCost int
}

func (s *Store) cost() int {
	if s.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return s.BcryptCost
}

// CreateOrLinkAccount creates an account for r.Email. When the email is
// taken the result is an *ExistsError carrying the existing id, so callers
// can link to it instead.
func (s *Store) CreateOrLinkAccount(ctx context.Context, r Registration) (uuid.UUID, error) {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return uuid.Nil, errors.New("accounts.Create: email required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost())
	if err != nil {
		return uuid.Nil, fmt.Errorf("accounts.Create hash: %w", err)
	}
	if r.Role == "" {
		r.Role = RoleCustomer
	}
	if r.Tier == "" {
		r.Tier = EntryTier
	}

	var id uuid.UUID
	err = s.DB.QueryRow(ctx, `
		INSERT INTO app_users(id, email, password_hash, role, tier, has_updated_default_password)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((lower(email))) DO NOTHING
		RETURNING id`,
		uuid.New(), email, string(hash), r.Role, r.Tier, r.HasUpdatedDefaultPassword).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("accounts.Create: %w", err)
	}

	existing, err := s.FindByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Nil, &ExistsError{ID: existing.ID}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (Account, error) {
	return s.getBy(ctx, `lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.getBy(ctx, `id = $1`, id)
}

func (s *Store) getBy(ctx context.Context, where string, arg any) (Account, error) {
	var a Account
	err := s.DB.QueryRow(ctx, `
		SELECT id, email, role, tier, has_updated_default_password, loyalty_points, created_at
		FROM app_users WHERE `+where, arg).
		Scan(&a.ID, &a.Email, &a.Role, &a.Tier, &a.HasUpdatedDefaultPassword, &a.LoyaltyPoints, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("accounts.Get: %w", err)
	}
	return a, nil
}

// CheckPassword reports whether password matches the account's hash.
func (s *Store) CheckPassword(ctx context.Context, email, password string) (bool, error) {
	var hash string
	err := s.DB.QueryRow(ctx, `SELECT password_hash FROM app_users WHERE lower(email) = lower($1)`, email).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrAccountNotFound
	}
	if err != nil {
		return false, fmt.Errorf("accounts.CheckPassword: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// RedeemPoints deducts points only if the balance covers them.
func (s *Store) RedeemPoints(ctx context.Context, id uuid.UUID, points int) error {
	if points <= 0 {
		return nil
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE app_users SET loyalty_points = loyalty_points - $2
		WHERE id = $1 AND loyalty_points >= $2`, id, points)
	if err != nil {
		return fmt.Errorf("accounts.RedeemPoints: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrInsufficientPoints
}

func (s *Store) RefundPoints(ctx context.Context, id uuid.UUID, points int) error {
	if points <= 0 {
		return nil
	}
	ct, err := s.DB.Exec(ctx, `UPDATE app_users SET loyalty_points = loyalty_points + $2 WHERE id = $1`, id, points)
	if err != nil {
		return fmt.Errorf("accounts.RefundPoints: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
