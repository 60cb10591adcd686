package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
	"github.com/mwillis/notifd/internal/domain"
)

// AppDomainStore implements domain.AppDomainStore using PostgreSQL. One
// domain row is one API key.
type AppDomainStore struct {
	pool *pgxpool.Pool
}

// NewAppDomainStore creates a new AppDomainStore backed by the given pool.
func NewAppDomainStore(pool *pgxpool.Pool) *AppDomainStore {
	return &AppDomainStore{pool: pool}
}

func (s *AppDomainStore) Create(ctx context.Context, userID uuid.UUID, domainName, key string) (domain.AppDomain, error) {
	normalized := strings.ToLower(strings.TrimSpace(domainName))

	const query = `
		INSERT INTO domains (user_id, domain_name, key)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, domain_name) DO NOTHING
		RETURNING id, user_id, domain_name, key, is_active, created_at`

	var d domain.AppDomain
	err := s.pool.QueryRow(ctx, query, userID, normalized, key).
		Scan(&d.ID, &d.UserID, &d.DomainName, &d.Key, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AppDomain{}, fmt.Errorf("%w: domain already exists for this user", domain.ErrValidation)
	}
	if err != nil {
		return domain.AppDomain{}, fmt.Errorf("%w: create domain: %v", domain.ErrDb, err)
	}
	return d, nil
}

func (s *AppDomainStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.AppDomain, error) {
	const query = `
		SELECT id, user_id, domain_name, key, is_active, created_at
		FROM domains WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list domains: %v", domain.ErrDb, err)
	}
	defer rows.Close()

	var out []domain.AppDomain
	for rows.Next() {
		var d domain.AppDomain
		if err := rows.Scan(&d.ID, &d.UserID, &d.DomainName, &d.Key, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan domain: %v", domain.ErrDb, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list domains rows: %v", domain.ErrDb, err)
	}
	return out, nil
}

func (s *AppDomainStore) FindByKey(ctx context.Context, key string) (domain.AppDomain, error) {
	const query = `
		SELECT id, user_id, domain_name, key, is_active, created_at
		FROM domains WHERE key = $1 AND is_active = true`

	var d domain.AppDomain
	err := s.pool.QueryRow(ctx, query, key).
		Scan(&d.ID, &d.UserID, &d.DomainName, &d.Key, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AppDomain{}, fmt.Errorf("%w: invalid or inactive api key", domain.ErrAuth)
	}
	if err != nil {
		return domain.AppDomain{}, fmt.Errorf("%w: find domain by key: %v", domain.ErrDb, err)
	}
	return d, nil
}

func (s *AppDomainStore) SetActive(ctx context.Context, id, userID uuid.UUID, isActive bool) error {
	const query = `UPDATE domains SET is_active = $1 WHERE id = $2 AND user_id = $3`

	tag, err := s.pool.Exec(ctx, query, isActive, id, userID)
	if err != nil {
		return fmt.Errorf("%w: set domain active: %v", domain.ErrDb, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: domain not found", domain.ErrNotFound)
	}
	return nil
}

func (s *AppDomainStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	const query = `DELETE FROM domains WHERE id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("%w: delete domain: %v", domain.ErrDb, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: domain not found", domain.ErrNotFound)
	}
	return nil
}

var _ domain.AppDomainStore = (*AppDomainStore)(nil)
