package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
	"github.com/mwillis/notifd/internal/domain"
)

// ChannelStore implements domain.ChannelStore using PostgreSQL.
type ChannelStore struct {
	pool *pgxpool.Pool
}

// NewChannelStore creates a new ChannelStore backed by the given pool.
func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func (s *ChannelStore) Ensure(ctx context.Context, name string, domainID uuid.UUID) (domain.Channel, error) {
	const insert = `
		INSERT INTO channels (name, domain_id)
		VALUES ($1, $2)
		ON CONFLICT (name, domain_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, insert, name, domainID); err != nil {
		return domain.Channel{}, fmt.Errorf("%w: ensure channel: %v", domain.ErrDb, err)
	}

	const query = `SELECT id, name, domain_id, created_at FROM channels WHERE name = $1 AND domain_id = $2`
	var c domain.Channel
	err := s.pool.QueryRow(ctx, query, name, domainID).Scan(&c.ID, &c.Name, &c.DomainID, &c.CreatedAt)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("%w: fetch ensured channel: %v", domain.ErrDb, err)
	}
	return c, nil
}

func (s *ChannelStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	const query = `
		SELECT c.id, c.name, c.domain_id, c.created_at
		FROM channels c
		JOIN domains d ON d.id = c.domain_id
		WHERE d.user_id = $1
		ORDER BY c.created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list channels: %v", domain.ErrDb, err)
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		var c domain.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.DomainID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan channel: %v", domain.ErrDb, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list channels rows: %v", domain.ErrDb, err)
	}
	return out, nil
}

func (s *ChannelStore) ConnectionInsert(ctx context.Context, channelID *uuid.UUID, channelName string, domainID uuid.UUID, socketID string, connectedUser *string) (uuid.UUID, error) {
	const query = `
		INSERT INTO ws_connections (channel_id, channel_name, domain_id, socket_id, connected_user, status)
		VALUES ($1, $2, $3, $4, $5, 'connected')
		RETURNING id`

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query, channelID, channelName, domainID, socketID, connectedUser).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: insert ws connection: %v", domain.ErrDb, err)
	}
	return id, nil
}

func (s *ChannelStore) ConnectionMarkDisconnected(ctx context.Context, socketID string) error {
	const query = `
		UPDATE ws_connections SET status = 'disconnected', disconnected_at = NOW()
		WHERE socket_id = $1 AND status = 'connected'`
	if _, err := s.pool.Exec(ctx, query, socketID); err != nil {
		return fmt.Errorf("%w: mark ws connection disconnected: %v", domain.ErrDb, err)
	}
	return nil
}

func (s *ChannelStore) ConnectionMarkDisconnectedByChannel(ctx context.Context, socketID, channelName string) error {
	const query = `
		UPDATE ws_connections SET status = 'disconnected', disconnected_at = NOW()
		WHERE socket_id = $1 AND channel_name = $2 AND status = 'connected'`
	if _, err := s.pool.Exec(ctx, query, socketID, channelName); err != nil {
		return fmt.Errorf("%w: mark ws connection disconnected by channel: %v", domain.ErrDb, err)
	}
	return nil
}

func (s *ChannelStore) ActiveConnectionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.WSConnection, error) {
	const query = `
		SELECT w.id, w.channel_id, w.channel_name, w.domain_id, w.socket_id, w.connected_user, w.connected_at, w.disconnected_at, w.status
		FROM ws_connections w
		JOIN domains d ON d.id = w.domain_id
		WHERE d.user_id = $1 AND w.status = 'connected'
		ORDER BY w.connected_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list active connections: %v", domain.ErrDb, err)
	}
	defer rows.Close()

	var out []domain.WSConnection
	for rows.Next() {
		var c domain.WSConnection
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.ChannelName, &c.DomainID, &c.SocketID, &c.ConnectedUser, &c.ConnectedAt, &c.DisconnectedAt, &c.Status); err != nil {
			return nil, fmt.Errorf("%w: scan ws connection: %v", domain.ErrDb, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list active connections rows: %v", domain.ErrDb, err)
	}
	return out, nil
}

func (s *ChannelStore) StatusAggregateByUser(ctx context.Context, userID uuid.UUID) ([]domain.ChannelCount, error) {
	const query = `
		SELECT w.channel_name, COUNT(*)
		FROM ws_connections w
		JOIN domains d ON d.id = w.domain_id
		WHERE d.user_id = $1 AND w.status = 'connected'
		GROUP BY w.channel_name
		ORDER BY COUNT(*) DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: status aggregate: %v", domain.ErrDb, err)
	}
	defer rows.Close()

	var out []domain.ChannelCount
	for rows.Next() {
		var c domain.ChannelCount
		if err := rows.Scan(&c.ChannelName, &c.ConnectionCount); err != nil {
			return nil, fmt.Errorf("%w: scan status aggregate: %v", domain.ErrDb, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: status aggregate rows: %v", domain.ErrDb, err)
	}
	return out, nil
}

var _ domain.ChannelStore = (*ChannelStore)(nil)
