package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a registered dashboard account.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AppDomain is a registered external origin owning an API key. Named
// AppDomain rather than Domain to avoid stuttering against this package.
type AppDomain struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	DomainName string
	Key        string
	IsActive   bool
	CreatedAt  time.Time
}

// Channel is a channel row scoped to an AppDomain, created lazily on first
// authenticated subscribe.
type Channel struct {
	ID        uuid.UUID
	Name      string
	DomainID  uuid.UUID
	CreatedAt time.Time
}

// WSConnection is an audit row tracking one socket's membership in one
// channel for a domain-authenticated session.
type WSConnection struct {
	ID             uuid.UUID
	ChannelID      *uuid.UUID
	ChannelName    string
	DomainID       uuid.UUID
	SocketID       string
	ConnectedUser  *string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
	Status         string
}

// ChannelCount is a per-channel aggregate of currently connected sockets.
type ChannelCount struct {
	ChannelName     string
	ConnectionCount int64
}

// UserStore persists dashboard accounts.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
}

// AppDomainStore persists registered domains (one domain = one API key).
type AppDomainStore interface {
	Create(ctx context.Context, userID uuid.UUID, domainName, key string) (AppDomain, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]AppDomain, error)
	FindByKey(ctx context.Context, key string) (AppDomain, error)
	SetActive(ctx context.Context, id, userID uuid.UUID, isActive bool) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// ChannelStore persists channel rows and the audit trail of socket
// connections against them.
type ChannelStore interface {
	Ensure(ctx context.Context, name string, domainID uuid.UUID) (Channel, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Channel, error)

	ConnectionInsert(ctx context.Context, channelID *uuid.UUID, channelName string, domainID uuid.UUID, socketID string, connectedUser *string) (uuid.UUID, error)
	ConnectionMarkDisconnected(ctx context.Context, socketID string) error
	ConnectionMarkDisconnectedByChannel(ctx context.Context, socketID, channelName string) error
	ActiveConnectionsByUser(ctx context.Context, userID uuid.UUID) ([]WSConnection, error)
	StatusAggregateByUser(ctx context.Context, userID uuid.UUID) ([]ChannelCount, error)
}
