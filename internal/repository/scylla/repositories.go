package scylla

import (
	"context"
	"errors"
	"time"

	"botops-console/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrBotNotFound     = errors.New("bot not found")
	ErrLeadNotFound    = errors.New("lead not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// UserRepository is the credential store contract the services depend on.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateIPAllowlist(ctx context.Context, userID string, allowlist []string) error
	UpdateLastLogin(ctx context.Context, userID, sourceAddress string, at time.Time) error
}

// SessionRepository persists login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Deactivate(ctx context.Context, token string) error
	Delete(ctx context.Context, token string) error
}

// BotRepository persists the bot registry.
type BotRepository interface {
	Create(ctx context.Context, bot *models.Bot) error
	GetByID(ctx context.Context, botID string) (*models.Bot, error)
	List(ctx context.Context) ([]*models.Bot, error)
	Update(ctx context.Context, bot *models.Bot) error
	Delete(ctx context.Context, botID string) error
}

// LeadRepository persists captured leads.
type LeadRepository interface {
	Create(ctx context.Context, lead *models.Lead) error
	GetByID(ctx context.Context, leadID string) (*models.Lead, error)
	List(ctx context.Context, limit int) ([]*models.Lead, error)
	Update(ctx context.Context, lead *models.Lead) error
	Delete(ctx context.Context, leadID string) error
}
