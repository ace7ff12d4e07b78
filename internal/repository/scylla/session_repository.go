package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"botops-console/internal/models"
	"botops-console/internal/util"
)

// ScyllaSessionRepository is the durable session store. Rows carry a TTL so
// Scylla reclaims stale sessions on its own; deactivation is an explicit
// write so a revoked token stays revoked for its remaining lifetime.
type ScyllaSessionRepository struct {
	client *ScyllaClient
}

func NewScyllaSessionRepository(client *ScyllaClient) *ScyllaSessionRepository {
	return &ScyllaSessionRepository{client: client}
}

func (r *ScyllaSessionRepository) Create(ctx context.Context, session *models.Session) error {
	ttl := int(session.ExpiresAt.Sub(session.CreatedAt).Seconds())
	if ttl <= 0 {
		return fmt.Errorf("session expiry %v is not after creation", session.ExpiresAt)
	}

	// Row TTL is double the logical lifetime so a deactivated-but-unexpired
	// row remains readable until well past its expiry.
	query := r.client.Prepared.CreateSession.Bind(
		session.Token, session.UserID, session.SourceAddress, session.ClientDesc,
		session.IsActive, session.CreatedAt, session.ExpiresAt, ttl*2).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create session",
			zap.String("user_id", session.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Debug("Session created",
		zap.String("user_id", session.UserID),
		zap.Time("expires_at", session.ExpiresAt))

	return nil
}

func (r *ScyllaSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	session := &models.Session{}

	query := r.client.Prepared.GetSessionByToken.Bind(token).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&session.Token, &session.UserID, &session.SourceAddress, &session.ClientDesc,
		&session.IsActive, &session.CreatedAt, &session.ExpiresAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		util.Error("Failed to get session", zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (r *ScyllaSessionRepository) Deactivate(ctx context.Context, token string) error {
	query := r.client.Prepared.DeactivateSession.Bind(token).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

func (r *ScyllaSessionRepository) Delete(ctx context.Context, token string) error {
	query := r.client.Prepared.DeleteSession.Bind(token).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
