package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"botops-console/internal/bucketing"
	"botops-console/internal/models"
	"botops-console/internal/util"
)

// ScyllaUserRepository stores users across two tables: the users table
// partitioned by (user_bucket, user_id) and an email_to_user lookup table.
// Both are written together in a logged batch so the mapping never drifts.
type ScyllaUserRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewScyllaUserRepository(client *ScyllaClient, bucketing *bucketing.BucketingManager) *ScyllaUserRepository {
	return &ScyllaUserRepository{
		client:    client,
		bucketing: bucketing,
	}
}

func (r *ScyllaUserRepository) Create(ctx context.Context, user *models.User) error {
	existing, err := r.GetByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check existing email: %w", err)
	}
	if existing != nil {
		return ErrEmailTaken
	}

	user.UserBucket = r.bucketing.GetUserBucket(user.UserID)

	batch := r.client.Session.NewBatch(gocql.LoggedBatch)
	batch.WithContext(ctx)

	batch.Query(r.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.Email, user.Name, user.PasswordHash,
		user.Role, user.IsActive, user.IPAllowlist, user.CreatedAt,
		user.UpdatedAt, user.LastLoginAt, user.LastLoginIP)

	batch.Query(r.client.Prepared.CreateEmailToUser.Statement(),
		user.Email, user.UserBucket, user.UserID, user.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.String("role", user.Role))

	return nil
}

func (r *ScyllaUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	bucket := r.bucketing.GetUserBucket(userID)
	user := &models.User{}

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.Email, &user.Name,
		&user.PasswordHash, &user.Role, &user.IsActive, &user.IPAllowlist,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt, &user.LastLoginIP)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrUserNotFound
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *ScyllaUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByEmail.Bind(email).WithContext(ctx)

	err := r.client.ScanWithRetry(query, &bucket, &userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrUserNotFound
		}
		util.Error("Failed to look up user by email", zap.Error(err))
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return r.GetByID(ctx, userID)
}

func (r *ScyllaUserRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	bucket := r.bucketing.GetUserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdatePassword.Bind(passwordHash, now, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	util.Info("Password hash updated", zap.String("user_id", userID))
	return nil
}

func (r *ScyllaUserRepository) UpdateIPAllowlist(ctx context.Context, userID string, allowlist []string) error {
	bucket := r.bucketing.GetUserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateAllowlist.Bind(allowlist, now, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update ip allowlist: %w", err)
	}

	util.Info("IP allowlist updated",
		zap.String("user_id", userID),
		zap.Int("entries", len(allowlist)))
	return nil
}

func (r *ScyllaUserRepository) UpdateLastLogin(ctx context.Context, userID, sourceAddress string, at time.Time) error {
	bucket := r.bucketing.GetUserBucket(userID)

	query := r.client.Prepared.UpdateLastLogin.Bind(at, sourceAddress, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
