package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"botops-console/internal/config"
	"botops-console/internal/util"
)

// PreparedStatements holds the statements used by the repositories
type PreparedStatements struct {
	CreateUser        *gocql.Query
	CreateEmailToUser *gocql.Query
	GetUserByID       *gocql.Query
	GetUserByEmail    *gocql.Query
	UpdatePassword    *gocql.Query
	UpdateAllowlist   *gocql.Query
	UpdateLastLogin   *gocql.Query

	CreateSession     *gocql.Query
	GetSessionByToken *gocql.Query
	DeactivateSession *gocql.Query
	DeleteSession     *gocql.Query

	CreateBot *gocql.Query
	GetBot    *gocql.Query
	ListBots  *gocql.Query
	UpdateBot *gocql.Query
	DeleteBot *gocql.Query

	CreateLead *gocql.Query
	GetLead    *gocql.Query
	ListLeads  *gocql.Query
	UpdateLead *gocql.Query
	DeleteLead *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, email, name, password_hash, role,
            is_active, ip_allowlist, created_at, updated_at, last_login_at, last_login_ip
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToUser = s.Session.Query(`
        INSERT INTO email_to_user (email, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, email, name, password_hash, role,
            is_active, ip_allowlist, created_at, updated_at, last_login_at, last_login_ip
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByEmail = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email = ?`)

	prepared.UpdatePassword = s.Session.Query(`
        UPDATE users SET password_hash = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateAllowlist = s.Session.Query(`
        UPDATE users SET ip_allowlist = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE users SET last_login_at = ?, last_login_ip = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateSession = s.Session.Query(`
        INSERT INTO sessions (token, user_id, source_address, client_desc,
            is_active, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?, ?, ?) USING TTL ?`)

	prepared.GetSessionByToken = s.Session.Query(`
        SELECT token, user_id, source_address, client_desc, is_active, created_at, expires_at
        FROM sessions WHERE token = ?`)

	prepared.DeactivateSession = s.Session.Query(`
        UPDATE sessions SET is_active = false WHERE token = ?`)

	prepared.DeleteSession = s.Session.Query(`
        DELETE FROM sessions WHERE token = ?`)

	prepared.CreateBot = s.Session.Query(`
        INSERT INTO bots (bot_id, name, job_name, target_site, schedule,
            prompt_id, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetBot = s.Session.Query(`
        SELECT bot_id, name, job_name, target_site, schedule, prompt_id,
            status, created_at, updated_at
        FROM bots WHERE bot_id = ?`)

	prepared.ListBots = s.Session.Query(`
        SELECT bot_id, name, job_name, target_site, schedule, prompt_id,
            status, created_at, updated_at
        FROM bots`)

	prepared.UpdateBot = s.Session.Query(`
        UPDATE bots SET name = ?, job_name = ?, target_site = ?, schedule = ?,
            prompt_id = ?, status = ?, updated_at = ?
        WHERE bot_id = ?`)

	prepared.DeleteBot = s.Session.Query(`
        DELETE FROM bots WHERE bot_id = ?`)

	prepared.CreateLead = s.Session.Query(`
        INSERT INTO leads (lead_id, bot_id, name, company, contact_encrypted,
            contact_key_id, source_url, score, status, captured_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetLead = s.Session.Query(`
        SELECT lead_id, bot_id, name, company, contact_encrypted, contact_key_id,
            source_url, score, status, captured_at
        FROM leads WHERE lead_id = ?`)

	prepared.ListLeads = s.Session.Query(`
        SELECT lead_id, bot_id, name, company, contact_encrypted, contact_key_id,
            source_url, score, status, captured_at
        FROM leads`)

	prepared.UpdateLead = s.Session.Query(`
        UPDATE leads SET name = ?, company = ?, contact_encrypted = ?, contact_key_id = ?,
            source_url = ?, score = ?, status = ?
        WHERE lead_id = ?`)

	prepared.DeleteLead = s.Session.Query(`
        DELETE FROM leads WHERE lead_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
