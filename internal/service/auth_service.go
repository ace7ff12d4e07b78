package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"botops-console/internal/bucketing"
	"botops-console/internal/config"
	"botops-console/internal/hashing"
	"botops-console/internal/models"
	"botops-console/internal/repository/scylla"
	"botops-console/internal/util"
)

const sessionTokenBytes = 32

// Notifier delivers a one-time login code out-of-band.
type Notifier interface {
	SendLoginCode(ctx context.Context, name, code string, expiresIn time.Duration) error
}

// AuditRecorder appends a security event to the activity log, best-effort.
type AuditRecorder interface {
	Record(event models.SecurityEvent)
}

// SessionCache is the optional hot cache in front of the session store.
type SessionCache interface {
	Store(ctx context.Context, session *models.Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*models.Session, error)
	Invalidate(ctx context.Context, token string) error
}

// LoginChallenge is the result of a successful first factor: an opaque
// handle for the pending code, never the code itself.
type LoginChallenge struct {
	CodeID    string
	ExpiresIn time.Duration
}

// LoginResult is the outcome of a completed two-factor login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.PublicProfile
}

// AuthService orchestrates the two-phase login protocol and the session
// lifecycle. One instance is constructed at startup; Close stops its
// background sweeper.
type AuthService struct {
	cfg      *config.Config
	users    scylla.UserRepository
	sessions scylla.SessionRepository
	cache    SessionCache
	hasher   *hashing.Hasher
	notifier Notifier
	audit    AuditRecorder
	codes    *CodeCache
	throttle *LoginThrottle

	now func() time.Time

	stopSweeper chan struct{}
	sweeperDone sync.WaitGroup
	closeOnce   sync.Once
}

func NewAuthService(
	cfg *config.Config,
	users scylla.UserRepository,
	sessions scylla.SessionRepository,
	cache SessionCache,
	hasher *hashing.Hasher,
	notifier Notifier,
	audit AuditRecorder,
	bm *bucketing.BucketingManager,
) *AuthService {
	s := &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		cache:    cache,
		hasher:   hasher,
		notifier: notifier,
		audit:    audit,
		codes:    NewCodeCache(bm),
		throttle: NewLoginThrottle(bm, cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutWindow, cfg.Auth.ThrottleRetention),
		now:      time.Now,

		stopSweeper: make(chan struct{}),
	}

	if cfg.Auth.TrustedMode {
		util.Warn("TRUSTED MODE ENABLED: notification dispatch is skipped and trusted addresses bypass IP allow-lists",
			zap.Strings("trusted_addresses", cfg.Auth.TrustedAddresses))
	}

	s.sweeperDone.Add(1)
	go s.runSweeper()

	return s
}

// VerifyCredentials is the first factor: password check, throttle, IP
// allow-list, code issuance, and notification dispatch. The code itself is
// never returned to the caller.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, password, sourceAddr, clientDesc string) (*LoginChallenge, error) {
	email = util.NormalizeEmail(email)

	if allowed, retryAfter := s.throttle.CheckAllowed(sourceAddr); !allowed {
		s.audit.Record(models.SecurityEvent{
			EventType:     models.EventLoginRateLimited,
			Email:         email,
			SourceAddress: sourceAddr,
			ClientDesc:    clientDesc,
		})
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, scylla.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// Absent and inactive users fail identically to a wrong password so the
	// endpoint cannot be used for account enumeration.
	if user == nil || !user.IsActive {
		s.recordLoginFailure(email, sourceAddr, clientDesc, "unknown or inactive user")
		return nil, ErrInvalidCredentials
	}

	match, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		s.recordLoginFailure(email, sourceAddr, clientDesc, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if !user.AllowsIP(sourceAddr) && !s.isTrustedAddress(sourceAddr) {
		s.throttle.RecordFailure(sourceAddr)
		s.audit.Record(models.SecurityEvent{
			EventType:     models.EventLoginIPRejected,
			UserID:        user.UserID,
			Email:         email,
			SourceAddress: sourceAddr,
			ClientDesc:    clientDesc,
		})
		return nil, ErrAccessDenied
	}

	code, err := generateNumericCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	vc := &models.VerificationCode{
		CodeID:        uuid.New().String(),
		Code:          code,
		Email:         email,
		SourceAddress: sourceAddr,
		ClientDesc:    clientDesc,
		ExpiresAt:     s.now().Add(s.cfg.Auth.CodeTTL),
	}
	s.codes.Store(vc)

	if s.cfg.Auth.TrustedMode {
		// Trusted mode is for local operation only: the code is surfaced in
		// the log instead of being dispatched.
		util.Warn("Trusted mode: verification code not dispatched",
			zap.String("code_id", vc.CodeID),
			zap.String("code", code))
	} else {
		notifyCtx, cancel := context.WithTimeout(ctx, s.cfg.Notify.Timeout)
		err := s.notifier.SendLoginCode(notifyCtx, user.Name, code, s.cfg.Auth.CodeTTL)
		cancel()
		if err != nil {
			s.codes.Delete(vc.CodeID)
			s.audit.Record(models.SecurityEvent{
				EventType:     models.EventNotificationFailed,
				UserID:        user.UserID,
				Email:         email,
				SourceAddress: sourceAddr,
				ClientDesc:    clientDesc,
			})
			util.Error("Failed to dispatch verification code", zap.Error(err))
			return nil, ErrNotificationFailed
		}
	}

	s.audit.Record(models.SecurityEvent{
		EventType:     models.EventLoginStepSuccess,
		UserID:        user.UserID,
		Email:         email,
		SourceAddress: sourceAddr,
		ClientDesc:    clientDesc,
	})

	return &LoginChallenge{
		CodeID:    vc.CodeID,
		ExpiresIn: s.cfg.Auth.CodeTTL,
	}, nil
}

// VerifyCode is the second factor: it redeems a pending code for a session.
func (s *AuthService) VerifyCode(ctx context.Context, codeID, suppliedCode, sourceAddr string) (*LoginResult, error) {
	vc, ok := s.codes.Get(codeID)
	if !ok {
		s.recordCodeRejection(codeID, sourceAddr, "unknown code id")
		return nil, ErrInvalidOrExpiredCode
	}

	if vc.Expired(s.now()) {
		s.codes.Delete(codeID)
		s.recordCodeRejection(codeID, sourceAddr, "code expired")
		return nil, ErrCodeExpired
	}

	if vc.Used {
		s.recordCodeRejection(codeID, sourceAddr, "code replayed")
		return nil, ErrCodeAlreadyUsed
	}

	// The second factor must complete from the network origin that started
	// the login; a code relayed to another address is rejected outright.
	if vc.SourceAddress != sourceAddr {
		s.recordCodeRejection(codeID, sourceAddr, "source address mismatch")
		return nil, ErrSecurityMismatch
	}

	if subtle.ConstantTimeCompare([]byte(vc.Code), []byte(suppliedCode)) != 1 {
		guesses := s.codes.RecordWrongGuess(codeID)
		if guesses >= s.cfg.Auth.CodeMaxGuesses {
			s.codes.Delete(codeID)
			s.recordCodeRejection(codeID, sourceAddr, "guess limit reached, code invalidated")
			return nil, ErrTooManyCodeAttempts
		}
		s.recordCodeRejection(codeID, sourceAddr, "wrong code")
		return nil, ErrInvalidCode
	}

	// The used entry stays in the cache until it expires, so a replay of
	// the same code is reported as such rather than as an unknown code.
	if !s.codes.MarkUsed(codeID) {
		s.recordCodeRejection(codeID, sourceAddr, "code replayed")
		return nil, ErrCodeAlreadyUsed
	}

	user, err := s.users.GetByEmail(ctx, vc.Email)
	if err != nil && !errors.Is(err, scylla.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to re-fetch user: %w", err)
	}
	if user == nil || !user.IsActive {
		s.recordCodeRejection(codeID, sourceAddr, "user unavailable")
		return nil, ErrUserUnavailable
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now().UTC()
	session := &models.Session{
		Token:         token,
		UserID:        user.UserID,
		SourceAddress: sourceAddr,
		ClientDesc:    vc.ClientDesc,
		IsActive:      true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.Auth.SessionTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Store(ctx, session, s.cfg.Auth.SessionTTL); err != nil {
			util.Warn("Failed to cache session", zap.Error(err))
		}
	}

	s.throttle.Clear(sourceAddr)

	if err := s.users.UpdateLastLogin(ctx, user.UserID, sourceAddr, now); err != nil {
		util.Warn("Failed to record last login", zap.Error(err))
	}

	s.audit.Record(models.SecurityEvent{
		EventType:     models.EventCodeVerified,
		UserID:        user.UserID,
		Email:         user.Email,
		SourceAddress: sourceAddr,
		ClientDesc:    vc.ClientDesc,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user.Public(),
	}, nil
}

// VerifySession gates every protected request. The success path is
// side-effect-free; expiry and orphaned sessions are lazily deactivated.
func (s *AuthService) VerifySession(ctx context.Context, token string) (*models.User, *models.Session, error) {
	if token == "" {
		return nil, nil, ErrInvalidSession
	}

	session, err := s.lookupSession(ctx, token)
	if err != nil {
		if errors.Is(err, scylla.ErrSessionNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if !session.IsActive {
		return nil, nil, ErrInvalidSession
	}

	if session.Expired(s.now()) {
		s.deactivateSession(ctx, token)
		return nil, nil, ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil && !errors.Is(err, scylla.ErrUserNotFound) {
		return nil, nil, fmt.Errorf("failed to look up session owner: %w", err)
	}
	if user == nil || !user.IsActive {
		s.deactivateSession(ctx, token)
		return nil, nil, ErrInvalidSession
	}

	return user, session, nil
}

// Logout revokes a session and reports whether one existed.
func (s *AuthService) Logout(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	session, err := s.lookupSession(ctx, token)
	if err != nil {
		if errors.Is(err, scylla.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up session: %w", err)
	}

	if err := s.sessions.Deactivate(ctx, token); err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		util.Warn("Failed to delete session row", zap.Error(err))
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, token); err != nil {
			util.Warn("Failed to invalidate session cache", zap.Error(err))
		}
	}

	s.audit.Record(models.SecurityEvent{
		EventType:     models.EventLogout,
		UserID:        session.UserID,
		SourceAddress: session.SourceAddress,
		ClientDesc:    session.ClientDesc,
	})

	return true, nil
}

// ChangePassword re-verifies the current password before accepting the new
// one. The stored hash is untouched on mismatch.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrUserNotFound) {
			return ErrUserUnavailable
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	match, err := s.hasher.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify current password: %w", err)
	}
	if !match {
		s.audit.Record(models.SecurityEvent{
			EventType: models.EventPasswordRejected,
			UserID:    userID,
			Email:     user.Email,
		})
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return fmt.Errorf("failed to persist new password: %w", err)
	}

	s.audit.Record(models.SecurityEvent{
		EventType: models.EventPasswordChanged,
		UserID:    userID,
		Email:     user.Email,
	})

	return nil
}

// UpdateIPAllowlist replaces the user's allow-list wholesale.
func (s *AuthService) UpdateIPAllowlist(ctx context.Context, userID string, addresses []string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrUserNotFound) {
			return ErrUserUnavailable
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	cleaned := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			cleaned = append(cleaned, addr)
		}
	}

	if err := s.users.UpdateIPAllowlist(ctx, userID, cleaned); err != nil {
		return fmt.Errorf("failed to persist allow-list: %w", err)
	}

	s.audit.Record(models.SecurityEvent{
		EventType: models.EventAllowlistUpdated,
		UserID:    userID,
		Email:     user.Email,
		Details:   strings.Join(cleaned, ","),
	})

	return nil
}

// EnsureAdmin provisions the configured admin identity if it does not exist.
func (s *AuthService) EnsureAdmin(ctx context.Context) error {
	email := util.NormalizeEmail(s.cfg.Auth.AdminEmail)

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, scylla.ErrUserNotFound) {
		return fmt.Errorf("failed to check admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	if s.cfg.Auth.AdminPassword == "" {
		util.Warn("Admin user absent and AUTH_ADMIN_PASSWORD unset, skipping bootstrap",
			zap.String("email", email))
		return nil
	}

	hash, err := s.hasher.HashPassword(s.cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		UserID:       uuid.New().String(),
		Email:        email,
		Name:         s.cfg.Auth.AdminName,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, scylla.ErrEmailTaken) {
			return nil
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	util.Info("Admin user provisioned", zap.String("email", email))
	return nil
}

// Close stops the background sweeper. Safe to call more than once.
func (s *AuthService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopSweeper)
	})
	s.sweeperDone.Wait()
}

func (s *AuthService) runSweeper() {
	defer s.sweeperDone.Done()

	ticker := time.NewTicker(s.cfg.Auth.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			codes := s.codes.Sweep()
			throttled := s.throttle.Sweep()
			if codes > 0 || throttled > 0 {
				util.Debug("Auth sweep completed",
					zap.Int("expired_codes", codes),
					zap.Int("stale_throttle_entries", throttled))
			}
		case <-s.stopSweeper:
			return
		}
	}
}

func (s *AuthService) lookupSession(ctx context.Context, token string) (*models.Session, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, token)
		if err != nil {
			util.Warn("Session cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && session.IsActive {
		if ttl := session.ExpiresAt.Sub(s.now()); ttl > 0 {
			if err := s.cache.Store(ctx, session, ttl); err != nil {
				util.Warn("Failed to refill session cache", zap.Error(err))
			}
		}
	}

	return session, nil
}

func (s *AuthService) deactivateSession(ctx context.Context, token string) {
	if err := s.sessions.Deactivate(ctx, token); err != nil {
		util.Warn("Failed to deactivate session", zap.Error(err))
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, token); err != nil {
			util.Warn("Failed to invalidate session cache", zap.Error(err))
		}
	}
}

func (s *AuthService) isTrustedAddress(addr string) bool {
	if !s.cfg.Auth.TrustedMode && s.cfg.IsProduction() {
		return false
	}
	for _, trusted := range s.cfg.Auth.TrustedAddresses {
		if trusted == addr {
			return true
		}
	}
	return false
}

func (s *AuthService) recordLoginFailure(email, sourceAddr, clientDesc, detail string) {
	s.throttle.RecordFailure(sourceAddr)
	s.audit.Record(models.SecurityEvent{
		EventType:     models.EventLoginFailure,
		Email:         email,
		SourceAddress: sourceAddr,
		ClientDesc:    clientDesc,
		Details:       detail,
	})
}

func (s *AuthService) recordCodeRejection(codeID, sourceAddr, detail string) {
	s.audit.Record(models.SecurityEvent{
		EventType:     models.EventCodeRejected,
		SourceAddress: sourceAddr,
		Details:       detail,
	})
	util.Debug("Verification code rejected",
		zap.String("code_id", codeID),
		zap.String("reason", detail))
}

func generateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
