package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

type User struct {
	UserBucket   int        `db:"user_bucket"`
	UserID       string     `db:"user_id"`
	Email        string     `db:"email"`
	Name         string     `db:"name"`
	PasswordHash string     `db:"password_hash"`
	Role         string     `db:"role"`
	IsActive     bool       `db:"is_active"`
	IPAllowlist  []string   `db:"ip_allowlist"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	LastLoginIP  string     `db:"last_login_ip"`
}

// PublicProfile is the user shape returned to clients. The password hash
// never leaves the service layer.
type PublicProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (u *User) Public() *PublicProfile {
	return &PublicProfile{
		ID:    u.UserID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}

// AllowsIP reports whether the user's allow-list permits the address.
// An empty list means unrestricted.
func (u *User) AllowsIP(addr string) bool {
	if len(u.IPAllowlist) == 0 {
		return true
	}
	for _, allowed := range u.IPAllowlist {
		if allowed == addr {
			return true
		}
	}
	return false
}
