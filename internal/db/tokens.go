package db

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTokenNotFound is returned for unknown tokens and token names.
var ErrTokenNotFound = errors.New("token not found")

// Permission is an API access level. Each level includes the ones below it.
type Permission string

const (
	PermissionMonitor   Permission = "monitor"
	PermissionControl   Permission = "control"
	PermissionConfigure Permission = "configure"
)

var permissionLevels = map[Permission]int{
	PermissionMonitor:   1,
	PermissionControl:   2,
	PermissionConfigure: 3,
}

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := permissionLevels[p]; !ok {
		return "", fmt.Errorf("unknown permission %q (want monitor, control or configure)", s)
	}
	return p, nil
}

// Allows reports whether p grants required.
func (p Permission) Allows(required Permission) bool {
	have, ok := permissionLevels[p]
	if !ok {
		return false
	}
	return have >= permissionLevels[required]
}

// Token is a stored API token. The secret itself is never stored.
type Token struct {
	Name       string     `json:"name"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TokensDatabase manages API bearer tokens.
type TokensDatabase struct {
	db *Database
}

// NewTokensDatabase creates the token schema in db.
func NewTokensDatabase(db *Database) (*TokensDatabase, error) {
	t := &TokensDatabase{db: db}
	if err := t.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate tokens database: %w", err)
	}
	return t, nil
}

var tokensSchema = []string{
	`CREATE TABLE IF NOT EXISTS api_tokens (
		name TEXT PRIMARY KEY,
		token_hash TEXT UNIQUE NOT NULL,
		permission TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER
	)`,
}

func (t *TokensDatabase) migrate() error {
	return t.db.Migrate("tokens", tokensSchema)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateToken stores a new token and returns its secret. The secret cannot
// be recovered later.
func (t *TokensDatabase) CreateToken(name string, perm Permission) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("token name is required")
	}
	if _, ok := permissionLevels[perm]; !ok {
		return "", fmt.Errorf("unknown permission %q", perm)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	secret := "rcb_" + hex.EncodeToString(raw)

	_, err := t.db.Exec(
		"INSERT INTO api_tokens (name, token_hash, permission, created_at) VALUES (?, ?, ?, ?)",
		name, hashToken(secret), string(perm), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to create token %s: %w", name, err)
	}

	t.db.logger.Info().Str("token", name).Str("permission", string(perm)).Msg("api token created")
	return secret, nil
}

// TokenPermission resolves a secret to its permission and marks the token
// as used.
func (t *TokensDatabase) TokenPermission(secret string) (Permission, error) {
	hash := hashToken(secret)

	var perm string
	err := t.db.QueryRow("SELECT permission FROM api_tokens WHERE token_hash = ?", hash).Scan(&perm)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("token lookup failed: %w", err)
	}

	if _, err := t.db.Exec("UPDATE api_tokens SET last_used_at = ? WHERE token_hash = ?",
		time.Now().UnixMilli(), hash); err != nil {
		t.db.logger.Warn().Err(err).Msg("failed to update token usage")
	}

	return Permission(perm), nil
}

// HasPermission reports whether secret grants required. Unknown tokens are
// not an error.
func (t *TokensDatabase) HasPermission(secret string, required Permission) (bool, error) {
	perm, err := t.TokenPermission(secret)
	if errors.Is(err, ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return perm.Allows(required), nil
}

// ListTokens returns all tokens ordered by name.
func (t *TokensDatabase) ListTokens() ([]Token, error) {
	rows, err := t.db.Query("SELECT name, permission, created_at, last_used_at FROM api_tokens ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := []Token{}
	for rows.Next() {
		var tok Token
		var perm string
		var created int64
		var lastUsed sql.NullInt64
		if err := rows.Scan(&tok.Name, &perm, &created, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		tok.Permission = Permission(perm)
		tok.CreatedAt = time.UnixMilli(created)
		if lastUsed.Valid {
			ts := time.UnixMilli(lastUsed.Int64)
			tok.LastUsedAt = &ts
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// RevokeToken deletes the named token.
func (t *TokensDatabase) RevokeToken(name string) error {
	res, err := t.db.Exec("DELETE FROM api_tokens WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to revoke token %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenNotFound
	}

	t.db.logger.Info().Str("token", name).Msg("api token revoked")
	return nil
}
