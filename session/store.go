// Package session maps opaque bearer tokens to user identities. The store is
// an interface so the expiry policy and backend can change without touching
// handlers: the default backend is the sessions table (legacy behavior, no
// expiry unless a TTL is configured), the alternative keeps phantom tokens in
// Redis with a signed identity payload and a hard TTL.
package session

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lch-dev/board2/config"
	"github.com/lch-dev/board2/models"
)

// Store issues, resolves, and revokes opaque session tokens.
type Store interface {
	// Create mints a new token for the user.
	Create(userID string) (string, error)
	// Resolve returns the user id behind a token, or false when the token
	// is unknown or expired.
	Resolve(token string) (string, bool)
	// Delete revokes a token. Deleting an unknown token is not an error.
	Delete(token string) error
}

// New picks the backend from configuration.
func New(cfg config.AppConfig, db *gorm.DB) Store {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if cfg.SessionBackend == "redis" {
		return &redisStore{ttl: ttl, secret: []byte(cfg.JWTSecret)}
	}
	return &dbStore{db: db, ttl: ttl}
}

// dbStore keeps one sessions row per active login. TTL zero preserves the
// legacy contract: a token stays valid until its row is deleted at logout.
type dbStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s *dbStore) Create(userID string) (string, error) {
	token := uuid.NewString()
	if err := s.db.Create(&models.Session{Token: token, UserID: userID}).Error; err != nil {
		return "", err
	}
	return token, nil
}

func (s *dbStore) Resolve(token string) (string, bool) {
	var sess models.Session
	if err := s.db.First(&sess, "token = ?", token).Error; err != nil {
		return "", false
	}
	if s.ttl > 0 && time.Since(sess.CreatedAt) > s.ttl {
		// lazy eviction; the sweeper handles rows nobody presents again
		_ = s.db.Delete(&models.Session{}, "token = ?", token).Error
		return "", false
	}
	return sess.UserID, true
}

func (s *dbStore) Delete(token string) error {
	return s.db.Delete(&models.Session{}, "token = ?", token).Error
}
