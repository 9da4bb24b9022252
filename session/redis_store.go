package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lch-dev/board2/utils"
)

const redisTokenPrefix = "session:token:"

// redisStore hands clients an opaque UUID while the real identity travels as
// a signed JWT stored under that UUID. Revocation is a key delete; expiry is
// the key's TTL.
type redisStore struct {
	ttl    time.Duration
	secret []byte
}

type sessionClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

func (s *redisStore) Create(userID string) (string, error) {
	rc := utils.GetRedis()
	if rc == nil {
		return "", errors.New("redis session backend selected but redis is not configured")
	}

	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// expiration zero means no TTL, matching the DB backend's default
	if err := rc.Set(ctx, redisTokenPrefix+token, signed, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *redisStore) Resolve(token string) (string, bool) {
	rc := utils.GetRedis()
	if rc == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	signed, err := rc.Get(ctx, redisTokenPrefix+token).Result()
	if err != nil {
		return "", false
	}

	parsed, err := jwt.ParseWithClaims(signed, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", false
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return "", false
	}
	return claims.UserID, true
}

func (s *redisStore) Delete(token string) error {
	rc := utils.GetRedis()
	if rc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.Del(ctx, redisTokenPrefix+token).Err()
}
