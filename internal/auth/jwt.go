package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"sentient.health/symptom-ai/internal/config"
)

// SessionClaims carries the signed-in identity for the lifetime of a session.
type SessionClaims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

func GenerateJWT(identity *Identity) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Name:    identity.Name,
		Email:   identity.Email,
		Picture: identity.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(config.AppConfig.SessionTTLHours) * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ValidateJWT(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	if revoked.contains(claims.ID) {
		return nil, fmt.Errorf("token has been revoked")
	}
	return claims, nil
}

// RevokeJWT rejects the session's token id until the token would have expired anyway.
func RevokeJWT(claims *SessionClaims) {
	expires := time.Now()
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	revoked.add(claims.ID, expires)
}

type revocationList struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

var revoked = &revocationList{ids: make(map[string]time.Time)}

func (l *revocationList) add(id string, expires time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(time.Now())
	l.ids[id] = expires
}

func (l *revocationList) contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// sweep drops entries whose tokens are expired. Callers hold mu.
func (l *revocationList) sweep(now time.Time) {
	for id, exp := range l.ids {
		if now.After(exp) {
			delete(l.ids, id)
		}
	}
}
