// Package auth issues and checks the session tokens a client presents on the
// websocket URL. A token's subject is the player id.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrNoSecret = errors.New("no signing secret configured")

type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether tokens are checked at all. Without a secret the
// server runs in dev mode and trusts the client's playerId.
func (i *Issuer) Enabled() bool { return i != nil && len(i.secret) > 0 }

// Guest mints a fresh player id and a token for it.
func (i *Issuer) Guest(name string) (playerID, token string, err error) {
	playerID = uuid.NewString()
	token, err = i.Issue(playerID, name)
	return playerID, token, err
}

func (i *Issuer) Issue(playerID, name string) (string, error) {
	if !i.Enabled() {
		return "", ErrNoSecret
	}
	now := i.now()
	claims := Claims{
		Name: strings.TrimSpace(name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

func (i *Issuer) Verify(token string) (*Claims, error) {
	if !i.Enabled() {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
