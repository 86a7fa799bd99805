// Package auth verifies the signed identity tokens issued by the account
// service in front of the watch party API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/immxrtalbeast/watchparty/internal/domain"
)

var ErrEmptySecret = errors.New("jwt secret is empty")

// Claims carries the display identity next to the standard claims. The user
// id is the subject.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// Verify checks the token signature and expiry and returns the identity it
// asserts. Every failure wraps domain.ErrUnauthorized.
func (v *Verifier) Verify(token string) (*domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return &domain.Identity{
		UserID:      claims.Subject,
		DisplayName: name,
		AvatarRef:   claims.Picture,
	}, nil
}

// Issue signs a token for identity. The API itself never logs anyone in; this
// serves tests and local tooling.
func (v *Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Name:    identity.DisplayName,
		Picture: identity.AvatarRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
