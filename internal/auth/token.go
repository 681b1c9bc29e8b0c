package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"postboard/internal/model"
)

const (
	DefaultTokenTTL = time.Hour
	DefaultIssuer   = "postboard"
)

// Claims is the payload of an access token.
type Claims struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Token struct {
	Access    string
	ExpiresAt time.Time
}

// Tokens issues and verifies HS512 access tokens. It is stateless: a
// token stays valid until it expires.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration, issuer string) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for issuing and verifying.
func (t *Tokens) SetClock(now func() time.Time) {
	t.now = now
}

func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

func (t *Tokens) Issue(user model.User) (Token, error) {
	now := t.now()
	exp := now.Add(t.ttl)

	claims := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Email:  user.Email,
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})

	signed, err := claims.SignedString(t.secret)
	if err != nil {
		return Token{}, err
	}

	return Token{Access: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm and expiry. A token issued at T is
// accepted strictly before T+ttl.
func (t *Tokens) Verify(token string) (Identity, error) {
	var claims Claims

	// Expiry is checked below against t.now rather than the package-global
	// jwt.TimeFunc.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return t.secret, nil })
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if !claims.VerifyExpiresAt(t.now(), true) {
		return Identity{}, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}

	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token has no user", ErrUnauthorized)
	}

	return Identity{Email: claims.Email, UserID: claims.UserID}, nil
}
