// Package auth implements signup and login on top of a user store, and the
// bearer tokens handed out on login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"postboard/internal/model"
	"postboard/internal/store"
)

var (
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidCredentials = errors.New("auth: email and password are required")
)

const DefaultBcryptCost = 10

type Service struct {
	users  store.UserStore
	tokens *Tokens
	cost   int
}

func NewService(users store.UserStore, tokens *Tokens, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}

	return &Service{
		users:  users,
		tokens: tokens,
		cost:   cost,
	}
}

// Session is returned to the client on a successful login.
type Session struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	UserID    string `json:"userId"`
}

// Signup stores a new user. A taken email yields store.ErrDuplicate.
func (s *Service) Signup(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.User{}, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.users.CreateUser(ctx, email, string(hash))
}

// Login checks the credentials and issues a token. An unknown email and a
// wrong password both yield ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: identity not found", ErrUnauthorized)
		}

		return Session{}, err
	}

	if !verifyPassword(password, user.PasswordHash) {
		return Session{}, fmt.Errorf("%w: credential mismatch", ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token.Access,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		UserID:    user.ID,
	}, nil
}

func (s *Service) Verify(token string) (Identity, error) {
	return s.tokens.Verify(token)
}

func verifyPassword(pwd, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd))
	return err == nil
}
