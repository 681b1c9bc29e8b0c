// Package store defines the persistence contract for users and posts.
// Backends live in the sqlstore and mongostore subpackages.
package store

import (
	"context"
	"errors"

	"postboard/internal/model"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

type UserStore interface {
	// CreateUser fails with ErrDuplicate when the email is already taken.
	CreateUser(ctx context.Context, email, passwordHash string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, p model.Post) (model.Post, error)
	GetPost(ctx context.Context, id string) (model.Post, error)
	// ListPosts returns posts in insertion order. A limit <= 0 returns
	// everything from offset on.
	ListPosts(ctx context.Context, offset, limit int) ([]model.Post, error)
	CountPosts(ctx context.Context) (int64, error)
	// UpdatePost overwrites title, content and image path. The creator is
	// never changed.
	UpdatePost(ctx context.Context, p model.Post) error
	DeletePost(ctx context.Context, id string) error
}

type Store interface {
	UserStore
	PostStore
	Close(ctx context.Context) error
}
