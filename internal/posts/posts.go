// Package posts implements the post lifecycle: creation, lookup, paginated
// listing, and owner-only update and delete.
package posts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"postboard/internal/model"
	"postboard/internal/store"
)

var (
	ErrInvalidPost = errors.New("posts: invalid post")
	ErrNotOwner    = errors.New("posts: caller does not own the post")
)

// Draft carries the client-editable fields of a post.
type Draft struct {
	Title     string
	Content   string
	ImagePath string
}

// Validate checks the fields every stored post must have.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPost)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidPost)
	}

	return nil
}

type Page struct {
	Posts []model.Post
	// Total counts every stored post, not only this page.
	Total int64
}

type Service struct {
	store store.PostStore
}

func NewService(s store.PostStore) *Service {
	return &Service{store: s}
}

// CanModify reports whether userID may update or delete p.
func CanModify(p model.Post, userID string) bool {
	return userID != "" && p.Creator == userID
}

func (s *Service) Create(ctx context.Context, userID string, d Draft) (model.Post, error) {
	if err := d.Validate(); err != nil {
		return model.Post{}, err
	}
	if d.ImagePath == "" {
		return model.Post{}, fmt.Errorf("%w: image is required", ErrInvalidPost)
	}

	return s.store.CreatePost(ctx, model.Post{
		Title:     d.Title,
		Content:   d.Content,
		ImagePath: d.ImagePath,
		Creator:   userID,
	})
}

func (s *Service) Get(ctx context.Context, id string) (model.Post, error) {
	return s.store.GetPost(ctx, id)
}

// List returns the window [(page-1)*pageSize, page*pageSize) when both
// values are positive, and every post otherwise.
func (s *Service) List(ctx context.Context, pageSize, page int) (Page, error) {
	total, err := s.store.CountPosts(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("count posts: %w", err)
	}

	var offset, limit int
	if pageSize > 0 && page > 0 {
		// A window whose offset does not fit in an int lies past any
		// stored post.
		if page-1 > math.MaxInt/pageSize {
			return Page{Posts: []model.Post{}, Total: total}, nil
		}
		offset, limit = (page-1)*pageSize, pageSize
	}

	items, err := s.store.ListPosts(ctx, offset, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list posts: %w", err)
	}

	return Page{Posts: items, Total: total}, nil
}

// Update replaces title, content and image of a post owned by userID. An
// empty d.ImagePath keeps the stored image.
func (s *Service) Update(ctx context.Context, id, userID string, d Draft) (model.Post, error) {
	if err := d.Validate(); err != nil {
		return model.Post{}, err
	}

	p, err := s.owned(ctx, id, userID)
	if err != nil {
		return model.Post{}, err
	}

	p.Title = d.Title
	p.Content = d.Content
	if d.ImagePath != "" {
		p.ImagePath = d.ImagePath
	}

	if err := s.store.UpdatePost(ctx, p); err != nil {
		return model.Post{}, err
	}

	return p, nil
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}

	return s.store.DeletePost(ctx, id)
}

func (s *Service) owned(ctx context.Context, id, userID string) (model.Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, err
	}

	if !CanModify(p, userID) {
		return model.Post{}, fmt.Errorf("post %q: %w", id, ErrNotOwner)
	}

	return p, nil
}
