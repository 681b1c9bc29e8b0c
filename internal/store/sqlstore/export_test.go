package sqlstore

import (
	"context"
	"testing"
)

func NewPostgresDialect() *Store { return &Store{dialect: dialectPostgres} }

func (s *Store) Rebind(query string) string { return s.rebind(query) }

// Truncate empties both tables of a shared test database.
func Truncate(t *testing.T, s *Store) {
	t.Helper()

	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM posts; DELETE FROM users;`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
