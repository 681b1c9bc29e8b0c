package mongostore

import "context"

func DropDatabase(ctx context.Context, s *Store) error {
	return s.users.Database().Drop(ctx)
}
