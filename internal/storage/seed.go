package storage

import (
	"context"
	"fmt"
)

// seedDefaultAdmin inserts the bootstrap administrator when no user exists.
// It is a first-run step, not a general seeding mechanism.
func (s *Store) seedDefaultAdmin(ctx context.Context) error {
	count, err := s.Users.Count(ctx)
	if err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := s.opts.Hasher.Hash(s.opts.DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	admin := &User{
		Username:     s.opts.DefaultAdminUsername,
		PasswordHash: hash,
		FullName:     defaultAdminFullName,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := s.Users.Create(ctx, admin); err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	s.logger.Info("seeded default administrator", "username", admin.Username, "user_id", admin.ID)
	return nil
}
