package primary

import (
	"context"
	"errors"
	"fmt"

	"crmai/internal/models"
	"crmai/internal/store"

	"github.com/jackc/pgx/v5"
)

// GetUser looks up the sender profile for an email address.
func (s *StoreImpl) GetUser(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT email, full_name, designation, phone FROM crm_users WHERE email = $1`
	var u models.User
	err := s.db.QueryRow(ctx, query, email).Scan(&u.Email, &u.FullName, &u.Designation, &u.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", email, err)
	}
	return &u, nil
}

var _ store.UserStore = (*StoreImpl)(nil)
