package ports

import (
	"context"

	"github.com/metacode/fiches-api/internal/core/domain"
)

// UserRepository defines the persistence operations for accounts.
type UserRepository interface {
	// Create stores a user whose password has already been hashed.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
