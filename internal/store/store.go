package store

import (
	"context"

	"github.com/pliu/prompthub/internal/models"
)

// Store is the relational persistence layer. Every method runs as a single
// atomic operation against the database.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	// Project operations. Lookups are always scoped to the owning user.
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id, userID int64) (*models.Project, error)
	ListProjects(ctx context.Context, userID int64) ([]models.Project, error)
	UpdateProject(ctx context.Context, id, userID int64, apply func(*models.Project) error) (*models.Project, error)
}
