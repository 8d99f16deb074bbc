package projects

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/config"
	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/models"
	"github.com/pliu/prompthub/internal/store"
)

// Service is the project store. Every lookup is scoped to the owning user.
type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return config.DefaultProjectName
	}
	return name
}

func normalizePrompt(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return config.DefaultSystemPrompt
	}
	return prompt
}

func validateName(name string) error {
	err := validation.Validate(name,
		validation.RuneLength(0, config.MaxProjectNameLength).Error("Project name must be at most 255 characters"),
	)
	if err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, ownerID int64, name, systemPrompt string) (*models.Project, error) {
	project := &models.Project{
		UserID:       ownerID,
		Name:         normalizeName(name),
		SystemPrompt: normalizePrompt(systemPrompt),
	}
	if err := validateName(project.Name); err != nil {
		return nil, err
	}

	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	s.log.Info("project created",
		zap.Int64("project_id", project.ID),
		zap.Int64("user_id", ownerID),
	)
	return project, nil
}

// GetOwned returns a NotFoundError both when the project does not exist and
// when it belongs to another user.
func (s *Service) GetOwned(ctx context.Context, projectID, ownerID int64) (*models.Project, error) {
	return s.store.GetProject(ctx, projectID, ownerID)
}

// ListOwned returns the owner's projects in creation order.
func (s *Service) ListOwned(ctx context.Context, ownerID int64) ([]models.Project, error) {
	return s.store.ListProjects(ctx, ownerID)
}

// Update applies the non-nil fields. Ownership is re-checked in the same
// transaction as the write.
func (s *Service) Update(ctx context.Context, projectID, ownerID int64, name, systemPrompt *string) (*models.Project, error) {
	project, err := s.store.UpdateProject(ctx, projectID, ownerID, func(p *models.Project) error {
		if name != nil {
			n := normalizeName(*name)
			if err := validateName(n); err != nil {
				return err
			}
			p.Name = n
		}
		if systemPrompt != nil {
			p.SystemPrompt = *systemPrompt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("project updated",
		zap.Int64("project_id", project.ID),
		zap.Int64("user_id", ownerID),
		zap.Bool("name_changed", name != nil),
		zap.Bool("prompt_changed", systemPrompt != nil),
	)
	return project, nil
}
