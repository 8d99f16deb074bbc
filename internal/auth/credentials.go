package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/models"
	"github.com/pliu/prompthub/internal/store"
)

const invalidCredentials = "Invalid credentials"

// Credentials registers users and verifies their passwords.
type Credentials struct {
	store     store.Store
	cost      int
	dummyHash []byte
	log       *zap.Logger
}

func NewCredentials(st store.Store, cost int, log *zap.Logger) (*Credentials, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Compared against when the email is unknown so that both failure
	// paths cost one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &Credentials{store: st, cost: cost, dummyHash: dummy, log: log}, nil
}

type registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *registration) validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required.Error("Email and password are required"),
			validation.RuneLength(1, 255).Error("Email must be at most 255 characters"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("Email and password are required"),
			validation.By(maxBytes(72, "Password must be at most 72 bytes")),
		),
	)
	return domain.FromValidation(err, "email", "password")
}

func maxBytes(n int, msg string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > n {
			return errors.New(msg)
		}
		return nil
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and returns its id.
func (c *Credentials) Register(ctx context.Context, email, password string) (int64, error) {
	req := &registration{Email: NormalizeEmail(email), Password: password}
	if err := req.validate(); err != nil {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), c.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Email: req.Email, PasswordHash: string(hash)}
	if err := c.store.CreateUser(ctx, user); err != nil {
		return 0, err
	}

	c.log.Info("user registered", zap.Int64("user_id", user.ID))
	return user.ID, nil
}

// Authenticate returns the id of the user with the given credentials. A
// missing user and a wrong password produce the same AuthError.
func (c *Credentials) Authenticate(ctx context.Context, email, password string) (int64, error) {
	user, err := c.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("authenticate: %w", err)
		}
		bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
		return 0, &domain.AuthError{Message: invalidCredentials}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, &domain.AuthError{Message: invalidCredentials}
	}
	return user.ID, nil
}
