package services

import (
	"context"
	"fmt"
	"regexp"

	"dreamflow/internal/models"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

type RegistrationRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type RegisterService interface {
	Register(ctx context.Context, req RegistrationRequest) (*models.User, error)
}

type RegisterServiceImpl struct {
	users UserStore
	cost  int
}

func NewRegisterService(users UserStore, bcryptCost int) *RegisterServiceImpl {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &RegisterServiceImpl{users: users, cost: bcryptCost}
}

func (s *RegisterServiceImpl) Register(ctx context.Context, req RegistrationRequest) (*models.User, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if !usernamePattern.MatchString(req.Username) {
		return nil, models.NewValidationError("username", "must be 3-50 characters of letters, digits or underscores")
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if err := validate.Var(email, "required,email"); err != nil {
		return "", models.NewValidationError("email", "must be a valid email address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return models.NewValidationError("password", "must be at least %d characters long", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return models.NewValidationError("password", "must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}
