package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dreamflow/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	Consume(ctx context.Context, token string) (models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	IssueToken(ctx context.Context, user *models.User) (TokenPair, error)
	Resolve(ctx context.Context, token string) (*models.User, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
}

type AuthConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type AuthServiceImpl struct {
	users      UserStore
	tokens     RefreshTokenStore
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthService(users UserStore, tokens RefreshTokenStore, cfg AuthConfig) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:      users,
		tokens:     tokens,
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthServiceImpl) IssueToken(ctx context.Context, user *models.User) (TokenPair, error) {
	now := s.now()

	jti, err := uuid.NewV4()
	if err != nil {
		return TokenPair{}, err
	}
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		ID:        jti.String(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshUUID, err := uuid.NewV4()
	if err != nil {
		return TokenPair{}, err
	}
	refresh := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshUUID.String(),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, &refresh); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		RefreshToken: refresh.Token,
	}, nil
}

// Resolve verifies signature, issuer and expiry, then loads the subject user.
func (s *AuthServiceImpl) Resolve(ctx context.Context, token string) (*models.User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: bad subject", models.ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, uint(id))
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", models.ErrInvalidToken)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	row, err := s.tokens.Consume(ctx, strings.TrimSpace(refreshToken))
	if errors.Is(err, models.ErrNotFound) {
		return TokenPair{}, models.ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	if row.Expired(s.now()) {
		return TokenPair{}, fmt.Errorf("%w: refresh token expired", models.ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return TokenPair{}, models.ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	return s.IssueToken(ctx, user)
}

func (s *AuthServiceImpl) Revoke(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, strings.TrimSpace(refreshToken))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
