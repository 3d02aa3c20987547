package service

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/repository"
	"github.com/tutorlink/api/pkg/auth"
	"github.com/tutorlink/api/pkg/config"
	"github.com/tutorlink/api/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, string, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, string, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	wallet   WalletService
	cfg      *config.Config
}

func NewAuthService(userRepo repository.UserRepository, wallet WalletService, cfg *config.Config) AuthService {
	return &authService{
		userRepo: userRepo,
		wallet:   wallet,
		cfg:      cfg,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, "", fmt.Errorf("%w: a user with this email already exists", domain.ErrInvalidInput)
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req.Email, passwordHash, req.Name, req.Role)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.wallet.EnsureAccount(ctx, user.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to create wallet account", "error", err, "user_id", user.ID)
		return nil, "", fmt.Errorf("failed to create wallet account: %w", err)
	}

	token, err := auth.NewAccessToken(user.ID, user.Email, user.Role, s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.User, string, error) {
	req.Normalize()

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, "", domain.ErrNotAuthorized
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, "", domain.ErrNotAuthorized
	}

	token, err := auth.NewAccessToken(user.ID, user.Email, user.Role, s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return user, token, nil
}

func (s *authService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}
