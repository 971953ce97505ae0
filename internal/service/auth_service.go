package service

import (
	"context"
	"errors"
	"strings"

	"feeportal/config"
	"feeportal/internal/auth"
	"feeportal/internal/domain"
	"feeportal/internal/models"
	"feeportal/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists     = errors.New("email already registered")
	ErrInvalidCreds    = errors.New("invalid email or password")
	ErrAdminExists     = errors.New("an admin account already exists")
	ErrSchoolIDMissing = errors.New("school_id is required for SCHOOL users")
)

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=ADMIN SCHOOL"`
	SchoolID string `json:"school_id" validate:"max=64"`
}

type AuthService struct {
	cfg      *config.Config
	userRepo *repository.UserRepository
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo}
}

// Register creates a dashboard user and returns an access token. Only the
// first ADMIN may self-register.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.SchoolID = strings.TrimSpace(in.SchoolID)
	if in.Role == "" {
		in.Role = domain.RoleSchool
	}
	if err := validateInput(in); err != nil {
		return nil, "", err
	}
	switch in.Role {
	case domain.RoleSchool:
		if in.SchoolID == "" {
			return nil, "", ErrSchoolIDMissing
		}
	case domain.RoleAdmin:
		n, err := s.userRepo.CountByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, "", err
		}
		if n > 0 {
			return nil, "", ErrAdminExists
		}
		in.SchoolID = ""
	}
	_, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, "", ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	u := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		Role:         in.Role,
		SchoolID:     in.SchoolID,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", ErrEmailExists
		}
		return nil, "", err
	}
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.SchoolID)
	if err != nil {
		return u, "", err
	}
	return u, access, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCreds
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCreds
	}
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.SchoolID)
	if err != nil {
		return nil, "", err
	}
	return u, access, nil
}
