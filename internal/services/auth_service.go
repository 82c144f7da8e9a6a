package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/repositories"
	"github.com/campuslink/groupchat/middleware/jwt"
)

var (
	ErrUserExists         = errors.New("username or email already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters")
)

// AuthService is the identity provider: it issues the user identifier and
// display name every membership and message operation is attributed to.
type AuthService struct {
	users  repositories.UserStore
	tokens *jwt.TokenManager
}

func NewAuthService(users repositories.UserStore, tokens *jwt.TokenManager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token       string `json:"token"`
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (s *AuthService) Register(req *RegisterRequest) (*models.User, error) {
	if len(req.Username) < 3 || len(req.Username) > 32 {
		return nil, ErrInvalidUsername
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, err
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
	}
	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(req *LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	token, err := s.tokens.GenerateToken(user.ID, user.DisplayName)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, UserID: user.ID, DisplayName: user.DisplayName}, nil
}
