// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"canvasvault/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	verificationTTL   = 24 * time.Hour
)

var (
	ErrInvalidInput        = errors.New("a valid email and a password of at least 6 characters are required")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailNotVerified    = errors.New("email not confirmed")
	ErrInvalidVerification = errors.New("invalid or expired verification token")
)

// Service provides email/password authentication
type Service struct {
	store         UserStore
	requireVerify bool
}

// UserStore defines the storage interface for auth
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string, verified bool, verificationToken string, verificationExpiresAt *time.Time) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	VerifyUserEmail(ctx context.Context, token string) (store.User, error)
}

// NewService creates a new auth service. With requireVerify, new accounts
// cannot sign in until their email is confirmed.
func NewService(store UserStore, requireVerify bool) *Service {
	return &Service{
		store:         store,
		requireVerify: requireVerify,
	}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email    string
	Password string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	User                store.User
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new user account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || len(req.Password) < MinPasswordLength {
		return nil, ErrInvalidInput
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		token     string
		expiresAt *time.Time
	)
	if s.requireVerify {
		token, err = generateToken()
		if err != nil {
			return nil, fmt.Errorf("generate verification token: %w", err)
		}
		exp := time.Now().Add(verificationTTL)
		expiresAt = &exp
	}

	user, err := s.store.CreateUser(ctx, email, string(hash), !s.requireVerify, token, expiresAt)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &SignUpResponse{
		User:                user,
		VerificationToken:   token,
		RequiresEmailVerify: s.requireVerify,
	}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user. The password is checked before the
// verification state so unverified accounts do not leak.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || len(req.Password) < MinPasswordLength {
		return store.User{}, ErrInvalidInput
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return store.User{}, ErrEmailNotVerified
	}
	return user, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return store.User{}, ErrInvalidVerification
	}
	user, err := s.store.VerifyUserEmail(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidVerification
	}
	if err != nil {
		return store.User{}, fmt.Errorf("verify email: %w", err)
	}
	return user, nil
}

// User loads an account by id.
func (s *Service) User(ctx context.Context, id string) (store.User, error) {
	return s.store.GetUserByID(ctx, id)
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidInput
	}
	return strings.ToLower(addr.Address), nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
