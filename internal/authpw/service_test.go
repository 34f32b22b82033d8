package authpw

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"canvasvault/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
	next       int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) CreateUser(ctx context.Context, email, passwordHash string, verified bool, token string, expiresAt *time.Time) (store.User, error) {
	if _, ok := m.emailIndex[email]; ok {
		return store.User{}, store.ErrConflict
	}
	m.next++
	user := store.User{
		ID:                fmt.Sprintf("user-%d", m.next),
		Email:             email,
		PasswordHash:      passwordHash,
		EmailVerified:     verified,
		VerificationToken: token,
	}
	m.users[user.ID] = user
	m.emailIndex[email] = user.ID
	return user, nil
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) (store.User, error) {
	for id, user := range m.users {
		if user.VerificationToken != "" && user.VerificationToken == token {
			user.EmailVerified = true
			user.VerificationToken = ""
			m.users[id] = user
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore(), true)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "secret1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.User.ID == "" {
			t.Error("expected user id to be set")
		}
		if resp.VerificationToken == "" {
			t.Error("expected VerificationToken to be set")
		}
		if !resp.RequiresEmailVerify || resp.User.EmailVerified {
			t.Error("expected an unverified account")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "secret1"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test2@example.com", Password: "short"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("bad email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "Name <x@example.com>", Password: "secret1"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		_, err = svc.SignUp(ctx, SignUpRequest{})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSignUpWithoutVerification(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore(), false)

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "Open@Example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RequiresEmailVerify || !resp.User.EmailVerified || resp.VerificationToken != "" {
		t.Fatalf("expected a verified account, got %+v", resp)
	}
	if resp.User.Email != "open@example.com" {
		t.Errorf("expected lowercased email, got %s", resp.User.Email)
	}

	user, err := svc.SignIn(ctx, SignInRequest{Email: "open@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != resp.User.ID {
		t.Errorf("expected user %s, got %s", resp.User.ID, user.ID)
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore(), true)

	resp, _ := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123"})

	t.Run("unverified email", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"})
		if !errors.Is(err, ErrEmailNotVerified) {
			t.Errorf("expected ErrEmailNotVerified, got %v", err)
		}
	})

	if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", user.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrongpassword"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "nonexistent@example.com", Password: "password123"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore, true)

	resp, _ := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123"})

	t.Run("valid token", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		user, _ := svc.User(ctx, resp.User.ID)
		if !user.EmailVerified {
			t.Error("expected user to be verified")
		}
	})

	t.Run("token is single use", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); !errors.Is(err, ErrInvalidVerification) {
			t.Errorf("expected ErrInvalidVerification, got %v", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, " "); !errors.Is(err, ErrInvalidVerification) {
			t.Errorf("expected ErrInvalidVerification, got %v", err)
		}
	})
}
