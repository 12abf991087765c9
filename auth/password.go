// Package auth provides password-based authentication and JWT session
// tokens for the petty-cash API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/floatworks/pettycash/ledger"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrUsernameExists     = errors.New("username already exists")
	ErrUsernameRequired   = errors.New("username is required")
)

// PasswordAuthenticator implements password-based authentication using
// bcrypt. It talks to storage through ledger.UserStore so it stays
// independent of the database implementation.
type PasswordAuthenticator struct {
	storage ledger.UserStore
}

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage ledger.UserStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{storage: storage}
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// Registration carries the caller-supplied fields of a new account.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a new user account with a hashed password. New
// accounts always start as custodian; only an admin can raise a role.
func (a *PasswordAuthenticator) Register(ctx context.Context, reg Registration) (*ledger.User, error) {
	username := strings.TrimSpace(reg.Username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if err := a.ValidateCredential(reg.Password); err != nil {
		return nil, err
	}

	existing, err := a.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &ledger.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(reg.Email),
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		PasswordHash: string(hashed),
		Role:         ledger.RoleCustodian,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.storage.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the username and password, returning the user
// if valid. Unknown usernames and wrong passwords are indistinguishable
// to the caller.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, credential string) (*ledger.User, error) {
	user, err := a.storage.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
