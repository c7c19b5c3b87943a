// Package auth manages API users and their bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const _default_token_ttl = 24 * time.Hour

var (
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrUserExists         = errors.New("auth: user already exists")
	ErrUnknownUser        = errors.New("auth: unknown user")
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (User) TableName() string { return "rca_users" }

type Token struct {
	Value     string    `gorm:"primaryKey;size:64"`
	Username  string    `gorm:"size:255;not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (Token) TableName() string { return "rca_tokens" }

type Config struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type Service struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// New migrates the auth tables and returns the service.
func New(db *gorm.DB, cfg Config) (*Service, error) {
	if err := db.AutoMigrate(&User{}, &Token{}); err != nil {
		return nil, fmt.Errorf("auth auto migrate: %w", err)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = _default_token_ttl
	}
	return &Service{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *Service) CreateUser(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("auth: username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return fmt.Errorf("auth: lookup user: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	u := User{Username: username, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return fmt.Errorf("auth: create user: %w", err)
	}
	return nil
}

// Authenticate checks the password of username.
func (s *Service) Authenticate(ctx context.Context, username, password string) error {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("auth: lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// IssueToken creates a new bearer token for an existing user.
func (s *Service) IssueToken(ctx context.Context, username string) (Token, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return Token{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if count == 0 {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}

	tok := Token{
		Value:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Username:  username,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&tok).Error; err != nil {
		return Token{}, fmt.Errorf("auth: store token: %w", err)
	}
	return tok, nil
}

// Login authenticates and issues a token in one step.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	if err := s.Authenticate(ctx, username, password); err != nil {
		return Token{}, err
	}
	return s.IssueToken(ctx, username)
}

// VerifyToken returns the owner of a live token.
func (s *Service) VerifyToken(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", ErrInvalidToken
	}
	var tok Token
	err := s.db.WithContext(ctx).Where("value = ?", value).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("auth: lookup token: %w", err)
	}
	if !s.now().Before(tok.ExpiresAt) {
		return "", ErrInvalidToken
	}
	return tok.Username, nil
}

func (s *Service) RevokeToken(ctx context.Context, value string) error {
	if err := s.db.WithContext(ctx).Where("value = ?", value).Delete(&Token{}).Error; err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired tokens and reports how many were removed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&Token{})
	if res.Error != nil {
		return 0, fmt.Errorf("auth: purge tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
