// Package store persists accounts and gameplay statistics. It backs the two
// external collaborator boundaries the game core consumes: credential
// resolution and the record-outcome stats write.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avalonline/avalon-backend/internal/game"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("user not found")
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return New(db, log)
}

// New wraps an existing gorm handle; tests inject an in-memory sqlite one.
func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Create(ctx context.Context, username, password, displayName string) (*User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		RoleStats:    "{}",
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate resolves (username, password) to the account, or
// ErrInvalidCredentials. The error is the same for unknown users and wrong
// passwords.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) ByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var u User
	err = s.db.WithContext(ctx).Where("id = ?", uid).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile changes the username and/or display name; empty strings
// leave the field untouched.
func (s *Store) UpdateProfile(ctx context.Context, id, username, displayName string) (*User, error) {
	u, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if username != "" && username != u.Username {
		if _, err := s.ByUsername(ctx, username); err == nil {
			return nil, ErrUsernameTaken
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		u.Username = username
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// Leaderboard returns up to limit users ordered by aggregate wins.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	var users []User
	err := s.db.WithContext(ctx).
		Order("good_wins + evil_wins DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// RecordOutcome applies one finished game to a player's statistics and
// returns their new aggregate win total. The session's stats-recorded guard
// makes the call at-most-once per game; the write itself is a plain upsert
// of the aggregate counters.
func (s *Store) RecordOutcome(ctx context.Context, userID string, role game.Role, winner game.Side) (int, error) {
	u, err := s.ByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	side := role.Side()
	won := side == winner

	u.TotalGames++
	switch {
	case side == game.SideGood && won:
		u.GoodWins++
	case side == game.SideGood:
		u.GoodLosses++
	case won:
		u.EvilWins++
	default:
		u.EvilLosses++
	}

	stats := u.roleStats()
	entry := stats[string(role)]
	if won {
		entry.Wins++
	} else {
		entry.Losses++
	}
	stats[string(role)] = entry
	u.setRoleStats(stats)

	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return 0, err
	}
	return u.Wins(), nil
}
