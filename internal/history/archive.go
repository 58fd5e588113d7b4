// Package history persists ended sessions so call logs survive restarts.
package history

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

// Record is one finished call or room.
type Record struct {
	ID           string `gorm:"primaryKey"`
	Kind         string
	Status       string
	Topic        string
	CallerID     string
	CalleeID     string
	HostID       string
	Participants int
	CreatedAt    time.Time
	EndedAt      time.Time
}

type Archive struct {
	db *gorm.DB
}

func Open(dbPath string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Save(s *domain.Session) error {
	rec := Record{
		ID:           string(s.ID),
		Kind:         string(s.Kind),
		Status:       string(s.Status),
		Topic:        s.Topic,
		Participants: len(s.Participants),
		CreatedAt:    s.CreatedAt,
		EndedAt:      s.EndedAt,
	}
	if s.Caller != nil {
		rec.CallerID = string(s.Caller.ID)
	}
	if s.Callee != nil {
		rec.CalleeID = string(s.Callee.ID)
	}
	if s.Host != nil {
		rec.HostID = string(s.Host.ID)
	}
	if err := a.db.Save(&rec).Error; err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	log.Debug().Str("module", "history").Str("session", rec.ID).Str("status", rec.Status).Msg("session archived")
	return nil
}

// Recent lists the most recently ended sessions, newest first.
func (a *Archive) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Record
	err := a.db.Order("ended_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// ForUser lists ended sessions where the user was a named party or host.
func (a *Archive) ForUser(user domain.UserID, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Record
	err := a.db.
		Where("caller_id = ? OR callee_id = ? OR host_id = ?", user, user, user).
		Order("ended_at desc").Limit(limit).Find(&out).Error
	return out, err
}
