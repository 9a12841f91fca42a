// Package history records finished downloads in a local sqlite database.
package history

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

// Record is one finished (or failed) part download.
type Record struct {
	ID           uint `gorm:"primarykey"`
	VideoID      string
	Part         int
	Title        string
	Quality      string
	AudioQuality string
	OutputPath   string
	Status       string
	Error        string
	CreatedAt    time.Time
}

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	logger := zapgorm2.New(zap.L())
	logger.SetAsDefault()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Store{db}, nil
}

func (s *Store) Add(r *Record) error {
	return s.db.Create(r).Error
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	var records []Record
	err := s.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}
