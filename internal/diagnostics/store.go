package diagnostics

import (
	"fmt"
	"log"

	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// Store persists records as models.Diagnostic rows.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the diagnostics table and returns a Store.
func NewStore(gormDB *gorm.DB) (*Store, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("diagnostics: db is required")
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	return &Store{db: gormDB}, nil
}

// Record inserts r. Insert failures are logged, never returned.
func (s *Store) Record(r Record) {
	row := models.Diagnostic{
		Kind:      string(r.Kind),
		Username:  r.Username,
		Message:   r.Message,
		CreatedAt: r.At,
	}
	if err := s.db.Create(&row).Error; err != nil {
		log.Printf("diagnostics: store record: %v", err)
	}
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Diagnostic
	if err := s.db.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("diagnostics: recent: %w", err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = Record{
			Kind:     Kind(row.Kind),
			Username: row.Username,
			Message:  row.Message,
			At:       row.CreatedAt,
		}
	}
	return out, nil
}

// CountByKind returns the number of stored records per kind.
func (s *Store) CountByKind() (map[Kind]int64, error) {
	type row struct {
		Kind  string
		Count int64
	}
	var rows []row
	if err := s.db.Model(&models.Diagnostic{}).
		Select("kind, count(*) as count").
		Group("kind").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("diagnostics: count by kind: %w", err)
	}
	out := make(map[Kind]int64, len(rows))
	for _, r := range rows {
		out[Kind(r.Kind)] = r.Count
	}
	return out, nil
}
