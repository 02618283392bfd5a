// Package userdir implements the radio-ID directory (C12): an optional
// local SQLite cache mapping radio IDs to callsigns, populated from an
// operator-supplied CSV file. It satisfies matcher.Directory so the
// access-control matcher can resolve a peer's callsign when the peer's
// own RPTC callsign is empty.
//
// The cache is populated entirely from LoadCSV; this package never makes
// outbound network calls on its own.
package userdir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"

	"github.com/hbp4/hbp4/pkg/logger"
)

// radioIDEntry is the GORM model backing the cache table.
type radioIDEntry struct {
	RadioID   uint32 `gorm:"primarykey"`
	Callsign  string `gorm:"index;size:20"`
	FirstName string `gorm:"size:50"`
	LastName  string `gorm:"size:50"`
	City      string `gorm:"size:50"`
	State     string `gorm:"size:50"`
	Country   string `gorm:"size:50"`
	UpdatedAt time.Time
}

func (radioIDEntry) TableName() string { return "radio_id_directory" }

// Store is a SQLite-backed radio_id -> callsign cache.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens (creating if necessary) the SQLite cache at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		path = "userdir.db"
	}
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory cache dir: %w", err)
		}
	}

	gormLog := gormlogger.New(&gormLogAdapter{log: log}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	dialector := sqlite.Dialector{DriverName: "sqlite", DSN: path}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open directory cache: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("directory cache handle: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&radioIDEntry{}); err != nil {
		return nil, fmt.Errorf("migrate directory cache: %w", err)
	}

	return &Store{db: db, log: log.WithComponent("userdir")}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Sync upserts entries into the cache in batches of
// batchSize (min 1). Entries not present in the new set are left in
// place — the CSV snapshot is additive, matching the teacher's upsert
// semantics, since a partial CSV should never silently blank entries it
// doesn't mention.
func (s *Store) Sync(entries []Entry, batchSize int) error {
	if len(entries) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	rows := make([]radioIDEntry, len(entries))
	now := time.Now()
	for i, e := range entries {
		rows[i] = radioIDEntry{
			RadioID:   e.RadioID,
			Callsign:  e.Callsign,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			City:      e.City,
			State:     e.State,
			Country:   e.Country,
			UpdatedAt: now,
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < len(rows); i += batchSize {
			end := i + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			batch := rows[i:end]
			if err := tx.Save(&batch).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Lookup satisfies matcher.Directory.
func (s *Store) Lookup(radioID uint32) (string, bool) {
	var row radioIDEntry
	if err := s.db.Where("radio_id = ?", radioID).First(&row).Error; err != nil {
		return "", false
	}
	return row.Callsign, row.Callsign != ""
}

// Count returns the number of cached entries.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.Model(&radioIDEntry{}).Count(&n).Error
	return n, err
}

type gormLogAdapter struct {
	log *logger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
