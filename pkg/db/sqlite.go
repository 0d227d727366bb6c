package db

import (
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/minhdq/repo-miner/cfg"
	"gorm.io/gorm"
)

// Sqlite holds the per-run source map file written by the unpacker.
// Unlike the warehouse there is no server; the database is a single
// file created next to the extracted output.
type Sqlite struct {
	Config  *cfg.Config
	Path    string
	once    sync.Once
	db      *gorm.DB
	initErr error
}

func NewSqlite(config *cfg.Config, path string) (*Sqlite, error) {
	if path == "" {
		path = config.Sqlite.Path
	}
	return &Sqlite{
		Config: config,
		Path:   path,
	}, nil
}

func (s *Sqlite) Db() (*gorm.DB, error) {
	s.once.Do(func() {
		s.db, s.initErr = gorm.Open(sqlite.Open(s.Path), &gorm.Config{})
	})
	return s.db, s.initErr
}

// Reset drops and recreates the tables for the given models. Every
// unpack run starts from an empty source map.
func (s *Sqlite) Reset(models ...interface{}) error {
	db, err := s.Db()
	if err != nil {
		return err
	}
	if err := db.Migrator().DropTable(models...); err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}

func (s *Sqlite) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		sqlDB.Close()
	}
	return nil
}
