// Package store implements the transactional registry store on top of GORM.
// It supports SQLite (single-node, tests) and PostgreSQL (production)
// through the same codebase and enforces identity uniqueness and
// referential integrity for domains, contacts, and hosts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/qenex/regd/pkg/registry/models"
)

// BackendType selects the database backend.
type BackendType string

const (
	// BackendSQLite uses SQLite (single-node, default).
	BackendSQLite BackendType = "sqlite"

	// BackendPostgres uses PostgreSQL.
	BackendPostgres BackendType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file. ":memory:" opens an
	// in-memory database (used by tests).
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	SSLMode      string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains registry database configuration.
type Config struct {
	Type     BackendType    `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = BackendSQLite
	}
	if c.Type == BackendSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "/var/lib/regd/registry.db"
	}
	if c.Type == BackendPostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Type {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case BackendPostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// Store is the registry store. All command-scoped mutations go through a
// Txn obtained from Begin; registrar credential checks and read-only
// front-end queries use the Store directly.
type Store struct {
	db     *gorm.DB
	config *Config
}

// Open connects to the configured backend and runs schema auto-migration.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case BackendSQLite:
		dsn := config.SQLite.Path
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			// WAL for concurrent readers, busy_timeout so command
			// transactions wait instead of failing on a locked database.
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)

	case BackendPostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == BackendPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Store{db: db, config: config}, nil
}

// DB returns the underlying GORM handle. Used by the read-only RDAP and
// WHOIS front ends and by tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Begin starts a transaction scoped to a single EPP command. Repeatable
// read closes the check-then-write window inside create/update/delete.
// SQLite transactions are serializable already and its driver rejects
// explicit isolation levels, so the option is only set for PostgreSQL.
func (s *Store) Begin(ctx context.Context) *Txn {
	db := s.db.WithContext(ctx)
	var tx *gorm.DB
	if s.config.Type == BackendPostgres {
		tx = db.Begin(&sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	} else {
		tx = db.Begin()
	}
	return &Txn{db: tx}
}

// ============================================
// REGISTRAR OPERATIONS
// ============================================

// GetRegistrar returns the registrar account with the given client ID.
func (s *Store) GetRegistrar(ctx context.Context, clID string) (*models.Registrar, error) {
	var reg models.Registrar
	err := s.db.WithContext(ctx).Where("id = ?", clID).First(&reg).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrRegistrarNotFound)
	}
	return &reg, nil
}

// ListRegistrars returns all registrar accounts.
func (s *Store) ListRegistrars(ctx context.Context) ([]*models.Registrar, error) {
	var regs []*models.Registrar
	if err := s.db.WithContext(ctx).Order("id").Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

// CreateRegistrar creates a registrar account with a bcrypt-hashed
// passphrase.
func (s *Store) CreateRegistrar(ctx context.Context, clID, name, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	reg := models.Registrar{
		ID:           clID,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&reg).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrRegistrarExists
		}
		return err
	}
	return nil
}

// SetRegistrarPassword replaces a registrar passphrase (login <newPW>).
func (s *Store) SetRegistrarPassword(ctx context.Context, clID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res := s.db.WithContext(ctx).
		Model(&models.Registrar{}).
		Where("id = ?", clID).
		Updates(map[string]any{"password_hash": string(hash), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrRegistrarNotFound
	}
	return nil
}

// ValidateRegistrarCredentials checks a login attempt against the stored
// bcrypt hash. Unknown registrars and bad passphrases return the same
// sentinel so login failures do not leak which part was wrong.
func (s *Store) ValidateRegistrarCredentials(ctx context.Context, clID, password string) (*models.Registrar, error) {
	reg, err := s.GetRegistrar(ctx, clID)
	if err != nil {
		if errors.Is(err, models.ErrRegistrarNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(reg.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return reg, nil
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation from either backend.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// convertNotFound converts gorm.ErrRecordNotFound to the given sentinel.
func convertNotFound(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
