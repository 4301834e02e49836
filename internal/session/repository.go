package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// CredentialRepository persists the bearer credential across restarts.
type CredentialRepository interface {
	// Load returns the stored credential, or "" when none is stored.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
	Clear(ctx context.Context) error
}

const credentialKey = "token"

// storedCredential is the single-row table backing the persisted credential.
type storedCredential struct {
	Key       string `gorm:"primaryKey;size:32"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (storedCredential) TableName() string { return "credentials" }

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository stores the credential in db, migrating the table.
func NewGormRepository(db *gorm.DB) (CredentialRepository, error) {
	if err := db.AutoMigrate(&storedCredential{}); err != nil {
		return nil, err
	}
	return &gormRepository{db: db}, nil
}

// OpenSQLite opens (creating if needed) the SQLite database at dsn.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func (r *gormRepository) Load(ctx context.Context) (string, error) {
	var row storedCredential
	err := r.db.WithContext(ctx).First(&row, "key = ?", credentialKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (r *gormRepository) Save(ctx context.Context, credential string) error {
	row := storedCredential{Key: credentialKey, Value: credential, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (r *gormRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Delete(&storedCredential{}, "key = ?", credentialKey).Error
}

// memoryRepository keeps the credential for the lifetime of the process.
type memoryRepository struct {
	mu    sync.Mutex
	value string
}

func NewMemoryRepository() CredentialRepository {
	return &memoryRepository{}
}

func (r *memoryRepository) Load(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, nil
}

func (r *memoryRepository) Save(_ context.Context, credential string) error {
	r.mu.Lock()
	r.value = credential
	r.mu.Unlock()
	return nil
}

func (r *memoryRepository) Clear(context.Context) error {
	return r.Save(context.Background(), "")
}
