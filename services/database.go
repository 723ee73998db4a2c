package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wustream/gate_api/model"
)

// DbService owns the durable store. It is the source of truth for API key
// quotas and network blocks; caches layer on top of it, never beside it.
type DbService struct {
	context.DefaultService
	db *gorm.DB

	driver   string
	database string
}

const DB_SVC = "db_svc"

func (ds DbService) Id() string {
	return DB_SVC
}

// Db Access to raw DbService db
func (ds DbService) Db() *gorm.DB {
	return ds.db
}

func (ds *DbService) Configure(ctx *context.Context) error {
	ds.driver = os.Getenv("DB_DRIVER")
	if ds.driver == "" {
		ds.driver = "sqlite"
	}

	ds.database = os.Getenv("DB_DATABASE")
	if ds.database == "" {
		ds.database = "gateway.db"
	}

	return ds.DefaultService.Configure(ctx)
}

// Start the service and open connection to the database
// Migrate any tables that have changed since last runtime
func (ds *DbService) Start() (err error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	switch ds.driver {
	case "postgres":
		ds.db, err = gorm.Open(postgres.Open(ds.database), cfg)
	case "sqlite":
		ds.db, err = gorm.Open(sqlite.Open(ds.database), cfg)
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", ds.driver)
	}
	if err != nil {
		return err
	}

	err = ds.db.AutoMigrate(&model.ApiKey{}, &model.BlockedIP{})
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *DbService) Shutdown() {
}

// ==================== API KEY ACCESSORS ====================

func (ds *DbService) GetApiKey(apiKey string) (*model.ApiKey, error) {
	var record model.ApiKey
	err := ds.db.Where("api_key = ?", apiKey).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (ds *DbService) CreateApiKey(record *model.ApiKey) error {
	return ds.db.Create(record).Error
}

// ==================== BLOCKLIST ACCESSORS ====================

func (ds *DbService) GetBlockedIP(identity string) (*model.BlockedIP, error) {
	var entry model.BlockedIP
	err := ds.db.Where("identity = ?", identity).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (ds *DbService) SaveBlockedIP(entry *model.BlockedIP) error {
	return ds.db.Save(entry).Error
}

func (ds *DbService) DeleteBlockedIP(identity string) error {
	return ds.db.Where("identity = ?", identity).Delete(&model.BlockedIP{}).Error
}

func (ds *DbService) AllBlockedIPs() ([]model.BlockedIP, error) {
	var entries []model.BlockedIP
	err := ds.db.Find(&entries).Error
	return entries, err
}

func (ds *DbService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound // 404
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict // 409
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError // 500
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			statusCode = http.StatusConflict // 409
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "no such table") {
			statusCode = http.StatusInternalServerError // 500
			errorType = "SCHEMA_ERROR"
		} else {
			statusCode = http.StatusInternalServerError // 500
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}
