package models

import (
	"fmt"
	"strconv"

	"github.com/ensemble/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Dialector returns the gorm dialector for the configured driver.
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Open connects with TranslateError enabled so unique violations surface
// as gorm.ErrDuplicatedKey on every driver.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

func InitDB(cfg *config.DatabaseConfig) error {
	dialector, err := Dialector(cfg)
	if err != nil {
		return err
	}

	db, err := Open(dialector, logger.Warn)
	if err != nil {
		return err
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return AutoMigrateDB(DB)
}

// AutoMigrateDB migrates every Ensemble table on the given connection.
func AutoMigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Team{},
		&TeamPermission{},
		&Application{},
		&ScorecardEntry{},
		&AvailabilityRecord{},
		&VolumeRecord{},
		&PublishStatus{},
		&TurnoverSettings{},
		&ItsmReviewQueueItem{},
		&TurnoverEntry{},
		&RfcDetail{},
		&IncDetail{},
		&MimDetail{},
		&CommsDetail{},
		&FinalizedTurnover{},
		&Link{},
		&SystemConfig{},
		&SystemLog{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates default system configs if they do not exist.
// Initial values come from the loaded config file.
func SeedDefaultData(cfg *config.Config) error {
	return SeedDefaultDataDB(DB, cfg)
}

func SeedDefaultDataDB(db *gorm.DB, cfg *config.Config) error {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	defaultConfigs := []SystemConfig{
		{Key: "log_retention_days", Value: strconv.Itoa(cfg.Log.RetentionDays), Type: "int", Group: "system", Label: "System Log Retention Days"},
		{Key: "turnover_finalize_cooldown_minutes", Value: strconv.Itoa(cfg.Turnover.FinalizeCooldownMinutes), Type: "int", Group: "turnover", Label: "Minimum minutes between turnover finalizations"},
		{Key: "email_enabled", Value: strconv.FormatBool(cfg.Email.Enabled), Type: "bool", Group: "email", Label: "Send team registration emails"},
	}

	for _, c := range defaultConfigs {
		var count int64
		db.Model(&SystemConfig{}).Where(&SystemConfig{Key: c.Key}).Count(&count)
		if count == 0 {
			if err := db.Create(&c).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
