package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do NOT open the database in init(); main() decides when, and
	// initialization failures must be fatal there, not here.
}

// ConnectDatabase opens the on-device SQLite store and sets the global DB.
// Durability requirements are non-negotiable: a file-backed store that refuses
// WAL journaling is a fatal startup error, because every correctness guarantee
// above the local store depends on committed rows surviving a crash.
func ConnectDatabase() error {
	dbPath := strings.TrimSpace(os.Getenv("DB_PATH"))
	if dbPath == "" {
		dbPath = "inspect.db"
	}

	gdb, err := gorm.Open(sqlite.Open(dbPath), initConfig())
	if err != nil {
		return fmt.Errorf("open database %q: %w", dbPath, err)
	}

	// SQLite has a single writer; cap the pool so application writes
	// serialize in the driver instead of failing with SQLITE_BUSY.
	// Env overrides (optional):
	// - DB_MAX_OPEN_CONNS (default 1)
	// - DB_CONN_MAX_IDLE_TIME_SECONDS (default 60)
	if sqlDB, derr := gdb.DB(); derr == nil && sqlDB != nil {
		maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 1)
		connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second
		if maxOpen > 0 {
			sqlDB.SetMaxOpenConns(maxOpen)
		}
		if connMaxIdle > 0 {
			sqlDB.SetConnMaxIdleTime(connMaxIdle)
		}
	}

	var journalMode string
	if err := gdb.Raw("PRAGMA journal_mode=WAL").Scan(&journalMode).Error; err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	journalMode = strings.ToLower(journalMode)
	// In-memory stores (tests) report "memory"; acceptable, there is no
	// file to recover.
	if journalMode != "wal" && journalMode != "memory" {
		return fmt.Errorf("storage engine refused WAL journal mode (got %q)", journalMode)
	}
	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	db = gdb
	return nil
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// InitConfig Initialize Config
func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

// InitLog Connection Log Configuration
func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

// InitNamingStrategy Init NamingStrategy
func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// PhoneRegion is the default region used to normalize bare local phone
// numbers (no leading +) to E.164 before SMS dispatch.
func PhoneRegion() string {
	region := strings.TrimSpace(os.Getenv("PHONE_REGION"))
	if region == "" {
		region = "US"
	}
	return region
}
