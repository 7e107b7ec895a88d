package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Silent drops GORM's own query log (tests).
	Silent bool   `yaml:"-"`
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects to the run-tracking database and migrates its schema.
// Driver "none" (or empty) returns nil, nil: run tracking is optional.
func Open(logg *logger.Logger, cfg Config) (*Service, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == DriverNone {
		return nil, nil
	}
	serviceLog := logg.With("service", "RunsDB", "driver", driver)

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "omya_runs.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("postgres runs db requires OMYA_RUNS_DB_DSN")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown runs db driver %q (allowed: none, sqlite, postgres)", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	if cfg.Silent {
		gormLog = gormLogger.Default.LogMode(gormLogger.Silent)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to runs db: %w", err)
	}
	if err := AutoMigrateAll(gdb); err != nil {
		return nil, fmt.Errorf("migrate runs db: %w", err)
	}
	serviceLog.Info("runs db ready")
	return &Service{db: gdb, log: serviceLog}, nil
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(&domain.CourseRun{})
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
