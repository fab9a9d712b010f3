package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfmate/internal/shared/config"
	"shelfmate/internal/users"
	applog "shelfmate/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusMissing  = "missing"
	StatusDisabled = "disabled"
)

// DB holds the credential store and the Redis client shared by the rate
// limiter and the OAuth state store.
type DB struct {
	PostgreSQL *gorm.DB
	Redis      *redis.Client
}

// HealthReport is the state of each dependency the auth flows need.
type HealthReport struct {
	PostgreSQL string `json:"postgresql"`
	Schema     string `json:"schema"`
	Redis      string `json:"redis"`
}

func (h HealthReport) Healthy() bool {
	return h.PostgreSQL != StatusDown && h.Redis != StatusDown && h.Schema != StatusMissing && h.Schema != StatusDown
}

// InitDB connects to Postgres, migrates the users schema and connects to
// Redis. Nothing is left open when a step fails.
func InitDB(cfg *config.Config) (*DB, error) {
	pg, err := openPostgreSQL(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	db := &DB{PostgreSQL: pg}

	if err := Migrate(pg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.Redis, err = openRedis(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	return db, nil
}

func openPostgreSQL(cfg *config.Config) (*gorm.DB, error) {
	// statements carry refresh tokens, so they are never logged at info level
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.IsDevelopment() {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	pg, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := pg.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Auth traffic is short queries on one table
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	applog.GetDefault().Info("PostgreSQL connected", "host", cfg.Database.Host, "database", cfg.Database.Name)
	return pg, nil
}

func openRedis(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	applog.GetDefault().Info("Redis connected", "addr", cfg.Redis.Addr)
	return rdb, nil
}

// Close closes all database connections
func (db *DB) Close() error {
	var errs []error

	if db.PostgreSQL != nil {
		if sqlDB, err := db.PostgreSQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close PostgreSQL: %w", err))
			}
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Health checks both connections and that the users table still carries the
// identity indexes sign-up and OAuth linking rely on.
func (db *DB) Health(ctx context.Context) (HealthReport, error) {
	report := HealthReport{PostgreSQL: StatusDisabled, Schema: StatusDisabled, Redis: StatusDisabled}
	var errs []error

	if db.PostgreSQL != nil {
		report.PostgreSQL, report.Schema = StatusUp, StatusUp

		if err := pingPostgreSQL(ctx, db.PostgreSQL); err != nil {
			report.PostgreSQL, report.Schema = StatusDown, StatusDown
			errs = append(errs, err)
		} else if missing := missingSchema(db.PostgreSQL.WithContext(ctx).Migrator()); len(missing) > 0 {
			report.Schema = StatusMissing
			errs = append(errs, fmt.Errorf("auth schema incomplete: missing %v", missing))
		}
	}

	if db.Redis != nil {
		report.Redis = StatusUp
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			report.Redis = StatusDown
			errs = append(errs, fmt.Errorf("redis ping failed: %w", err))
		}
	}

	return report, errors.Join(errs...)
}

// HealthCheck returns the failures found by Health, joined.
func (db *DB) HealthCheck(ctx context.Context) error {
	_, err := db.Health(ctx)
	return err
}

func pingPostgreSQL(ctx context.Context, pg *gorm.DB) error {
	sqlDB, err := pg.DB()
	if err != nil {
		return fmt.Errorf("PostgreSQL health check failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("PostgreSQL ping failed: %w", err)
	}
	return nil
}

// schemaInspector is the part of gorm.Migrator the schema check needs.
type schemaInspector interface {
	HasTable(value interface{}) bool
	HasIndex(value interface{}, name string) bool
}

func missingSchema(m schemaInspector) []string {
	if !m.HasTable(&users.User{}) {
		return []string{"users"}
	}

	var missing []string
	for _, index := range AuthIndexes {
		if !m.HasIndex(&users.User{}, index) {
			missing = append(missing, index)
		}
	}
	return missing
}
