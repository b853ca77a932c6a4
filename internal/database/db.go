package database

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/model"
)

// Open connects to the configured store and verifies the connection.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "", "mysql":
		return OpenMySQL(DSN(cfg))
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("database.Open: unknown driver %q", cfg.Driver)
	}
}

// DSN builds a MySQL DSN. parseTime maps DATETIME to time.Time and loc=UTC
// keeps times consistent between hosts.
func DSN(cfg config.DBConfig) string {
	c := mysqldrv.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Pass
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	c.DBName = cfg.Name
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// OpenMySQL opens a pooled MySQL connection from a ready DSN.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	const op = "database.OpenMySQL"

	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Pool settings
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	return db, nil
}

// OpenSQLite opens a sqlite database; ":memory:" gives a private in-memory
// store, which only works with a single connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	const op = "database.OpenSQLite"

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// duplicate keys surface as gorm.ErrDuplicatedKey on every driver
		TranslateError: true,
	}
}

// Migrate creates or updates the schema and seeds the role table.
func Migrate(db *gorm.DB) error {
	const op = "database.Migrate"

	err := db.AutoMigrate(
		&model.RoleRow{},
		&model.User{},
		&model.RefreshToken{},
		&model.Category{},
		&model.Announcement{},
		&model.AnnouncementMedia{},
		&model.UserFavorite{},
		&model.Review{},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	roles := model.DefaultRoles()
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&roles).Error; err != nil {
		return fmt.Errorf("%s: seed roles: %w", op, err)
	}
	return nil
}

// SeedCategories inserts titles when the categories table is empty, so a
// fresh deployment can accept announcements. Existing categories are never
// touched.
func SeedCategories(db *gorm.DB, titles []string) error {
	const op = "database.SeedCategories"

	var n int64
	if err := db.Model(&model.Category{}).Count(&n).Error; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	rows := make([]model.Category, 0, len(titles))
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			rows = append(rows, model.Category{Title: t})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
