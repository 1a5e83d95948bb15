package repository

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// OpenDB 根据 DSN 选择驱动：postgres://… 使用 PostgreSQL，sqlite://<path> 使用内嵌 SQLite。
func OpenDB(dsn string) (*gorm.DB, error) {
	return openDB(dsn, os.Stderr)
}

// newLogger 只输出告警与错误；查不到记录是冲突预检与 404 解析的正常路径，不记录。
func newLogger(out io.Writer) logger.Interface {
	return logger.New(log.New(out, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func openDB(dsn string, logOutput io.Writer) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isSQLite := strings.HasPrefix(dsn, sqliteScheme)
	if isSQLite {
		dialector = sqlite.Open(sqliteDSN(strings.TrimPrefix(dsn, sqliteScheme)))
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger(logOutput),
	})
	if err != nil {
		return nil, err
	}

	if isSQLite {
		// SQLite 只允许单写者，单连接避免事务之间互相 SQLITE_BUSY。
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&DeploymentModel{},
		&VersionModel{},
		&CategoryModel{},
		&DeploymentCategoryModel{},
		&ProxyRouteModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
