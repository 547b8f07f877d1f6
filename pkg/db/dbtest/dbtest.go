// Package dbtest opens isolated in-memory sqlite databases with the
// application schema for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db"
)

// DSN returns a private shared-cache in-memory database name.
func DSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

// Open returns a schema-initialized connection closed at test cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(DSN()), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.ApplySQLiteSchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// Tx runs service transactions directly on a test connection.
type Tx struct{ DB *gorm.DB }

func (t Tx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.DB.WithContext(ctx).Transaction(fn)
}
