package db

import (
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local sqlite runs and tests.
// Array and jsonb columns are stored as text.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		options TEXT NOT NULL DEFAULT '[]',
		tags TEXT,
		popularity INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS store_locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		hours TEXT NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		discount_type TEXT NOT NULL,
		value INTEGER NOT NULL,
		min_order_amount INTEGER NOT NULL DEFAULT 0,
		max_discount_amount INTEGER,
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL,
		usage_limit INTEGER,
		usage_count INTEGER NOT NULL DEFAULT 0,
		applicable_categories TEXT,
		applicable_products TEXT,
		applicable_users TEXT,
		valid_weekdays TEXT,
		valid_hour_from INTEGER,
		valid_hour_to INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		order_type TEXT NOT NULL,
		status TEXT NOT NULL,
		status_history TEXT,
		payment_status TEXT NOT NULL,
		payment_history TEXT,
		payment_session_id TEXT,
		payment_retryable BOOLEAN NOT NULL DEFAULT 0,
		items TEXT NOT NULL,
		discounts TEXT,
		customer TEXT NOT NULL,
		fulfillment TEXT,
		subtotal INTEGER NOT NULL,
		discount_total INTEGER NOT NULL DEFAULT 0,
		tax INTEGER NOT NULL DEFAULT 0,
		delivery_fee INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL,
		currency TEXT NOT NULL,
		receipt_token TEXT,
		notes TEXT,
		confirmed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_payment_session ON orders (payment_session_id)`,
}

// ApplySQLiteSchema creates the application tables on a sqlite connection.
func ApplySQLiteSchema(conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
