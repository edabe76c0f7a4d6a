package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on every start.  Each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		id                CHAR(36)     NOT NULL PRIMARY KEY,
		guardian_name     VARCHAR(255) NOT NULL,
		guardian_phone    VARCHAR(64)  NOT NULL,
		guardian_email    VARCHAR(255) NOT NULL,
		participants      JSON         NOT NULL,
		participant_count TINYINT UNSIGNED NOT NULL,
		total_amount      BIGINT       NOT NULL,
		status            ENUM('STARTED','CONFIRMED','APPROVED','PAID','REJECTED') NOT NULL DEFAULT 'STARTED',
		receipt_ref       VARCHAR(512) NULL,
		review_note       TEXT         NULL,
		reviewed_at       DATETIME     NULL,
		expired_at        DATETIME     NULL,
		created_at        DATETIME     NOT NULL,
		updated_at        DATETIME     NOT NULL,
		KEY idx_reservations_status (status),
		KEY idx_reservations_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS capacity_config (
		id         TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		total      INT UNSIGNED     NOT NULL,
		updated_at DATETIME         NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// seedCapacity creates the singleton row without touching an existing total.
const seedCapacity = `INSERT IGNORE INTO capacity_config (id, total, updated_at) VALUES (1, ?, UTC_TIMESTAMP())`

// Migrate creates the tables when missing and seeds the capacity singleton
// with defaultTotal.
func Migrate(ctx context.Context, db *sql.DB, defaultTotal int) error {
	if defaultTotal < 0 {
		return fmt.Errorf("default capacity must be >= 0, got %d", defaultTotal)
	}
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	if _, err := db.ExecContext(ctx, seedCapacity, defaultTotal); err != nil {
		return fmt.Errorf("seed capacity: %w", err)
	}
	return nil
}
