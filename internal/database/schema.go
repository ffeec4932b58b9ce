package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup.  Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS showtimes (
		id            VARCHAR(128) NOT NULL PRIMARY KEY,
		movie         VARCHAR(255) NOT NULL,
		show_date     VARCHAR(32)  NOT NULL,
		show_time     VARCHAR(32)  NOT NULL,
		seat_rows     INT UNSIGNED NOT NULL,
		seats_per_row INT UNSIGNED NOT NULL,
		price_cents   BIGINT       NOT NULL,
		starts_at     DATETIME     NULL,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		hold_id           VARCHAR(64)  NOT NULL,
		showtime_id       VARCHAR(128) NOT NULL,
		movie             VARCHAR(255) NOT NULL,
		show_date         VARCHAR(32)  NOT NULL,
		show_time         VARCHAR(32)  NOT NULL,
		seats             JSON         NOT NULL,
		name              VARCHAR(255) NOT NULL,
		email             VARCHAR(255) NOT NULL,
		phone             VARCHAR(64)  NOT NULL,
		total_price_cents BIGINT       NOT NULL,
		payment_method    VARCHAR(64)  NOT NULL,
		payment_status    VARCHAR(32)  NOT NULL DEFAULT 'Success',
		payment_reference VARCHAR(255) NOT NULL,
		created_at        DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_bookings_hold (hold_id),
		KEY idx_bookings_showtime (showtime_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the ledger and catalog tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
