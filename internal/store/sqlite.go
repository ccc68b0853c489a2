package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		seq               INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id         TEXT    NOT NULL UNIQUE,
		external_id       TEXT    NOT NULL UNIQUE,
		display_name      TEXT    NOT NULL DEFAULT '',
		scores            TEXT    NOT NULL DEFAULT '{}',
		uploaded_content  TEXT    NOT NULL DEFAULT '{}',
		profile_image_url TEXT    NOT NULL DEFAULT '',
		banner_image_url  TEXT    NOT NULL DEFAULT '',
		bio               TEXT    NOT NULL DEFAULT '',
		country           TEXT    NOT NULL DEFAULT '',
		last_login        INTEGER NOT NULL DEFAULT 0,
		is_supporter      INTEGER NOT NULL DEFAULT 0
	);`

var sqliteDialect = dialect{
	insert: `
		INSERT INTO users (record_id, external_id, display_name, scores, uploaded_content,
			profile_image_url, banner_image_url, bio, country, last_login, is_supporter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING seq`,
	getByExternalID: `
		SELECT ` + userColumns + `
		FROM users
		WHERE external_id = ?`,
	list: `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY seq
		LIMIT ? OFFSET ?`,
	update: `
		UPDATE users
		SET display_name = COALESCE(?2, display_name),
			scores = COALESCE(?3, scores),
			uploaded_content = COALESCE(?4, uploaded_content),
			profile_image_url = COALESCE(?5, profile_image_url),
			banner_image_url = COALESCE(?6, banner_image_url),
			bio = COALESCE(?7, bio),
			country = COALESCE(?8, country),
			last_login = COALESCE(?9, last_login),
			is_supporter = COALESCE(?10, is_supporter)
		WHERE record_id = ?1
		RETURNING ` + userColumns,
	delete: `DELETE FROM users WHERE record_id = ?`,
	isUniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
}

// NewSQLiteUserStore creates the users table if needed and returns a store
// backed by it.
func NewSQLiteUserStore(ctx context.Context, db *sql.DB) (*SQLUserStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite: creating users table: %w", err)
	}
	return newSQLUserStore(db, sqliteDialect), nil
}
