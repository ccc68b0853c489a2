package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

const userColumns = `seq, record_id, external_id, display_name, scores, uploaded_content,
		profile_image_url, banner_image_url, bio, country, last_login, is_supporter`

var postgresDialect = dialect{
	insert: `
		INSERT INTO users (record_id, external_id, display_name, scores, uploaded_content,
			profile_image_url, banner_image_url, bio, country, last_login, is_supporter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING seq`,
	getByExternalID: `
		SELECT ` + userColumns + `
		FROM users
		WHERE external_id = $1`,
	list: `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY seq
		LIMIT $1 OFFSET $2`,
	update: `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
			scores = COALESCE($3, scores),
			uploaded_content = COALESCE($4, uploaded_content),
			profile_image_url = COALESCE($5, profile_image_url),
			banner_image_url = COALESCE($6, banner_image_url),
			bio = COALESCE($7, bio),
			country = COALESCE($8, country),
			last_login = COALESCE($9, last_login),
			is_supporter = COALESCE($10, is_supporter)
		WHERE record_id = $1
		RETURNING ` + userColumns,
	delete: `DELETE FROM users WHERE record_id = $1`,
	isUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
	},
}

// NewPostgresUserStore returns a store backed by the users table created by
// the Postgres migrations.
func NewPostgresUserStore(db *sql.DB) *SQLUserStore {
	return newSQLUserStore(db, postgresDialect)
}
