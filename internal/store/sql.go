package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ritgame/apiserver/types"
)

// dialect holds the engine-specific statements for SQLUserStore.
// Every statement is parameterized.
type dialect struct {
	insert            string
	getByExternalID   string
	list              string
	update            string
	delete            string
	isUniqueViolation func(error) bool
}

// SQLUserStore handles persistence for users in a relational database.
type SQLUserStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLUserStore(db *sql.DB, d dialect) *SQLUserStore {
	return &SQLUserStore{db: db, dialect: d, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (userRow, error) {
	var row userRow
	err := scanner.Scan(
		&row.Seq,
		&row.RecordID,
		&row.ExternalID,
		&row.DisplayName,
		&row.Scores,
		&row.UploadedContent,
		&row.ProfileImageURL,
		&row.BannerImageURL,
		&row.Bio,
		&row.Country,
		&row.LastLogin,
		&row.IsSupporter,
	)
	return row, err
}

func (s *SQLUserStore) Create(ctx context.Context, candidate types.User) (types.User, bool, error) {
	row, err := prepareCandidate(candidate, s.now())
	if err != nil {
		return types.User{}, false, err
	}

	err = s.db.QueryRowContext(
		ctx,
		s.dialect.insert,
		row.RecordID,
		row.ExternalID,
		row.DisplayName,
		row.Scores,
		row.UploadedContent,
		row.ProfileImageURL,
		row.BannerImageURL,
		row.Bio,
		row.Country,
		row.LastLogin,
		row.IsSupporter,
	).Scan(&row.Seq)
	switch {
	case err == nil:
		user, err := row.user()
		if err != nil {
			return types.User{}, false, err
		}
		return user, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// The insert was skipped because the external id is taken.
		existing, found, err := s.GetByExternalID(ctx, row.ExternalID)
		if err != nil {
			return types.User{}, false, err
		}
		if !found {
			return types.User{}, false, newError("create", ErrConflict,
				errors.New("existing record was removed concurrently"))
		}
		return existing, false, nil
	case s.dialect.isUniqueViolation(err):
		return types.User{}, false, newError("create", ErrConflict, err)
	default:
		return types.User{}, false, unavailable("create", err)
	}
}

func (s *SQLUserStore) GetByExternalID(ctx context.Context, externalID string) (types.User, bool, error) {
	row, err := scanUserRow(s.db.QueryRowContext(ctx, s.dialect.getByExternalID, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, false, nil
		}
		return types.User{}, false, unavailable("get", err)
	}
	user, err := row.user()
	if err != nil {
		return types.User{}, false, err
	}
	return user, true, nil
}

func (s *SQLUserStore) List(ctx context.Context, start, limit int) ([]types.User, error) {
	offset, count, err := window(start, limit)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []types.User{}, nil
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.list, count, offset)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	stored := make([]userRow, 0, count)
	for rows.Next() {
		row, err := scanUserRow(rows)
		if err != nil {
			return nil, unavailable("list", err)
		}
		stored = append(stored, row)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}

	return usersFromRows(stored)
}

func (s *SQLUserStore) Update(ctx context.Context, recordID string, patch types.UserPatch) (types.User, error) {
	scores, content, err := patchColumns(patch)
	if err != nil {
		return types.User{}, err
	}

	row, err := scanUserRow(s.db.QueryRowContext(
		ctx,
		s.dialect.update,
		recordID,
		nullable(patch.DisplayName),
		nullable(scores),
		nullable(content),
		nullable(patch.ProfileImageURL),
		nullable(patch.BannerImageURL),
		nullable(patch.Bio),
		nullable(patch.Country),
		nullable(patch.LastLogin),
		nullable(patch.IsSupporter),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, notFound("update", recordID)
		}
		return types.User{}, unavailable("update", err)
	}
	return row.user()
}

func (s *SQLUserStore) Delete(ctx context.Context, recordID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.dialect.delete, recordID)
	if err != nil {
		return false, unavailable("delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("delete", err)
	}
	return affected > 0, nil
}

// Close closes the underlying connection pool.
func (s *SQLUserStore) Close() error {
	return s.db.Close()
}

func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}
