package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ritgame/apiserver/types"
	"github.com/tidwall/buntdb"
)

const (
	buntUserPrefix     = "user:"
	buntExternalPrefix = "user_ext:"
	buntSeqKey         = "seq:user"
	buntSeqIndex       = "users_by_seq"
)

// BuntUserStore keeps users as JSON documents in a BuntDB file.
// Each document lives under user:<recordId>; user_ext:<externalId> holds the
// record id and acts as the uniqueness guard for external ids.
type BuntUserStore struct {
	db  *buntdb.DB
	now func() time.Time
}

// OpenBuntUserStore opens (or creates) the BuntDB file at path.
// Use ":memory:" for a non-persistent store.
func OpenBuntUserStore(path string) (*BuntUserStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, newError("open", ErrStorageUnavailable, err)
	}
	if err := db.CreateIndex(buntSeqIndex, buntUserPrefix+"*", buntdb.IndexJSON("seq")); err != nil {
		_ = db.Close()
		return nil, newError("open", ErrStorageUnavailable, err)
	}
	return &BuntUserStore{db: db, now: time.Now}, nil
}

func (s *BuntUserStore) Create(ctx context.Context, candidate types.User) (types.User, bool, error) {
	row, err := prepareCandidate(candidate, s.now())
	if err != nil {
		return types.User{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return types.User{}, false, unavailable("create", err)
	}

	var (
		stored  userRow
		created bool
	)
	err = s.db.Update(func(tx *buntdb.Tx) error {
		recordID, err := tx.Get(buntExternalPrefix + row.ExternalID)
		if err == nil {
			stored, err = getBuntRow(tx, recordID)
			return err
		}
		if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}

		if _, err := tx.Get(buntUserPrefix + row.RecordID); err == nil {
			return newError("create", ErrConflict, fmt.Errorf("record id %q already exists", row.RecordID))
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}

		seq, err := nextBuntSeq(tx)
		if err != nil {
			return err
		}
		row.Seq = seq
		if err := setBuntRow(tx, row); err != nil {
			return err
		}
		if _, _, err := tx.Set(buntExternalPrefix+row.ExternalID, row.RecordID, nil); err != nil {
			return err
		}
		stored = row
		created = true
		return nil
	})
	if err != nil {
		return types.User{}, false, unavailable("create", err)
	}

	user, err := stored.user()
	if err != nil {
		return types.User{}, false, err
	}
	return user, created, nil
}

func (s *BuntUserStore) GetByExternalID(ctx context.Context, externalID string) (types.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, false, unavailable("get", err)
	}

	var (
		row   userRow
		found bool
	)
	err := s.db.View(func(tx *buntdb.Tx) error {
		recordID, err := tx.Get(buntExternalPrefix + externalID)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}
		row, err = getBuntRow(tx, recordID)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return types.User{}, false, unavailable("get", err)
	}
	if !found {
		return types.User{}, false, nil
	}

	user, err := row.user()
	if err != nil {
		return types.User{}, false, err
	}
	return user, true, nil
}

func (s *BuntUserStore) List(ctx context.Context, start, limit int) ([]types.User, error) {
	offset, count, err := window(start, limit)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []types.User{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}

	rows := make([]userRow, 0, count)
	err = s.db.View(func(tx *buntdb.Tx) error {
		skipped := 0
		var decodeErr error
		err := tx.Ascend(buntSeqIndex, func(key, value string) bool {
			if skipped < offset {
				skipped++
				return true
			}
			var row userRow
			if err := json.Unmarshal([]byte(value), &row); err != nil {
				decodeErr = newError("list", ErrMalformedRecord, fmt.Errorf("document %q: %w", key, err))
				return false
			}
			rows = append(rows, row)
			return len(rows) < count
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if err != nil {
		return nil, unavailable("list", err)
	}

	return usersFromRows(rows)
}

func (s *BuntUserStore) Update(ctx context.Context, recordID string, patch types.UserPatch) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, unavailable("update", err)
	}

	var updated userRow
	err := s.db.Update(func(tx *buntdb.Tx) error {
		current, err := getBuntRow(tx, recordID)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return notFound("update", recordID)
			}
			return err
		}
		user, err := current.user()
		if err != nil {
			return err
		}

		next, err := newUserRow(patch.Apply(user))
		if err != nil {
			return newError("update", ErrInvalidArgument, err)
		}
		next.Seq = current.Seq
		if err := setBuntRow(tx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return types.User{}, unavailable("update", err)
	}
	return updated.user()
}

func (s *BuntUserStore) Delete(ctx context.Context, recordID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("delete", err)
	}

	deleted := false
	err := s.db.Update(func(tx *buntdb.Tx) error {
		current, err := getBuntRow(tx, recordID)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}
		if _, err := tx.Delete(buntUserPrefix + recordID); err != nil {
			return err
		}
		if _, err := tx.Delete(buntExternalPrefix + current.ExternalID); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, unavailable("delete", err)
	}
	return deleted, nil
}

// Close closes the underlying BuntDB file.
func (s *BuntUserStore) Close() error {
	return s.db.Close()
}

func getBuntRow(tx *buntdb.Tx, recordID string) (userRow, error) {
	value, err := tx.Get(buntUserPrefix + recordID)
	if err != nil {
		return userRow{}, err
	}
	var row userRow
	if err := json.Unmarshal([]byte(value), &row); err != nil {
		return userRow{}, newError("decode", ErrMalformedRecord, fmt.Errorf("document %q: %w", recordID, err))
	}
	return row, nil
}

func setBuntRow(tx *buntdb.Tx, row userRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(buntUserPrefix+row.RecordID, string(data), nil)
	return err
}

func nextBuntSeq(tx *buntdb.Tx) (int64, error) {
	var current int64
	value, err := tx.Get(buntSeqKey)
	switch {
	case err == nil:
		current, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, newError("create", ErrMalformedRecord, fmt.Errorf("sequence: %w", err))
		}
	case !errors.Is(err, buntdb.ErrNotFound):
		return 0, err
	}

	next := current + 1
	if _, _, err := tx.Set(buntSeqKey, strconv.FormatInt(next, 10), nil); err != nil {
		return 0, err
	}
	return next, nil
}
