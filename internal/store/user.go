package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ritgame/apiserver/types"
	"github.com/rs/xid"
)

// UserStore owns the lifecycle of user records in one backing engine.
// Implementations are safe for concurrent use.
type UserStore interface {
	// Create inserts candidate unless a record with the same external id
	// exists, in which case the existing record is returned with created=false.
	Create(ctx context.Context, candidate types.User) (user types.User, created bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (user types.User, found bool, err error)
	// List returns the records at 1-based positions start..limit inclusive.
	List(ctx context.Context, start, limit int) ([]types.User, error)
	Update(ctx context.Context, recordID string, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, recordID string) (bool, error)
	Close() error
}

// userRow is the stored shape shared by all engines. Scores and uploaded
// content are kept as JSON text.
type userRow struct {
	Seq             int64  `json:"seq" firestore:"seq"`
	RecordID        string `json:"recordId" firestore:"recordId"`
	ExternalID      string `json:"externalId" firestore:"externalId"`
	DisplayName     string `json:"displayName" firestore:"displayName"`
	Scores          string `json:"scores" firestore:"scores"`
	UploadedContent string `json:"uploadedContent" firestore:"uploadedContent"`
	ProfileImageURL string `json:"profileImageUrl" firestore:"profileImageUrl"`
	BannerImageURL  string `json:"bannerImageUrl" firestore:"bannerImageUrl"`
	Bio             string `json:"bio" firestore:"bio"`
	Country         string `json:"country" firestore:"country"`
	LastLogin       int64  `json:"lastLogin" firestore:"lastLogin"`
	IsSupporter     bool   `json:"isSupporter" firestore:"isSupporter"`
}

func newUserRow(user types.User) (userRow, error) {
	scores, err := encodeMap(user.Scores)
	if err != nil {
		return userRow{}, fmt.Errorf("encode scores: %w", err)
	}
	content, err := encodeMap(user.UploadedContent)
	if err != nil {
		return userRow{}, fmt.Errorf("encode uploaded content: %w", err)
	}
	return userRow{
		RecordID:        user.RecordID,
		ExternalID:      user.ExternalID,
		DisplayName:     user.DisplayName,
		Scores:          scores,
		UploadedContent: content,
		ProfileImageURL: user.ProfileImageURL,
		BannerImageURL:  user.BannerImageURL,
		Bio:             user.Bio,
		Country:         user.Country,
		LastLogin:       user.LastLogin,
		IsSupporter:     user.IsSupporter,
	}, nil
}

func (r userRow) user() (types.User, error) {
	scores, err := decodeMap(r.Scores)
	if err != nil {
		return types.User{}, newError("decode", ErrMalformedRecord,
			fmt.Errorf("record %q scores: %w", r.RecordID, err))
	}
	content, err := decodeMap(r.UploadedContent)
	if err != nil {
		return types.User{}, newError("decode", ErrMalformedRecord,
			fmt.Errorf("record %q uploaded content: %w", r.RecordID, err))
	}
	return types.User{
		RecordID:        r.RecordID,
		ExternalID:      r.ExternalID,
		DisplayName:     r.DisplayName,
		Scores:          scores,
		UploadedContent: content,
		ProfileImageURL: r.ProfileImageURL,
		BannerImageURL:  r.BannerImageURL,
		Bio:             r.Bio,
		Country:         r.Country,
		LastLogin:       r.LastLogin,
		IsSupporter:     r.IsSupporter,
	}, nil
}

func encodeMap(m map[string]json.RawMessage) (string, error) {
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMap(raw string) (map[string]json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if strings.TrimSpace(raw) == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}

// prepareCandidate validates a create candidate and fills defaults. Ids are
// stored exactly as given so later lookups by the same value match.
func prepareCandidate(candidate types.User, now time.Time) (userRow, error) {
	if strings.TrimSpace(candidate.ExternalID) == "" {
		return userRow{}, invalid("create", "external id is required")
	}
	switch {
	case candidate.RecordID == "":
		candidate.RecordID = xid.New().String()
	case strings.TrimSpace(candidate.RecordID) == "":
		return userRow{}, invalid("create", "record id must not be blank")
	}
	if candidate.LastLogin == 0 {
		candidate.LastLogin = now.UnixMilli()
	}

	row, err := newUserRow(candidate)
	if err != nil {
		return userRow{}, newError("create", ErrInvalidArgument, err)
	}
	return row, nil
}

// window converts a 1-based inclusive range into an offset and a count.
func window(start, limit int) (offset, count int, err error) {
	if start < 1 {
		return 0, 0, invalid("list", "start must be at least 1")
	}
	if limit < 0 {
		return 0, 0, invalid("list", "limit must not be negative")
	}
	count = limit - start + 1
	if count < 0 {
		count = 0
	}
	return start - 1, count, nil
}

// patchColumns encodes the map fields of a patch; nil means "keep".
func patchColumns(patch types.UserPatch) (scores, content *string, err error) {
	if patch.Scores != nil {
		encoded, err := encodeMap(patch.Scores)
		if err != nil {
			return nil, nil, newError("update", ErrInvalidArgument, fmt.Errorf("encode scores: %w", err))
		}
		scores = &encoded
	}
	if patch.UploadedContent != nil {
		encoded, err := encodeMap(patch.UploadedContent)
		if err != nil {
			return nil, nil, newError("update", ErrInvalidArgument, fmt.Errorf("encode uploaded content: %w", err))
		}
		content = &encoded
	}
	return scores, content, nil
}

func usersFromRows(rows []userRow) ([]types.User, error) {
	users := make([]types.User, 0, len(rows))
	for _, row := range rows {
		user, err := row.user()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}
