package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ritgame/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userWithExternalID(id string) types.User {
	return types.User{ExternalID: id}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		start, limit      int
		offset, count     int
		wantInvalidRanges bool
	}{
		{start: 1, limit: 25, offset: 0, count: 25},
		{start: 2, limit: 3, offset: 1, count: 2},
		{start: 5, limit: 5, offset: 4, count: 1},
		{start: 6, limit: 5, offset: 5, count: 0},
		{start: 1, limit: 0, offset: 0, count: 0},
		{start: 0, limit: 5, wantInvalidRanges: true},
		{start: 1, limit: -1, wantInvalidRanges: true},
	}
	for _, tc := range cases {
		offset, count, err := window(tc.start, tc.limit)
		if tc.wantInvalidRanges {
			assert.ErrorIs(t, err, ErrInvalidArgument, "start=%d limit=%d", tc.start, tc.limit)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.offset, offset, "start=%d limit=%d", tc.start, tc.limit)
		assert.Equal(t, tc.count, count, "start=%d limit=%d", tc.start, tc.limit)
	}
}

func TestPrepareCandidateDefaults(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	row, err := prepareCandidate(types.User{ExternalID: "  steam-1 "}, now)
	require.NoError(t, err)
	assert.Equal(t, "  steam-1 ", row.ExternalID)
	assert.NotEmpty(t, row.RecordID)
	assert.Equal(t, int64(1700000000123), row.LastLogin)
	assert.Equal(t, "{}", row.Scores)
	assert.Equal(t, "{}", row.UploadedContent)

	other, err := prepareCandidate(types.User{ExternalID: "steam-2"}, now)
	require.NoError(t, err)
	assert.NotEqual(t, row.RecordID, other.RecordID)
}

func TestPrepareCandidateRejectsBlankExternalID(t *testing.T) {
	_, err := prepareCandidate(types.User{ExternalID: "   "}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPrepareCandidateRejectsBlankRecordID(t *testing.T) {
	_, err := prepareCandidate(types.User{ExternalID: "steam-1", RecordID: " \t"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	row, err := prepareCandidate(types.User{ExternalID: "steam-1", RecordID: " r1 "}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, " r1 ", row.RecordID)
}

func TestPrepareCandidateRejectsInvalidPayload(t *testing.T) {
	_, err := prepareCandidate(types.User{
		ExternalID: "steam-1",
		Scores:     map[string]json.RawMessage{"x": json.RawMessage(`{broken`)},
	}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUserRowDecode(t *testing.T) {
	user, err := userRow{RecordID: "r", ExternalID: "e", Scores: "", UploadedContent: "null"}.user()
	require.NoError(t, err)
	assert.NotNil(t, user.Scores)
	assert.NotNil(t, user.UploadedContent)

	_, err = userRow{RecordID: "r", Scores: "[]"}.user()
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := unavailable("list", cause)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "store: list: storage unavailable: connection reset", err.Error())

	// already typed errors pass through untouched
	typed := notFound("update", "r1")
	assert.Same(t, typed, unavailable("update", typed))
	assert.ErrorIs(t, typed, ErrNotFound)
}
