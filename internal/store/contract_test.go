package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ritgame/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runUserStoreContract exercises the behaviour every UserStore must share.
// newStore must return an empty store.
func runUserStoreContract(t *testing.T, newStore func(t *testing.T) UserStore) {
	t.Run("create then get returns the same record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, ok, err := s.Create(ctx, types.User{
			ExternalID:  "steam-1",
			DisplayName: "Ann",
			Scores:      map[string]json.RawMessage{"map-1": json.RawMessage(`{"pp":120,"acc":98.5}`)},
			Country:     "NZ",
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, created.RecordID)
		assert.Positive(t, created.LastLogin)
		assert.NotNil(t, created.UploadedContent)
		assert.Empty(t, created.UploadedContent)
		assert.False(t, created.IsSupporter)

		fetched, found, err := s.GetByExternalID(ctx, "steam-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, created, fetched)
		assert.Equal(t, "Ann", fetched.DisplayName)
		assert.JSONEq(t, `{"pp":120,"acc":98.5}`, string(fetched.Scores["map-1"]))
	})

	t.Run("create keeps caller supplied fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		input := types.User{
			RecordID:        "rec-fixed",
			ExternalID:      "steam-2",
			DisplayName:     "Bea",
			Scores:          map[string]json.RawMessage{},
			UploadedContent: map[string]json.RawMessage{"bm-9": json.RawMessage(`{"title":"song"}`)},
			ProfileImageURL: "https://img.example.com/p.png",
			BannerImageURL:  "https://img.example.com/b.png",
			Bio:             "hi",
			Country:         "DE",
			LastLogin:       1700000000000,
			IsSupporter:     true,
		}
		created, ok, err := s.Create(ctx, input)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, input, created)

		fetched, found, err := s.GetByExternalID(ctx, "steam-2")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, input, fetched)
	})

	t.Run("duplicate external id returns the existing record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, ok, err := s.Create(ctx, types.User{ExternalID: "steam-1", DisplayName: "Ann"})
		require.NoError(t, err)
		require.True(t, ok)

		second, ok, err := s.Create(ctx, types.User{ExternalID: "steam-1", DisplayName: "Impostor"})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, first, second)

		users, err := s.List(ctx, 1, 25)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("create without external id is rejected", func(t *testing.T) {
		s := newStore(t)

		_, _, err := s.Create(context.Background(), types.User{DisplayName: "nobody"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("create with a taken record id conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, _, err := s.Create(ctx, types.User{RecordID: "rec-1", ExternalID: "a"})
		require.NoError(t, err)

		_, _, err = s.Create(ctx, types.User{RecordID: "rec-1", ExternalID: "b"})
		assert.ErrorIs(t, err, ErrConflict)

		_, found, err := s.GetByExternalID(ctx, "b")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("ids with surrounding spaces round-trip unchanged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, ok, err := s.Create(ctx, types.User{RecordID: " r1 ", ExternalID: " u1 "})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, " r1 ", created.RecordID)
		assert.Equal(t, " u1 ", created.ExternalID)

		fetched, found, err := s.GetByExternalID(ctx, " u1 ")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, created, fetched)

		_, found, err = s.GetByExternalID(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, found)

		bio := "spaced"
		updated, err := s.Update(ctx, " r1 ", types.UserPatch{Bio: &bio})
		require.NoError(t, err)
		assert.Equal(t, "spaced", updated.Bio)

		deleted, err := s.Delete(ctx, " r1 ")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("get missing user is absent", func(t *testing.T) {
		s := newStore(t)

		_, found, err := s.GetByExternalID(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("update replaces provided fields only", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, _, err := s.Create(ctx, types.User{
			ExternalID:  "steam-1",
			DisplayName: "Ann",
			Bio:         "old bio",
			Country:     "NZ",
			Scores:      map[string]json.RawMessage{"a": json.RawMessage(`1`)},
			LastLogin:   10,
		})
		require.NoError(t, err)

		name := "Ann B"
		supporter := true
		login := int64(20)
		patch := types.UserPatch{
			DisplayName:     &name,
			IsSupporter:     &supporter,
			LastLogin:       &login,
			UploadedContent: map[string]json.RawMessage{"bm": json.RawMessage(`{"id":7}`)},
		}
		updated, err := s.Update(ctx, created.RecordID, patch)
		require.NoError(t, err)

		assert.Equal(t, "Ann B", updated.DisplayName)
		assert.True(t, updated.IsSupporter)
		assert.Equal(t, int64(20), updated.LastLogin)
		assert.JSONEq(t, `{"id":7}`, string(updated.UploadedContent["bm"]))
		assert.Equal(t, "old bio", updated.Bio)
		assert.Equal(t, "NZ", updated.Country)
		assert.Equal(t, created.Scores, updated.Scores)
		assert.Equal(t, created.RecordID, updated.RecordID)
		assert.Equal(t, created.ExternalID, updated.ExternalID)

		fetched, found, err := s.GetByExternalID(ctx, "steam-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, updated, fetched)
	})

	t.Run("update can clear a field", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, _, err := s.Create(ctx, types.User{ExternalID: "steam-1", Bio: "something", IsSupporter: true})
		require.NoError(t, err)

		empty := ""
		no := false
		updated, err := s.Update(ctx, created.RecordID, types.UserPatch{Bio: &empty, IsSupporter: &no})
		require.NoError(t, err)
		assert.Empty(t, updated.Bio)
		assert.False(t, updated.IsSupporter)
	})

	t.Run("update missing record is not found", func(t *testing.T) {
		s := newStore(t)

		name := "x"
		_, err := s.Update(context.Background(), "missing", types.UserPatch{DisplayName: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete reports true exactly once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, _, err := s.Create(ctx, types.User{ExternalID: "steam-1"})
		require.NoError(t, err)

		deleted, err := s.Delete(ctx, created.RecordID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, created.RecordID)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, found, err := s.GetByExternalID(ctx, "steam-1")
		require.NoError(t, err)
		assert.False(t, found)

		// the external id is free again
		again, ok, err := s.Create(ctx, types.User{ExternalID: "steam-1"})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEqual(t, created.RecordID, again.RecordID)
	})

	t.Run("list honours the inclusive range", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for i := 1; i <= 5; i++ {
			user, _, err := s.Create(ctx, types.User{ExternalID: fmt.Sprintf("steam-%d", i)})
			require.NoError(t, err)
			ids = append(ids, user.ExternalID)
		}

		cases := []struct {
			name  string
			start int
			limit int
			want  []string
		}{
			{"defaults cover everything", 1, 25, ids},
			{"middle slice", 2, 3, ids[1:3]},
			{"single element", 4, 4, ids[3:4]},
			{"end clamps to total", 4, 100, ids[3:]},
			{"start past total", 6, 25, nil},
			{"limit before start", 3, 2, nil},
			{"zero limit", 1, 0, nil},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				users, err := s.List(ctx, tc.start, tc.limit)
				require.NoError(t, err)
				require.NotNil(t, users)
				assert.LessOrEqual(t, len(users), max(0, tc.limit-tc.start+1))

				got := make([]string, 0, len(users))
				for _, u := range users {
					got = append(got, u.ExternalID)
				}
				if tc.want == nil {
					assert.Empty(t, got)
				} else {
					assert.Equal(t, tc.want, got)
				}
			})
		}

		first, err := s.List(ctx, 1, 25)
		require.NoError(t, err)
		second, err := s.List(ctx, 1, 25)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("list rejects invalid ranges", func(t *testing.T) {
		s := newStore(t)

		_, err := s.List(context.Background(), 0, 5)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = s.List(context.Background(), 1, -1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("concurrent creates store one record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 12
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			ids     = map[string]struct{}{}
			errs    []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				user, ok, err := s.Create(ctx, types.User{
					ExternalID:  "steam-race",
					DisplayName: fmt.Sprintf("worker-%d", i),
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if ok {
					created++
				}
				ids[user.RecordID] = struct{}{}
			}(i)
		}
		wg.Wait()

		require.Empty(t, errs)
		assert.Equal(t, 1, created)
		assert.Len(t, ids, 1)

		users, err := s.List(ctx, 1, 100)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("lifecycle example", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, ok, err := s.Create(ctx, types.User{ExternalID: "u1", DisplayName: "Ann"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEmpty(t, user.RecordID)

		users, err := s.List(ctx, 1, 25)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, user, users[0])

		deleted, err := s.Delete(ctx, user.RecordID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, found, err := s.GetByExternalID(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
