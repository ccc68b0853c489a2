package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ritgame/apiserver/config"
	"github.com/ritgame/apiserver/types"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreUsersCollection       = "users"
	firestoreExternalIDsCollection = "user_external_ids"
	firestorePingTimeout           = 5 * time.Second
)

// FirestoreUserStore keeps users as documents in Cloud Firestore.
// users/<recordId> holds the record; user_external_ids/<externalId> maps
// the external id back to its record and guards uniqueness.
type FirestoreUserStore struct {
	client      *firestore.Client
	users       *firestore.CollectionRef
	externalIDs *firestore.CollectionRef
	now         func() time.Time
}

type externalIDDoc struct {
	RecordID string `firestore:"recordId"`
}

// OpenFirestoreUserStore connects to Firestore and verifies access with a
// single read.
func OpenFirestoreUserStore(ctx context.Context, cfg config.FirestoreConfig) (*FirestoreUserStore, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, newError("open", ErrInvalidArgument, errors.New("firestore project id is required"))
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, newError("open", ErrStorageUnavailable, err)
	}

	s := NewFirestoreUserStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, firestorePingTimeout)
	defer cancel()
	iter := s.users.Limit(1).Documents(pingCtx)
	_, err = iter.Next()
	iter.Stop()
	if err != nil && !errors.Is(err, iterator.Done) {
		_ = client.Close()
		return nil, newError("open", ErrStorageUnavailable, err)
	}

	return s, nil
}

// NewFirestoreUserStore wraps an existing Firestore client.
func NewFirestoreUserStore(client *firestore.Client) *FirestoreUserStore {
	return &FirestoreUserStore{
		client:      client,
		users:       client.Collection(firestoreUsersCollection),
		externalIDs: client.Collection(firestoreExternalIDsCollection),
		now:         time.Now,
	}
}

func (s *FirestoreUserStore) Create(ctx context.Context, candidate types.User) (types.User, bool, error) {
	row, err := prepareCandidate(candidate, s.now())
	if err != nil {
		return types.User{}, false, err
	}
	if !validDocumentID(row.RecordID) {
		return types.User{}, false, invalid("create", fmt.Sprintf("record id %q is not a valid document id", row.RecordID))
	}

	var (
		stored  userRow
		created bool
	)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false

		extRef := s.externalIDRef(row.ExternalID)
		extSnap, err := tx.Get(extRef)
		if err == nil {
			var ext externalIDDoc
			if err := extSnap.DataTo(&ext); err != nil {
				return newError("create", ErrMalformedRecord, err)
			}
			snap, err := tx.Get(s.users.Doc(ext.RecordID))
			if err != nil {
				return err
			}
			stored, err = firestoreRow(snap)
			return err
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		userRef := s.users.Doc(row.RecordID)
		if _, err := tx.Get(userRef); err == nil {
			return newError("create", ErrConflict, fmt.Errorf("record id %q already exists", row.RecordID))
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		next := row
		next.Seq = s.now().UnixNano()
		if err := tx.Create(userRef, next); err != nil {
			return err
		}
		if err := tx.Create(extRef, externalIDDoc{RecordID: next.RecordID}); err != nil {
			return err
		}
		stored = next
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

func (s *FirestoreUserStore) GetByExternalID(ctx context.Context, externalID string) (types.User, bool, error) {
	iter := s.users.Where("externalId", "==", externalID).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) {
			return types.User{}, false, nil
		}
		return types.User{}, false, unavailable("get", err)
	}

	row, err := firestoreRow(snap)
	if err != nil {
		return types.User{}, false, err
	}
	user, err := row.user()
	if err != nil {
		return types.User{}, false, err
	}
	return user, true, nil
}

func (s *FirestoreUserStore) List(ctx context.Context, start, limit int) ([]types.User, error) {
	offset, count, err := window(start, limit)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []types.User{}, nil
	}

	iter := s.users.
		OrderBy("seq", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Offset(offset).
		Limit(count).
		Documents(ctx)
	defer iter.Stop()

	rows := make([]userRow, 0, count)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, unavailable("list", err)
		}
		row, err := firestoreRow(snap)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return usersFromRows(rows)
}

func (s *FirestoreUserStore) Update(ctx context.Context, recordID string, patch types.UserPatch) (types.User, error) {
	if !validDocumentID(recordID) {
		return types.User{}, notFound("update", recordID)
	}

	var updated userRow
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef := s.users.Doc(recordID)
		snap, err := tx.Get(userRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFound("update", recordID)
			}
			return err
		}
		current, err := firestoreRow(snap)
		if err != nil {
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
		if err := tx.Set(userRef, next); err != nil {
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

func (s *FirestoreUserStore) Delete(ctx context.Context, recordID string) (bool, error) {
	if !validDocumentID(recordID) {
		return false, nil
	}

	var deleted bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = false

		userRef := s.users.Doc(recordID)
		snap, err := tx.Get(userRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		current, err := firestoreRow(snap)
		if err != nil {
			return err
		}
		if err := tx.Delete(userRef); err != nil {
			return err
		}
		if err := tx.Delete(s.externalIDRef(current.ExternalID)); err != nil {
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

// Close closes the Firestore client.
func (s *FirestoreUserStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreUserStore) externalIDRef(externalID string) *firestore.DocumentRef {
	return s.externalIDs.Doc(externalIDDocID(externalID))
}

// externalIDDocID maps any external id onto a legal document id. The prefix
// keeps escaped ids clear of ".", ".." and the reserved __name__ form.
func externalIDDocID(externalID string) string {
	return "x" + url.PathEscape(externalID)
}

// validDocumentID reports whether id can name a Firestore document as is.
func validDocumentID(id string) bool {
	switch {
	case id == "", id == ".", id == "..":
		return false
	case strings.Contains(id, "/"):
		return false
	case len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		return false
	}
	return true
}

func firestoreRow(snap *firestore.DocumentSnapshot) (userRow, error) {
	var row userRow
	if err := snap.DataTo(&row); err != nil {
		return userRow{}, newError("decode", ErrMalformedRecord, fmt.Errorf("document %q: %w", snap.Ref.ID, err))
	}
	return row, nil
}
