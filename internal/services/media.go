package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ritgame/apiserver/internal/storage"
	"github.com/ritgame/apiserver/internal/store"
	"github.com/ritgame/apiserver/types"
)

// MediaKind names one of the images attached to a user profile.
type MediaKind string

const (
	MediaPicture MediaKind = "picture"
	MediaBanner  MediaKind = "banner"
)

// ErrMediaDisabled is returned when no object storage backend is configured.
var ErrMediaDisabled = errors.New("media storage is not configured")

// ObjectStore is the subset of storage.Storage used for profile media.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// MediaService stores profile pictures and banners in object storage and
// points the user record at them.
type MediaService struct {
	users   *UserService
	objects ObjectStore
	baseURL string
}

// NewMediaService returns a service that rejects every call with
// ErrMediaDisabled when objects is nil.
func NewMediaService(users *UserService, objects ObjectStore, baseURL string) *MediaService {
	return &MediaService{
		users:   users,
		objects: objects,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Enabled reports whether an object storage backend is configured.
func (s *MediaService) Enabled() bool {
	return s.objects != nil
}

// Upload writes the image for the user identified by externalID and records
// its public URL on the user.
func (s *MediaService) Upload(ctx context.Context, externalID string, kind MediaKind, r io.Reader, size int64, contentType string) (types.User, error) {
	if s.objects == nil {
		return types.User{}, ErrMediaDisabled
	}
	if err := validateMedia(kind, contentType); err != nil {
		return types.User{}, err
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return types.User{}, err
	}

	if err := s.objects.Put(ctx, mediaKey(user.RecordID, kind), r, size, contentType); err != nil {
		return types.User{}, fmt.Errorf("upload %s: %w", kind, err)
	}

	link := s.mediaURL(user.ExternalID, kind)
	var patch types.UserPatch
	switch kind {
	case MediaPicture:
		patch.ProfileImageURL = &link
	case MediaBanner:
		patch.BannerImageURL = &link
	}
	return s.users.Update(ctx, user.RecordID, patch)
}

// Open returns the stored image. Missing users and missing images both
// match store.ErrNotFound.
func (s *MediaService) Open(ctx context.Context, externalID string, kind MediaKind) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.objects == nil {
		return nil, storage.ObjectInfo{}, ErrMediaDisabled
	}
	if err := validateKind(kind); err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	rc, info, err := s.objects.Get(ctx, mediaKey(user.RecordID, kind))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, &store.Error{Op: "media", Kind: store.ErrNotFound, Err: err}
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("open %s: %w", kind, err)
	}
	return rc, info, nil
}

// Purge removes every image stored for recordID. Images that were never
// uploaded are skipped.
func (s *MediaService) Purge(ctx context.Context, recordID string) error {
	if s.objects == nil {
		return nil
	}

	var errs []error
	for _, kind := range []MediaKind{MediaPicture, MediaBanner} {
		err := s.objects.Delete(ctx, mediaKey(recordID, kind))
		if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

func (s *MediaService) mediaURL(externalID string, kind MediaKind) string {
	return fmt.Sprintf("%s/api/v1/users/%s/%s", s.baseURL, url.PathEscape(externalID), kind)
}

func mediaKey(recordID string, kind MediaKind) string {
	return fmt.Sprintf("users/%s/%s", recordID, kind)
}

func validateKind(kind MediaKind) error {
	if kind != MediaPicture && kind != MediaBanner {
		return &store.Error{Op: "media", Kind: store.ErrInvalidArgument, Err: fmt.Errorf("unknown media kind %q", kind)}
	}
	return nil
}

func validateMedia(kind MediaKind, contentType string) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return &store.Error{Op: "media", Kind: store.ErrInvalidArgument, Err: fmt.Errorf("unsupported content type %q", contentType)}
	}
	return nil
}
