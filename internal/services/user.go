package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ritgame/apiserver/internal/store"
	"github.com/ritgame/apiserver/types"
)

const maxReportReasonLen = 500

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, candidate types.User) (types.User, bool, error)
	GetByExternalID(ctx context.Context, externalID string) (types.User, bool, error)
	List(ctx context.Context, start, limit int) ([]types.User, error)
	Update(ctx context.Context, recordID string, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, recordID string) (bool, error)
}

// EventPublisher sends a JSON document to a named channel.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error)
}

// UserService encapsulates user use-cases and emits lifecycle events.
type UserService struct {
	repo    UserRepository
	events  EventPublisher
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// WithEvents enables publishing of UserEvents to channel.
func (s *UserService) WithEvents(events EventPublisher, channel string) *UserService {
	s.events = events
	s.channel = channel
	return s
}

// Create stores a new user. When the external id is already registered the
// existing user is returned with created=false.
func (s *UserService) Create(ctx context.Context, user types.User) (types.User, bool, error) {
	stored, created, err := s.repo.Create(ctx, user)
	if err != nil {
		return types.User{}, false, err
	}
	if created {
		s.logger.InfoContext(ctx, "user created", "recordId", stored.RecordID, "externalId", stored.ExternalID)
		s.publish(ctx, types.UserCreated, stored, "")
	}
	return stored, created, nil
}

// GetByExternalID returns an error matching store.ErrNotFound when absent.
func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (types.User, error) {
	user, found, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return types.User{}, err
	}
	if !found {
		return types.User{}, &store.Error{Op: "get", Kind: store.ErrNotFound}
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, start, limit int) ([]types.User, error) {
	return s.repo.List(ctx, start, limit)
}

func (s *UserService) Update(ctx context.Context, recordID string, patch types.UserPatch) (types.User, error) {
	updated, err := s.repo.Update(ctx, recordID, patch)
	if err != nil {
		return types.User{}, err
	}
	if !patch.IsEmpty() {
		s.publish(ctx, types.UserUpdated, updated, "")
	}
	return updated, nil
}

// Delete returns an error matching store.ErrNotFound when nothing was removed.
func (s *UserService) Delete(ctx context.Context, recordID string) error {
	deleted, err := s.repo.Delete(ctx, recordID)
	if err != nil {
		return err
	}
	if !deleted {
		return &store.Error{Op: "delete", Kind: store.ErrNotFound}
	}
	s.logger.InfoContext(ctx, "user deleted", "recordId", recordID)
	s.publish(ctx, types.UserDeleted, types.User{RecordID: recordID}, "")
	return nil
}

// Report flags a user for moderation. Reports are only delivered through
// the events channel.
func (s *UserService) Report(ctx context.Context, externalID, reason string) error {
	user, err := s.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	if runes := []rune(reason); len(runes) > maxReportReasonLen {
		reason = string(runes[:maxReportReasonLen])
	}

	s.logger.InfoContext(ctx, "user reported", "recordId", user.RecordID, "reason", reason)
	s.publish(ctx, types.UserReported, user, reason)
	return nil
}

// publish never fails the caller; delivery problems are logged.
func (s *UserService) publish(ctx context.Context, kind types.UserEventType, user types.User, reason string) {
	if s.events == nil {
		return
	}

	event := types.UserEvent{
		Type:       kind,
		RecordID:   user.RecordID,
		ExternalID: user.ExternalID,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	}
	if _, err := s.events.PublishJSON(ctx, s.channel, event, map[string]string{"type": string(kind)}); err != nil {
		s.logger.WarnContext(ctx, "publish user event failed",
			"type", kind,
			"recordId", user.RecordID,
			"error", err,
		)
	}
}
