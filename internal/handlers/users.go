package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ritgame/apiserver/internal/services"
	"github.com/ritgame/apiserver/types"
)

const (
	defaultStart    = 1
	defaultLimit    = 25
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
	maxUploadBytes  = 8 << 20
	userIDParam     = "id"
	reportReasonKey = "reason"
)

// UserHandler provides HTTP handlers for users.
type UserHandler struct {
	users  *services.UserService
	media  *services.MediaService
	logger *slog.Logger
}

func NewUserHandler(users *services.UserService, media *services.MediaService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, media: media, logger: logger}
}

// UserRouter registers user routes on the given router. Lookups and media
// use the external id; updates and deletes use the record id.
func UserRouter(
	r chi.Router,
	users *services.UserService,
	media *services.MediaService,
	requireKey func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewUserHandler(users, media, logger)

	r.Get("/", handler.ListUsers)
	r.With(requireKey).Post("/", handler.CreateUser)
	r.Route("/{"+userIDParam+"}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.With(requireKey).Patch("/", handler.UpdateUser)
		r.With(requireKey).Delete("/", handler.DeleteUser)
		r.Post("/report", handler.ReportUser)

		r.Get("/picture", handler.GetMedia(services.MediaPicture))
		r.With(requireKey).Put("/picture", handler.PutMedia(services.MediaPicture))
		r.Get("/banner", handler.GetMedia(services.MediaBanner))
		r.With(requireKey).Put("/banner", handler.PutMedia(services.MediaBanner))
	})
}

// UserListResponse is the list response payload. Start and Limit echo the
// effective range.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Start int          `json:"start"`
	Limit int          `json:"limit"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	start, limit, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.users.List(r.Context(), start, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{Items: items, Start: start, Limit: limit})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByExternalID(r.Context(), chi.URLParam(r, userIDParam))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateUser answers 201 for a new user and 200 when the external id was
// already registered.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.User
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, created, err := h.users.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create user")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, user)
}

// UpdateUser rejects bodies that try to change externalId or recordId.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch types.UserPatch
	if err := decodeBody(w, r, &patch, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Update(r.Context(), chi.URLParam(r, userIDParam), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser also removes the user's stored images. A failed cleanup is
// logged; the user is already gone at that point.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, userIDParam)
	if err := h.users.Delete(r.Context(), recordID); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete user")
		return
	}
	if err := h.media.Purge(r.Context(), recordID); err != nil {
		h.logger.WarnContext(r.Context(), "failed to purge user media", "recordId", recordID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReportUser takes the reason from the query string or a JSON body.
func (h *UserHandler) ReportUser(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get(reportReasonKey)
	if reason == "" && r.ContentLength != 0 {
		var req reportRequest
		if err := decodeBody(w, r, &req, false); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		reason = req.Reason
	}

	if err := h.users.Report(r.Context(), chi.URLParam(r, userIDParam), reason); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to report user")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reported"})
}

func (h *UserHandler) GetMedia(kind services.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, info, err := h.media.Open(r.Context(), chi.URLParam(r, userIDParam), kind)
		if err != nil {
			writeServiceError(w, r, h.logger, err, "failed to load "+string(kind))
			return
		}
		defer rc.Close()

		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			h.logger.WarnContext(r.Context(), "media copy interrupted", "kind", kind, "error", err)
		}
	}
}

// PutMedia stores the raw request body; Content-Type must be an image type.
func (h *UserHandler) PutMedia(kind services.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.media.Enabled() {
			writeServiceError(w, r, h.logger, services.ErrMediaDisabled, "")
			return
		}
		if r.ContentLength > maxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
		user, err := h.media.Upload(r.Context(), chi.URLParam(r, userIDParam), kind, body, r.ContentLength, r.Header.Get("Content-Type"))
		if err != nil {
			writeServiceError(w, r, h.logger, err, "failed to store "+string(kind))
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func parseRange(r *http.Request) (start, limit int, err error) {
	start = defaultStart
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		start, err = strconv.Atoi(raw)
		if err != nil || start < 1 {
			return 0, 0, errors.New("invalid start")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}

	if limit-start+1 > maxPageSize {
		limit = start + maxPageSize - 1
	}
	return start, limit, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(dst)
}
