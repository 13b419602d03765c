// Package rest exposes the directory over a JSON HTTP API. Handlers stay
// thin: they decode, delegate to the domain service, and translate domain
// sentinels into status codes.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avellar/userdir/internal/directory/domain"
	"github.com/avellar/userdir/internal/directory/event"
)

// Service is the domain surface the API depends on.
type Service interface {
	CreateUser(ctx context.Context, input domain.NewUser) (domain.User, error)
	GetUserByID(ctx context.Context, userID string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, userID string, update domain.UserUpdate) (domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// Publisher publishes ad-hoc lifecycle events and notification messages.
type Publisher interface {
	PublishEvent(ctx context.Context, message string)
	PublishNotification(ctx context.Context, message string)
}

// Handler serves the directory JSON API.
type Handler struct {
	service   Service
	publisher Publisher
	processed *event.ProcessedLog
	logf      func(string, ...any)
}

// NewHandler wires the API over its collaborators. The publisher and
// processed log may be nil, which disables the corresponding endpoints'
// side effects.
func NewHandler(service Service, publisher Publisher, processed *event.ProcessedLog, logf func(string, ...any)) *Handler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Handler{
		service:   service,
		publisher: publisher,
		processed: processed,
		logf:      logf,
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users", h.createUser)
	mux.HandleFunc("GET /api/users", h.listUsers)
	mux.HandleFunc("GET /api/users/{id}", h.getUser)
	mux.HandleFunc("PUT /api/users/{id}", h.updateUser)
	mux.HandleFunc("DELETE /api/users/{id}", h.deleteUser)
	mux.HandleFunc("GET /api/users/email/{email}", h.getUserByEmail)
	mux.HandleFunc("POST /api/events", h.sendEvent)
	mux.HandleFunc("POST /api/notifications", h.sendNotification)
	mux.HandleFunc("GET /api/messages/processed", h.processedMessages)
	mux.HandleFunc("DELETE /api/messages/processed", h.clearProcessedMessages)
	return mux
}

type userPayload struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Age       int        `json:"age"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Age   int    `json:"age"`
}

type updateUserRequest struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.CreateUser(r.Context(), domain.NewUser{
		Email: req.Email,
		Name:  req.Name,
		Age:   req.Age,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toUserPayload(user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	payload := make([]userPayload, 0, len(users))
	for _, user := range users {
		payload = append(payload, toUserPayload(user))
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *Handler) getUserByEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.UpdateUser(r.Context(), r.PathValue("id"), domain.UserUpdate{
		Name: req.Name,
		Age:  req.Age,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendEvent(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if h.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "events are not configured")
		return
	}
	h.publisher.PublishEvent(r.Context(), req.Message)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) sendNotification(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if h.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not configured")
		return
	}
	h.publisher.PublishNotification(r.Context(), req.Message)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) processedMessages(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.processed.Snapshot())
}

func (h *Handler) clearProcessedMessages(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": h.processed.Clear()})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already taken")
	case errors.Is(err, domain.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logf("api: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func toUserPayload(user domain.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Age:       user.Age,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
