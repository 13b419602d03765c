package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avellar/userdir/internal/directory/domain"
	"github.com/avellar/userdir/internal/directory/event"
)

type fakeService struct {
	users      map[string]domain.User
	createErr  error
	lastUpdate domain.UserUpdate
}

func newFakeService() *fakeService {
	return &fakeService{users: map[string]domain.User{}}
}

func (f *fakeService) CreateUser(_ context.Context, input domain.NewUser) (domain.User, error) {
	if f.createErr != nil {
		return domain.User{}, f.createErr
	}
	user := domain.User{
		ID:        "user-1",
		Email:     input.Email,
		Name:      input.Name,
		Age:       input.Age,
		CreatedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeService) GetUserByID(_ context.Context, userID string) (domain.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (f *fakeService) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeService) ListUsers(_ context.Context) ([]domain.User, error) {
	var users []domain.User
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeService) UpdateUser(_ context.Context, userID string, update domain.UserUpdate) (domain.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	f.lastUpdate = update
	user.Name = update.Name
	user.Age = update.Age
	f.users[userID] = user
	return user, nil
}

func (f *fakeService) DeleteUser(_ context.Context, userID string) error {
	if _, ok := f.users[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.users, userID)
	return nil
}

type fakePublisher struct {
	events        []string
	notifications []string
}

func (f *fakePublisher) PublishEvent(_ context.Context, message string) {
	f.events = append(f.events, message)
}

func (f *fakePublisher) PublishNotification(_ context.Context, message string) {
	f.notifications = append(f.notifications, message)
}

func newTestHandler(service Service, publisher Publisher, processed *event.ProcessedLog) http.Handler {
	return NewHandler(service, publisher, processed, nil).Routes()
}

func TestCreateUserEndpoint(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	handler := newTestHandler(service, &fakePublisher{}, event.NewProcessedLog(0))

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":"a@x.com","name":"Ana","age":30}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "user-1" || payload.Email != "a@x.com" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCreateUserConflict(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	service.createErr = domain.ErrEmailTaken
	handler := newTestHandler(service, nil, event.NewProcessedLog(0))

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":"a@x.com","name":"Ana","age":30}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateUserInvalidBody(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(newFakeService(), nil, event.NewProcessedLog(0))

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateUserValidationError(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	service.createErr = domain.ErrInvalidUser
	handler := newTestHandler(service, nil, event.NewProcessedLog(0))

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":"","name":"","age":0}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUserEndpoints(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	handler := newTestHandler(service, nil, event.NewProcessedLog(0))

	create := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":"a@x.com","name":"Ana","age":30}`))
	handler.ServeHTTP(httptest.NewRecorder(), create)

	byID := httptest.NewRequest(http.MethodGet, "/api/users/user-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, byID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 by id, got %d", rec.Code)
	}

	byEmail := httptest.NewRequest(http.MethodGet, "/api/users/email/a@x.com", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, byEmail)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 by email, got %d", rec.Code)
	}

	missing := httptest.NewRequest(http.MethodGet, "/api/users/missing", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, missing)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing user, got %d", rec.Code)
	}
}

func TestListUsersEndpoint(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	handler := newTestHandler(service, nil, event.NewProcessedLog(0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestUpdateUserEndpoint(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	handler := newTestHandler(service, nil, event.NewProcessedLog(0))

	create := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":"a@x.com","name":"Ana","age":30}`))
	handler.ServeHTTP(httptest.NewRecorder(), create)

	update := httptest.NewRequest(http.MethodPut, "/api/users/user-1", strings.NewReader(`{"name":"Ana Maria","age":31}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if service.lastUpdate.Name != "Ana Maria" || service.lastUpdate.Age != 31 {
		t.Fatalf("unexpected update %+v", service.lastUpdate)
	}

	missing := httptest.NewRequest(http.MethodPut, "/api/users/missing", strings.NewReader(`{"name":"Ana","age":30}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, missing)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing user, got %d", rec.Code)
	}
}

func TestDeleteUserEndpoint(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	handler := newTestHandler(service, nil, event.NewProcessedLog(0))

	create := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"email":"a@x.com","name":"Ana","age":30}`))
	handler.ServeHTTP(httptest.NewRecorder(), create)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/users/user-1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/users/user-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeated delete, got %d", rec.Code)
	}
}

func TestSendEventEndpoint(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	handler := newTestHandler(newFakeService(), publisher, event.NewProcessedLog(0))

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"message":"manual event"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(publisher.events) != 1 || publisher.events[0] != "manual event" {
		t.Fatalf("unexpected events %v", publisher.events)
	}
	if len(publisher.notifications) != 0 {
		t.Fatalf("expected no notifications, got %v", publisher.notifications)
	}

	empty := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"message":""}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, empty)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rec.Code)
	}
}

func TestSendNotificationEndpoint(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	handler := newTestHandler(newFakeService(), publisher, event.NewProcessedLog(0))

	req := httptest.NewRequest(http.MethodPost, "/api/notifications", strings.NewReader(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(publisher.notifications) != 1 || publisher.notifications[0] != "hello" {
		t.Fatalf("unexpected notifications %v", publisher.notifications)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no lifecycle events, got %v", publisher.events)
	}

	empty := httptest.NewRequest(http.MethodPost, "/api/notifications", strings.NewReader(`{"message":""}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, empty)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rec.Code)
	}
}

func TestProcessedMessagesEndpoints(t *testing.T) {
	t.Parallel()

	processed := event.NewProcessedLog(0)
	processed.Append("user created: a@x.com")
	processed.Append("user deleted: a@x.com")
	handler := newTestHandler(newFakeService(), nil, processed)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/processed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var messages []string
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", messages)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/messages/processed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if processed.Len() != 0 {
		t.Fatalf("expected cleared log, got %v", processed.Snapshot())
	}
}
