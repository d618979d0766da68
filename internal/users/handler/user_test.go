package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"

	"qrparking/internal/users/repository"
	"qrparking/pkg/auth"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"
)

type mockUserService struct {
	listFunc  func(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error)
	blockFunc func(ctx context.Context, adminID, userID string) (*model.User, error)
}

func (m *mockUserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return nil, apperrors.NotFoundWithID("User", id)
}

func (m *mockUserService) List(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockUserService) Block(ctx context.Context, adminID, userID string) (*model.User, error) {
	return m.blockFunc(ctx, adminID, userID)
}

func (m *mockUserService) Unblock(ctx context.Context, adminID, userID string) (*model.User, error) {
	return nil, apperrors.InvalidState("User is not blocked")
}

func TestList_Filters(t *testing.T) {
	var got repository.UserFilter
	svc := &mockUserService{
		listFunc: func(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error) {
			got = filter
			return []*model.User{{ID: "user-2", IsBlocked: true}}, 1, nil
		},
	}
	h := NewUserHandler(svc, logger.Discard())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?search=asha&blocked=true&limit=20", nil)
	w := httptest.NewRecorder()
	h.List(w, req, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.Search != "asha" {
		t.Errorf("expected search asha, got %q", got.Search)
	}
	if got.Blocked == nil || !*got.Blocked {
		t.Errorf("expected blocked=true filter, got %v", got.Blocked)
	}
	if got.Limit != 20 {
		t.Errorf("expected limit 20, got %d", got.Limit)
	}
}

func TestList_InvalidBlockedParam(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, logger.Discard())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?blocked=maybe", nil)
	w := httptest.NewRecorder()
	h.List(w, req, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBlock_PassesAdminAndTarget(t *testing.T) {
	var gotAdmin, gotUser string
	svc := &mockUserService{
		blockFunc: func(ctx context.Context, adminID, userID string) (*model.User, error) {
			gotAdmin, gotUser = adminID, userID
			return &model.User{ID: userID, IsBlocked: true}, nil
		},
	}
	router := httprouter.New()
	NewUserHandler(svc, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/user-2/block", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "admin-1", Role: model.RoleAdmin}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotAdmin != "admin-1" || gotUser != "user-2" {
		t.Errorf("unexpected call: admin=%q user=%q", gotAdmin, gotUser)
	}

	var resp struct {
		Data model.User `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Data.IsBlocked {
		t.Error("expected blocked user in response")
	}
}

func TestBlock_WithoutIdentity(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, logger.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/user-2/block", nil)
	w := httptest.NewRecorder()
	h.Block(w, req, httprouter.Params{{Key: "id", Value: "user-2"}})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestUnblock_NotBlocked(t *testing.T) {
	router := httprouter.New()
	NewUserHandler(&mockUserService{}, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/user-1/unblock", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "admin-1", Role: model.RoleAdmin}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
