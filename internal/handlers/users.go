package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ecotunga/apiserver/internal/services"
	"github.com/ecotunga/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// UserAdminHandler provides the admin user-management endpoints.
type UserAdminHandler struct {
	service *services.AccountService
	log     *logrus.Logger
}

// NewUserAdminHandler constructs a UserAdminHandler with the provided dependencies.
func NewUserAdminHandler(service *services.AccountService, log *logrus.Logger) *UserAdminHandler {
	return &UserAdminHandler{service: service, log: log}
}

// UserAdminRouter registers the user-management routes on the given router.
// All routes require a valid session token and the admin role.
func UserAdminRouter(r chi.Router, service *services.AccountService, authMiddleware func(http.Handler) http.Handler, log *logrus.Logger) {
	handler := NewUserAdminHandler(service, log)

	r.Use(authMiddleware, handler.requireAdmin)
	r.Get("/", handler.ListUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.Put("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
	})
}

func (h *UserAdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := h.service.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			h.log.WithError(err).Error("failed to load user")
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}

		if !strings.EqualFold(user.Role, services.AdminRole) {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *UserAdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list users")
		writeError(w, http.StatusInternalServerError, "error fetching users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserAdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	update := store.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
	}
	if err := h.service.UpdateUser(r.Context(), id, update); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "email already exists")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			h.log.WithError(err).Error("failed to update user")
			writeError(w, http.StatusInternalServerError, "error updating user")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "user updated successfully"})
}

func (h *UserAdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.WithError(err).Error("failed to delete user")
		writeError(w, http.StatusInternalServerError, "error deleting user")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "user deleted successfully"})
}

// UpdateUserRequest is the partial-update payload. Absent fields are left
// untouched.
type UpdateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
}

func parseUserID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}
