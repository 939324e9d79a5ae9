package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/merchplan-system/internal/model"
)

func idFromURL(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ListUsers возвращает всех пользователей системы.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "list users")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toUserResponse(&users[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CreateUser создаёт пользователя с указанной ролью.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleMerchandiser
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Role)
	if err != nil {
		h.handleServiceError(w, err, "create user")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err, "create user")
		return
	}

	h.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// GetUser возвращает пользователя по идентификатору.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "get user")
		return
	}

	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

type userUpdateRequest struct {
	Login    string     `json:"login"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// UpdateUser частично обновляет логин, роль и пароль пользователя.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, req.Login, req.Role, req.Password)
	if err != nil {
		h.handleServiceError(w, err, "update user")
		return
	}

	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// DeleteUser удаляет пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.handleServiceError(w, err, "delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
