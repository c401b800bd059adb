package user

import (
	"errors"
	"net/http"

	"libraryapi/internal/httpx"
	"libraryapi/internal/platform/crypto"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

type registerReq struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// RegisterUser handles POST /v1/users/register
func (h *HTTPHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}
	if err := crypto.ValidatePasswordStrength(req.Password); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input",
			[]httpx.ErrorDetail{{Field: "password", Message: err.Error()}})
		return
	}

	u, err := h.service.Register(r.Context(), Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			httpx.JSONError(w, r, http.StatusConflict, "ALREADY_EXISTS", "Email already exists", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONCreated(w, r, u)
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginUser handles POST /v1/users/login
func (h *HTTPHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	token, u, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.JSONError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}

	httpx.JSONSuccess(w, r, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.service.TokenTTL().Seconds()),
		"user":         u,
	}, nil)
}

// GetCurrentUser handles GET /v1/me
func (h *HTTPHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetByID(r.Context(), httpx.UserIDFrom(r))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONSuccess(w, r, u, nil)
}

type profileReq struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

// UpdateCurrentUser handles PATCH /v1/me
func (h *HTTPHandler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req profileReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), httpx.UserIDFrom(r), Profile{FirstName: req.FirstName, LastName: req.LastName})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONSuccess(w, r, u, nil)
}

// Logout handles POST /v1/users/logout
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.service.Logout(r.Context(), httpx.BearerToken(r))
	switch {
	case err == nil:
		httpx.JSONNoContent(w)
	case errors.Is(err, ErrInvalidToken):
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
	case errors.Is(err, ErrRevocationDisabled):
		httpx.JSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Logout is not enabled", nil)
	default:
		httpx.InternalError(w, r)
	}
}
