package system

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"taskflow/entity"
	"taskflow/storage"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    entity.User `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user := entity.User{
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Password:  string(hash),
		CreatedAt: h.now(),
	}
	if err := h.Users.Create(r.Context(), &user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			http.Error(w, "Username or email already exists", http.StatusConflict)
			return
		}
		h.Log.Error("creating user", zap.Error(err))
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	token, err := h.JWT.Generate(user.ID, user.Username)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	user.Password = ""
	writeJSON(w, http.StatusCreated, authResponse{Message: "Registration successful", Token: token, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.Users.GetByUsername(r.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.Log.Error("loading user", zap.Error(err))
		http.Error(w, "DB query error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.Log.Info("failed login", zap.String("username", user.Username), zap.String("remote", r.RemoteAddr))
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := h.JWT.Generate(user.ID, user.Username)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	now := h.now()
	if err := h.Users.TouchLogin(r.Context(), user.ID, now); err != nil {
		h.Log.Warn("recording login time", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}
	user.Password = ""
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.Users.GetByID(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("loading user", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	user.Password = ""
	writeJSON(w, http.StatusOK, user)
}
