package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/domain"
)

type AuthHandler struct {
	Credentials *auth.Credentials
	Sessions    *auth.Sessions
	Templates   *Templates
	Log         *zap.Logger
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.Templates.Render(w, http.StatusOK, "register", pageData{
		Title: "Register",
		Flash: auth.PopFlash(w, r),
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderRegisterError(w, http.StatusBadRequest, "", "Invalid form submission")
		return
	}
	email := r.PostFormValue("email")

	if _, err := h.Credentials.Register(r.Context(), email, r.PostFormValue("password")); err != nil {
		status := domain.StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.Log.Error("register failed", zap.Error(err))
		}
		h.renderRegisterError(w, status, auth.NormalizeEmail(email), domain.PublicMessage(err))
		return
	}

	auth.SetFlash(w, auth.FlashSuccess, "Registration successful. Please log in.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) renderRegisterError(w http.ResponseWriter, status int, email, message string) {
	h.Templates.Render(w, status, "register", pageData{
		Title: "Register",
		Flash: &auth.Flash{Kind: auth.FlashError, Message: message},
		Email: email,
	})
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.Templates.Render(w, http.StatusOK, "login", pageData{
		Title: "Log in",
		Flash: auth.PopFlash(w, r),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, http.StatusBadRequest, "", "Invalid form submission")
		return
	}
	email := r.PostFormValue("email")

	userID, err := h.Credentials.Authenticate(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status := domain.StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.Log.Error("login failed", zap.Error(err))
		}
		h.renderLoginError(w, status, auth.NormalizeEmail(email), domain.PublicMessage(err))
		return
	}

	if err := h.Sessions.Start(w, userID); err != nil {
		h.Log.Error("start session", zap.Int64("user_id", userID), zap.Error(err))
		h.renderLoginError(w, http.StatusInternalServerError, auth.NormalizeEmail(email), "internal server error")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, status int, email, message string) {
	h.Templates.Render(w, status, "login", pageData{
		Title: "Log in",
		Flash: &auth.Flash{Kind: auth.FlashError, Message: message},
		Email: email,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.End(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
