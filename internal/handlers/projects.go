package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/files"
	"github.com/pliu/prompthub/internal/httputil"
	"github.com/pliu/prompthub/internal/middleware"
	"github.com/pliu/prompthub/internal/projects"
)

type ProjectHandler struct {
	Projects  *projects.Service
	Files     *files.Store
	Templates *Templates
	Log       *zap.Logger
}

func projectPath(id int64) string {
	return fmt.Sprintf("/projects/%d", id)
}

func (h *ProjectHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	h.renderDashboard(w, r, http.StatusOK, auth.PopFlash(w, r), userID)
}

func (h *ProjectHandler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, flash *auth.Flash, userID int64) {
	list, err := h.Projects.ListOwned(r.Context(), userID)
	if err != nil {
		h.Log.Error("list projects", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.Templates.Render(w, status, "dashboard", pageData{
		Title:    "Projects",
		LoggedIn: true,
		Flash:    flash,
		Projects: list,
	})
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderDashboard(w, r, http.StatusBadRequest,
			&auth.Flash{Kind: auth.FlashError, Message: "Invalid form submission"}, userID)
		return
	}

	project, err := h.Projects.Create(r.Context(), userID, r.PostFormValue("name"), r.PostFormValue("system_prompt"))
	if err != nil {
		status := domain.StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.Log.Error("create project", zap.Int64("user_id", userID), zap.Error(err))
		}
		h.renderDashboard(w, r, status,
			&auth.Flash{Kind: auth.FlashError, Message: domain.PublicMessage(err)}, userID)
		return
	}
	http.Redirect(w, r, projectPath(project.ID), http.StatusSeeOther)
}

func (h *ProjectHandler) Detail(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID, err := httputil.PathID(r, "id")
	if err != nil {
		h.Templates.NotFound(w, domain.PublicMessage(err))
		return
	}

	project, err := h.Projects.GetOwned(r.Context(), projectID, userID)
	if err != nil {
		h.pageError(w, err)
		return
	}
	fileList, err := h.Files.List(r.Context(), projectID, userID)
	if err != nil {
		h.pageError(w, err)
		return
	}

	h.Templates.Render(w, http.StatusOK, "project", pageData{
		Title:    project.Name,
		LoggedIn: true,
		Flash:    auth.PopFlash(w, r),
		Project:  project,
		Files:    fileList,
	})
}

// Update applies only the form fields that were submitted.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID, err := httputil.PathID(r, "id")
	if err != nil {
		h.Templates.NotFound(w, domain.PublicMessage(err))
		return
	}
	if _, err := h.Projects.GetOwned(r.Context(), projectID, userID); err != nil {
		h.pageError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		auth.SetFlash(w, auth.FlashError, "Invalid form submission")
		http.Redirect(w, r, projectPath(projectID), http.StatusSeeOther)
		return
	}

	var name, prompt *string
	if _, ok := r.PostForm["name"]; ok {
		v := r.PostFormValue("name")
		name = &v
	}
	if _, ok := r.PostForm["system_prompt"]; ok {
		v := r.PostFormValue("system_prompt")
		prompt = &v
	}

	if _, err := h.Projects.Update(r.Context(), projectID, userID, name, prompt); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.pageError(w, err)
			return
		}
		if domain.StatusCode(err) >= http.StatusInternalServerError {
			h.Log.Error("update project", zap.Int64("project_id", projectID), zap.Error(err))
		}
		auth.SetFlash(w, auth.FlashError, domain.PublicMessage(err))
		http.Redirect(w, r, projectPath(projectID), http.StatusSeeOther)
		return
	}

	auth.SetFlash(w, auth.FlashSuccess, "Project updated")
	http.Redirect(w, r, projectPath(projectID), http.StatusSeeOther)
}

func (h *ProjectHandler) pageError(w http.ResponseWriter, err error) {
	renderPageError(h.Templates, h.Log, w, err)
}

// renderPageError renders the 404 page for NotFoundErrors and a bare 500
// otherwise.
func renderPageError(t *Templates, log *zap.Logger, w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		t.NotFound(w, domain.PublicMessage(err))
		return
	}
	log.Error("request failed", zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
