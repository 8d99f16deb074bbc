package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/files"
	"github.com/pliu/prompthub/internal/httputil"
	"github.com/pliu/prompthub/internal/middleware"
	"github.com/pliu/prompthub/internal/projects"
)

// sniffLen is how much of a file is read to detect its content type.
const sniffLen = 512

type FileHandler struct {
	Projects  *projects.Service
	Files     *files.Store
	Templates *Templates
	Log       *zap.Logger
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID, err := httputil.PathID(r, "id")
	if err != nil {
		h.Templates.NotFound(w, domain.PublicMessage(err))
		return
	}
	if _, err := h.Projects.GetOwned(r.Context(), projectID, userID); err != nil {
		renderPageError(h.Templates, h.Log, w, err)
		return
	}

	back := projectPath(projectID)
	if r.ContentLength > h.Files.MaxBytes() {
		auth.SetFlash(w, auth.FlashError, files.ErrTooLarge.Message)
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.Files.MaxBytes())
	file, header, err := r.FormFile("file")
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			auth.SetFlash(w, auth.FlashError, files.ErrTooLarge.Message)
		} else {
			auth.SetFlash(w, auth.FlashError, files.ErrNoFile.Message)
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	defer file.Close()

	name, err := h.Files.Upload(r.Context(), projectID, userID, header.Filename, file)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			renderPageError(h.Templates, h.Log, w, err)
			return
		}
		if domain.StatusCode(err) >= http.StatusInternalServerError {
			h.Log.Error("upload failed", zap.Int64("project_id", projectID), zap.Error(err))
		}
		auth.SetFlash(w, auth.FlashError, domain.PublicMessage(err))
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	auth.SetFlash(w, auth.FlashSuccess, fmt.Sprintf("Uploaded %s", name))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// List returns the project's files as JSON.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.HandleError(w, h.Log, err)
		return
	}

	list, err := h.Files.List(r.Context(), projectID, userID)
	if err != nil {
		httputil.HandleError(w, h.Log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

// Download sends a stored file as an attachment.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID, err := httputil.PathID(r, "id")
	if err != nil {
		h.Templates.NotFound(w, domain.PublicMessage(err))
		return
	}

	f, info, err := h.Files.Open(r.Context(), projectID, userID, mux.Vars(r)["name"])
	if err != nil {
		renderPageError(h.Templates, h.Log, w, err)
		return
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		renderPageError(h.Templates, h.Log, w, fmt.Errorf("read %s: %w", info.Name, err))
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		renderPageError(h.Templates, h.Log, w, fmt.Errorf("seek %s: %w", info.Name, err))
		return
	}

	stat, err := f.Stat()
	if err != nil {
		renderPageError(h.Templates, h.Log, w, fmt.Errorf("stat %s: %w", info.Name, err))
		return
	}

	w.Header().Set("Content-Type", files.DetectContentType(head[:n], info.Name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name, stat.ModTime(), f)
}
