package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "register", "dashboard", "project", "not_found"}

// Templates renders the HTML pages. Each page is parsed together with the
// shared layout.
type Templates struct {
	pages map[string]*template.Template
	log   *zap.Logger
}

func NewTemplates(log *zap.Logger) (*Templates, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Templates{pages: pages, log: log}, nil
}

// pageData is the single model every page template is executed with.
type pageData struct {
	Title    string
	LoggedIn bool
	Flash    *auth.Flash
	Message  string
	Email    string
	Projects []models.Project
	Project  *models.Project
	Files    []models.FileInfo
}

// Render executes page into a buffer first so a template error never
// leaves a half-written response.
func (t *Templates) Render(w http.ResponseWriter, status int, page string, data pageData) {
	tmpl, ok := t.pages[page]
	if !ok {
		t.log.Error("unknown template", zap.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page+".html", data); err != nil {
		t.log.Error("render template", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// NotFound renders the plain 404 page.
func (t *Templates) NotFound(w http.ResponseWriter, message string) {
	t.Render(w, http.StatusNotFound, "not_found", pageData{
		Title:    "Not found",
		LoggedIn: true,
		Message:  message,
	})
}
