package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/httputil"
	"github.com/pliu/prompthub/internal/middleware"
	"github.com/pliu/prompthub/internal/models"
	"github.com/pliu/prompthub/internal/projects"
)

// Chatter sends one message in the context of a project. llm.Client
// implements it.
type Chatter interface {
	Chat(ctx context.Context, project *models.Project, message string) (string, error)
}

type ChatHandler struct {
	Projects *projects.Service
	LLM      Chatter
	Log      *zap.Logger
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.HandleError(w, h.Log, err)
		return
	}

	project, err := h.Projects.GetOwned(r.Context(), projectID, userID)
	if err != nil {
		httputil.HandleError(w, h.Log, err)
		return
	}

	var req ChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.HandleError(w, h.Log, err)
		return
	}

	reply, err := h.LLM.Chat(r.Context(), project, req.Message)
	if err != nil {
		httputil.HandleError(w, h.Log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
