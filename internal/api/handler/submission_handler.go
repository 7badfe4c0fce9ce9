package handler

import (
	"encoding/json"
	"net/http"

	"codenvibe/internal/api/middleware"
	"codenvibe/internal/app/service"
	"codenvibe/internal/common"

	"github.com/go-chi/chi/v5"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

func NewSubmissionHandler(ss *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Post("/submit", h.submit)                       // POST /api/v1/submission/submit
	r.Get("/exists/{questionId}", h.submissionExists) // GET /api/v1/submissions/exists/{questionId}
}

func (h *SubmissionHandler) submit(w http.ResponseWriter, r *http.Request) {
	teamID, ok := middleware.GetTeamIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing team context")
		return
	}

	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	resp, err := h.submissionService.Submit(r.Context(), teamID, req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *SubmissionHandler) submissionExists(w http.ResponseWriter, r *http.Request) {
	teamID, ok := middleware.GetTeamIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing team context")
		return
	}
	questionID := chi.URLParam(r, "questionId")

	exists, err := h.submissionService.Exists(r.Context(), teamID, questionID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}
