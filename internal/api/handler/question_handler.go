package handler

import (
	"net/http"
	"strconv"

	"codenvibe/internal/api/middleware"
	"codenvibe/internal/app/service"
	"codenvibe/internal/common"

	"github.com/go-chi/chi/v5"
)

type QuestionHandler struct {
	questionService   *service.QuestionService
	submissionService *service.SubmissionService
}

func NewQuestionHandler(qs *service.QuestionService, ss *service.SubmissionService) *QuestionHandler {
	return &QuestionHandler{questionService: qs, submissionService: ss}
}

// RegisterRoutes serves /api/v1/questions to authenticated teams.
func (h *QuestionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listQuestions)         // GET /api/v1/questions
	r.Get("/{id}", h.getQuestion)       // GET /api/v1/questions/{id}
	r.Get("/{id}/logs", h.questionLogs) // GET /api/v1/questions/{id}/logs
}

// RegisterCheckRoutes serves /api/v1/question, the admin reference check.
func (h *QuestionHandler) RegisterCheckRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)
	r.Post("/check/{id}", h.checkQuestion) // POST /api/v1/question/check/{id}
}

// RegisterAdminRoutes serves the question views under /api/v1/admin.
func (h *QuestionHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/questions/{id}/submissions", h.listSubmissions) // GET /api/v1/admin/questions/{id}/submissions
}

func (h *QuestionHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	year, ok := middleware.GetYearFromContext(r.Context())
	if middleware.IsAdmin(r.Context()) {
		if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil {
			year, ok = y, true
		}
	}
	if !ok {
		common.RespondWithError(w, http.StatusBadRequest, "Cohort year is required")
		return
	}

	questions, err := h.questionService.ListForCohort(r.Context(), year)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, questions)
}

func (h *QuestionHandler) getQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questionService.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	if !middleware.IsAdmin(r.Context()) {
		year, _ := middleware.GetYearFromContext(r.Context())
		if q.Year != year {
			common.RespondWithError(w, http.StatusForbidden, "Question belongs to another cohort")
			return
		}
	}
	common.RespondWithJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) questionLogs(w http.ResponseWriter, r *http.Request) {
	teamID, ok := middleware.GetTeamIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing team context")
		return
	}

	logs, err := h.submissionService.History(r.Context(), teamID, chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (h *QuestionHandler) checkQuestion(w http.ResponseWriter, r *http.Request) {
	report, err := h.questionService.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, report)
}

func (h *QuestionHandler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	records, err := h.submissionService.ListByQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"submissions": records})
}
