package handler

import (
	"net/http"
	"strconv"
	"time"

	"codenvibe/internal/api/middleware"
	"codenvibe/internal/app/service"
	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
}

func NewLeaderboardHandler(ls *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: ls}
}

type LeaderboardResponse struct {
	Success     bool                     `json:"success"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
	Timestamp   time.Time                `json:"timestamp"`
}

func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Identify)
	r.Get("/", h.getLeaderboard)             // GET /api/v1/leaderboard
	r.Get("/{year}", h.getCohortLeaderboard) // GET /api/v1/leaderboard/{year}
}

// getLeaderboard serves the caller's cohort to participants and every cohort
// to admins and anonymous viewers.
func (h *LeaderboardHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	var (
		entries []model.LeaderboardEntry
		err     error
	)
	year, ok := middleware.GetYearFromContext(r.Context())
	if ok && !middleware.IsAdmin(r.Context()) {
		entries, err = h.leaderboardService.Leaderboard(r.Context(), year)
	} else {
		entries, err = h.leaderboardService.AllLeaderboards(r.Context())
	}
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	respondLeaderboard(w, entries)
}

func (h *LeaderboardHandler) getCohortLeaderboard(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year <= 0 {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid year")
		return
	}
	entries, err := h.leaderboardService.Leaderboard(r.Context(), year)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	respondLeaderboard(w, entries)
}

func respondLeaderboard(w http.ResponseWriter, entries []model.LeaderboardEntry) {
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	common.RespondWithJSON(w, http.StatusOK, LeaderboardResponse{
		Success:     true,
		Leaderboard: entries,
		Timestamp:   time.Now().UTC(),
	})
}
