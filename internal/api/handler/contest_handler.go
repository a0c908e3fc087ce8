package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"colosseum/internal/api/middleware"
	"colosseum/internal/app/service"
	"colosseum/internal/common"
	"colosseum/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ContestHandler struct {
	contestService       *service.ContestService
	participationService *service.ParticipationService
	rankingService       *service.RankingService
	authService          *service.AuthService
}

func NewContestHandler(
	contestService *service.ContestService,
	participationService *service.ParticipationService,
	rankingService *service.RankingService,
	authService *service.AuthService,
) *ContestHandler {
	return &ContestHandler{
		contestService:       contestService,
		participationService: participationService,
		rankingService:       rankingService,
		authService:          authService,
	}
}

func (h *ContestHandler) RegisterRoutes(r chi.Router) {
	// Read endpoints work anonymously; visibility shrinks accordingly.
	r.Group(func(public chi.Router) {
		public.Use(middleware.MaybeAuthenticated)
		public.Get("/", h.list)
		public.Get("/{contestKey}", h.detail)
		public.Get("/{contestKey}/ranking", h.ranking)
	})

	r.Group(func(auth chi.Router) {
		auth.Use(middleware.Authenticator)
		auth.Post("/", h.create)
		auth.Put("/{contestKey}", h.update)
		auth.Post("/{contestKey}/clone", h.clone)
		auth.Post("/{contestKey}/problems", h.addProblems)
		auth.Post("/{contestKey}/join", h.join)
		auth.Post("/{contestKey}/leave", h.leave)

		auth.Group(func(admin chi.Router) {
			admin.Use(middleware.AdminOnly)
			admin.Post("/{contestKey}/rescore", h.rescore)
		})
	})
}

func (h *ContestHandler) RegisterParticipationRoutes(r chi.Router) {
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.Authenticator)
		admin.Use(middleware.AdminOnly)
		admin.Post("/{participationID}/disqualify", h.disqualify)
		admin.Post("/{participationID}/recompute", h.recompute)
	})
}

// requestUser resolves the requester, or nil for anonymous requests.
func (h *ContestHandler) requestUser(r *http.Request) (*model.User, error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return nil, nil
	}
	return h.authService.UserByID(r.Context(), userID)
}

func (h *ContestHandler) list(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	contests, err := h.contestService.ListVisible(r.Context(), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, contests)
}

type contestDetailResponse struct {
	Contest  *model.Contest              `json:"contest"`
	Problems []model.ContestProblem      `json:"problems,omitempty"`
	Current  *model.ContestParticipation `json:"current_participation,omitempty"`
}

func (h *ContestHandler) detail(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	contest, problems, err := h.contestService.Get(r.Context(), chi.URLParam(r, "contestKey"), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	resp := contestDetailResponse{Contest: contest, Problems: problems}
	current, err := h.participationService.CurrentParticipation(r.Context(), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	if contest.IsInContest(current) {
		resp.Current = current
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *ContestHandler) create(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	var contest model.Contest
	if err := json.NewDecoder(r.Body).Decode(&contest); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.contestService.Create(r.Context(), &contest, user); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, contest)
}

func (h *ContestHandler) update(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	var contest model.Contest
	if err := json.NewDecoder(r.Body).Decode(&contest); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	updated, err := h.contestService.Update(r.Context(), chi.URLParam(r, "contestKey"), &contest, user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, updated)
}

type cloneRequest struct {
	NewKey string `json:"new_key"`
}

func (h *ContestHandler) clone(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	var req cloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	clone, err := h.contestService.Clone(r.Context(), chi.URLParam(r, "contestKey"), req.NewKey, user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, clone)
}

func (h *ContestHandler) addProblems(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	var problems []model.ContestProblem
	if err := json.NewDecoder(r.Body).Decode(&problems); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.contestService.AddProblems(r.Context(), chi.URLParam(r, "contestKey"), problems, user); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, problems)
}

type joinRequest struct {
	AccessCode string `json:"access_code"`
}

func (h *ContestHandler) join(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req joinRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
	}

	participation, err := h.participationService.Join(r.Context(), chi.URLParam(r, "contestKey"), userID, req.AccessCode)
	if err != nil {
		// Wrong or missing access code is not final; the client re-prompts
		// and resubmits.
		if errors.Is(err, common.ErrAccessCodeRequired) {
			common.RespondWithRetryableError(w, common.HTTPStatusFromError(err), err.Error())
			return
		}
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, participation)
}

func (h *ContestHandler) leave(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	if err := h.participationService.Leave(r.Context(), chi.URLParam(r, "contestKey"), userID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *ContestHandler) ranking(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	current, err := h.participationService.CurrentParticipation(r.Context(), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	rows, err := h.rankingService.Ranking(r.Context(), chi.URLParam(r, "contestKey"), user, current)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, rows)
}

func (h *ContestHandler) rescore(w http.ResponseWriter, r *http.Request) {
	user, err := h.requestUser(r)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	contest, _, err := h.contestService.Get(r.Context(), chi.URLParam(r, "contestKey"), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	job, err := h.contestService.ScheduleRescore(r.Context(), contest.ID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, job)
}

type disqualifyRequest struct {
	Disqualified bool `json:"disqualified"`
}

func (h *ContestHandler) disqualify(w http.ResponseWriter, r *http.Request) {
	var req disqualifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	participation, err := h.participationService.SetDisqualified(r.Context(), chi.URLParam(r, "participationID"), req.Disqualified)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, participation)
}

func (h *ContestHandler) recompute(w http.ResponseWriter, r *http.Request) {
	participation, err := h.participationService.RecomputeResults(r.Context(), chi.URLParam(r, "participationID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, participation)
}
