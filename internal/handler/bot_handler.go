package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"botops-console/internal/models"
	"botops-console/internal/remote"
	"botops-console/internal/service"
	"botops-console/internal/util"
)

// BotHandler exposes the bot registry and remote process control.
type BotHandler struct {
	bots *service.BotService
}

func NewBotHandler(bots *service.BotService) *BotHandler {
	return &BotHandler{bots: bots}
}

// RegisterRoutes mounts the bot endpoints; all require a session.
func (h *BotHandler) RegisterRoutes(router chi.Router, sessionAuth *SessionAuth) {
	router.Route("/bots", func(r chi.Router) {
		r.Use(sessionAuth.Require)

		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{botID}", h.Get)
		r.Put("/{botID}", h.Update)
		r.Delete("/{botID}", h.Delete)

		r.Post("/{botID}/start", h.Start)
		r.Post("/{botID}/stop", h.Stop)
		r.Get("/{botID}/status", h.Status)
	})
}

type botRequest struct {
	Name       string `json:"name"`
	JobName    string `json:"job_name"`
	TargetSite string `json:"target_site"`
	Schedule   string `json:"schedule"`
	PromptID   string `json:"prompt_id"`
}

func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bot, err := h.bots.Create(r.Context(), &models.Bot{
		Name:       req.Name,
		JobName:    req.JobName,
		TargetSite: req.TargetSite,
		Schedule:   req.Schedule,
		PromptID:   req.PromptID,
	})
	if err != nil {
		util.Error("Bot creation failed", util.ErrorField(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(bot, "bot registered"))
}

func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	bots, err := h.bots.List(r.Context())
	if err != nil {
		util.Error("Bot list failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := successResponse(bots, "")
	resp.Meta = &Meta{Total: len(bots)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		h.respondBotError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(bot, ""))
}

func (h *BotHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bot := &models.Bot{
		BotID:      chi.URLParam(r, "botID"),
		Name:       req.Name,
		JobName:    req.JobName,
		TargetSite: req.TargetSite,
		Schedule:   req.Schedule,
		PromptID:   req.PromptID,
	}

	if err := h.bots.Update(r.Context(), bot); err != nil {
		h.respondBotError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(bot, "bot updated"))
}

func (h *BotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.bots.Delete(r.Context(), chi.URLParam(r, "botID")); err != nil {
		h.respondBotError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "bot deleted"))
}

func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Start(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		h.respondBotError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(bot, "bot started"))
}

func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Stop(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		h.respondBotError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(bot, "bot stopped"))
}

func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.bots.Status(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		h.respondBotError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(status, ""))
}

func (h *BotHandler) respondBotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrBotNotFound):
		respondWithError(w, http.StatusNotFound, "bot not found")
	case errors.Is(err, remote.ErrJobNotFound):
		respondWithError(w, http.StatusConflict, "job not registered on remote host")
	case errors.Is(err, remote.ErrUnavailable):
		respondWithError(w, http.StatusBadGateway, "remote process manager unavailable")
	default:
		util.Error("Bot operation failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}
