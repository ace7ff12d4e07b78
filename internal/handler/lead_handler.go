package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"botops-console/internal/models"
	"botops-console/internal/service"
	"botops-console/internal/util"
)

// LeadHandler exposes captured-lead CRUD and search.
type LeadHandler struct {
	leads *service.LeadService
}

func NewLeadHandler(leads *service.LeadService) *LeadHandler {
	return &LeadHandler{leads: leads}
}

// RegisterRoutes mounts the lead endpoints; all require a session.
func (h *LeadHandler) RegisterRoutes(router chi.Router, sessionAuth *SessionAuth) {
	router.Route("/leads", func(r chi.Router) {
		r.Use(sessionAuth.Require)

		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/search", h.Search)
		r.Get("/{leadID}", h.Get)
		r.Put("/{leadID}", h.Update)
		r.Delete("/{leadID}", h.Delete)
	})
}

type leadRequest struct {
	BotID        string `json:"bot_id"`
	Name         string `json:"name"`
	Company      string `json:"company"`
	ContactEmail string `json:"contact_email"`
	SourceURL    string `json:"source_url"`
	Score        int    `json:"score"`
	Status       string `json:"status"`
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lead, err := h.leads.Create(r.Context(), &models.Lead{
		BotID:        req.BotID,
		Name:         req.Name,
		Company:      req.Company,
		ContactEmail: req.ContactEmail,
		SourceURL:    req.SourceURL,
		Score:        req.Score,
		Status:       req.Status,
		CapturedAt:   time.Now().UTC(),
	})
	if err != nil {
		util.Error("Lead creation failed", util.ErrorField(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(lead, "lead captured"))
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	leads, err := h.leads.List(r.Context(), limit)
	if err != nil {
		util.Error("Lead list failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := successResponse(leads, "")
	resp.Meta = &Meta{Total: len(leads), PageSize: limit}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	lead, err := h.leads.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		h.respondLeadError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(lead, ""))
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lead := &models.Lead{
		LeadID:       chi.URLParam(r, "leadID"),
		BotID:        req.BotID,
		Name:         req.Name,
		Company:      req.Company,
		ContactEmail: req.ContactEmail,
		SourceURL:    req.SourceURL,
		Score:        req.Score,
		Status:       req.Status,
	}

	if err := h.leads.Update(r.Context(), lead); err != nil {
		h.respondLeadError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(lead, "lead updated"))
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.leads.Delete(r.Context(), chi.URLParam(r, "leadID")); err != nil {
		h.respondLeadError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "lead deleted"))
}

// Search runs a full-text query against the lead index.
func (h *LeadHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	docs, total, err := h.leads.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, service.ErrSearchUnavailable) {
			respondWithError(w, http.StatusBadGateway, "search unavailable")
			return
		}
		util.Error("Lead search failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := successResponse(docs, "")
	resp.Meta = &Meta{Total: total}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *LeadHandler) respondLeadError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrLeadNotFound) {
		respondWithError(w, http.StatusNotFound, "lead not found")
		return
	}
	util.Error("Lead operation failed", util.ErrorField(err))
	respondWithError(w, http.StatusInternalServerError, "internal error")
}
