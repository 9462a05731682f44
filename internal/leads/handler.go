package leads

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

const (
	maxLeadBody      = 16 << 10
	defaultListLimit = 50
	maxListLimit     = 100
)

// Handler serves the contact form and the admin lead listing.
type Handler struct {
	repo     Repository
	notifier Notifier
	logger   *logging.Logger
}

// NewHandler creates a leads handler. notifier may be nil.
func NewHandler(repo Repository, notifier Notifier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, notifier: notifier, logger: logger.Component("leads")}
}

// CreateWebLead handles POST /leads/web from the website contact form.
// Source and status are always set server side.
func (h *Handler) CreateWebLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLeadBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Source = SourceWebForm
	req.Status = StatusNew

	lead, err := h.repo.Create(r.Context(), &req)
	switch {
	case errors.Is(err, ErrInvalidLead):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalidLead.Error()+": "))
		return
	case err != nil:
		h.logger.Error("create web lead", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}

	h.logger.Info("web lead captured", "lead_id", lead.ID, "score", lead.Score)
	if h.notifier != nil {
		if err := h.notifier.LeadCaptured(r.Context(), lead); err != nil {
			h.logger.Warn("lead notification failed", "lead_id", lead.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, lead)
}

// ListLeadsResponse is one page of the admin lead listing.
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /admin/leads?status=&source=&min_score=&limit=&offset=.
// Out of range paging values fall back to defaults.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r.URL.Query())
	leads, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list leads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []*Lead{}
	}
	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

func parseListFilter(q url.Values) ListLeadsFilter {
	filter := ListLeadsFilter{
		Limit:  defaultListLimit,
		Status: strings.TrimSpace(q.Get("status")),
		Source: strings.TrimSpace(q.Get("source")),
	}
	if n, ok := intParam(q, "limit"); ok && n > 0 && n <= maxListLimit {
		filter.Limit = n
	}
	if n, ok := intParam(q, "offset"); ok && n >= 0 {
		filter.Offset = n
	}
	if n, ok := intParam(q, "min_score"); ok && n >= 0 && n <= 100 {
		filter.MinScore = n
	}
	return filter
}

func intParam(q url.Values, key string) (int, bool) {
	raw := q.Get(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
