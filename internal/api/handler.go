// Package api exposes the panel's HTTP surface: domain lifecycle,
// status, and queue inspection.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/registry"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Registry is the subset of the scheduler registry the HTTP layer
// consumes.
type Registry interface {
	StartFor(domainName string, settings domain.Settings) error
	StopFor(domainName string) error
	StatusFor(domainName string) registry.Status
	QueueFor(domainName string) []domain.ContentRecord
	ClearQueueFor(domainName string) error
	Domains() []registry.Status
}

// Archive is the record store's read surface, present when a database is
// configured. GetRecord returns sql.ErrNoRows for unknown IDs.
type Archive interface {
	ListRecords(ctx context.Context, domainName string, limit, offset int) ([]domain.ContentRecord, error)
	GetRecord(ctx context.Context, id uuid.UUID) (domain.ContentRecord, error)
}

// Analytics reads the per-domain generation counters backing the panel's
// activity charts.
type Analytics interface {
	DayCounts(ctx context.Context, domainName string, day time.Time) (success, failure int64, err error)
}

// Pinger reports backend connectivity for verbose /health responses.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

type Handler struct {
	registry  Registry
	archive   Archive
	analytics Analytics
	db        Pinger
	cache     Pinger
}

func NewHandler(reg Registry) *Handler {
	return &Handler{registry: reg}
}

// WithArchive enables the archive read endpoints.
func (h *Handler) WithArchive(archive Archive) *Handler {
	h.archive = archive
	return h
}

// WithAnalytics enables the per-domain analytics endpoint.
func (h *Handler) WithAnalytics(analytics Analytics) *Handler {
	h.analytics = analytics
	return h
}

// WithDatabaseChecker sets the archive store checker for verbose
// /health responses.
func (h *Handler) WithDatabaseChecker(db Pinger) *Handler {
	h.db = db
	return h
}

// WithCacheChecker sets the analytics cache checker for verbose
// /health responses.
func (h *Handler) WithCacheChecker(cache Pinger) *Handler {
	h.cache = cache
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/domains" && r.Method == http.MethodGet:
		h.listDomains(w, r)

	case strings.HasPrefix(path, "/domains/"):
		h.domainRoute(w, r)

	case strings.HasPrefix(path, "/records/") && r.Method == http.MethodGet:
		h.getRecord(w, r, strings.TrimPrefix(path, "/records/"))

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// domainRoute dispatches /domains/{domain}/... actions.
func (h *Handler) domainRoute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 3 && parts[2] == "start" && r.Method == http.MethodPost:
		h.startDomain(w, r, parts[1])

	case len(parts) == 3 && parts[2] == "stop" && r.Method == http.MethodPost:
		h.stopDomain(w, r, parts[1])

	case len(parts) == 3 && parts[2] == "status" && r.Method == http.MethodGet:
		h.domainStatus(w, r, parts[1])

	case len(parts) == 3 && parts[2] == "queue" && r.Method == http.MethodGet:
		h.domainQueue(w, r, parts[1])

	case len(parts) == 4 && parts[2] == "queue" && parts[3] == "clear" && r.Method == http.MethodPost:
		h.clearQueue(w, r, parts[1])

	case len(parts) == 3 && parts[2] == "archive" && r.Method == http.MethodGet:
		h.domainArchive(w, r, parts[1])

	case len(parts) == 3 && parts[2] == "analytics" && r.Method == http.MethodGet:
		h.domainAnalytics(w, r, parts[1])

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || (h.db == nil && h.cache == nil) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components["database"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["database"] = "healthy"
		}
	}

	if h.cache != nil {
		if err := h.cache.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components["cache"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["cache"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) startDomain(w http.ResponseWriter, r *http.Request, domainName string) {
	if err := validateDomainName(domainName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An empty body means "use defaults".
		if !errors.Is(err, io.EOF) {
			if err.Error() == "http: request body too large" {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	if err := validateStart(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := domain.Settings{
		Enabled:          true,
		IntervalHours:    req.IntervalHours,
		CronExpression:   req.CronExpression,
		MaxPostsPerDay:   req.MaxPostsPerDay,
		ArticleLength:    req.ArticleLength,
		ImagesPerArticle: req.ImagesPerArticle,
		Category:         req.Category,
		ManualKeywords:   req.ManualKeywords,
		ManualTitles:     req.ManualTitles,
	}.Normalized()

	if err := h.registry.StartFor(domainName, settings); err != nil {
		if errors.Is(err, registry.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, "domain already active")
			return
		}
		log.Printf("api: start domain error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to start domain")
		return
	}

	writeJSON(w, http.StatusCreated, statusResponse(h.registry.StatusFor(domainName)))
}

func (h *Handler) stopDomain(w http.ResponseWriter, r *http.Request, domainName string) {
	if err := h.registry.StopFor(domainName); err != nil {
		if errors.Is(err, registry.ErrNotActive) {
			writeError(w, http.StatusConflict, "domain not active")
			return
		}
		log.Printf("api: stop domain error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to stop domain")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse(h.registry.StatusFor(domainName)))
}

func (h *Handler) domainStatus(w http.ResponseWriter, r *http.Request, domainName string) {
	writeJSON(w, http.StatusOK, statusResponse(h.registry.StatusFor(domainName)))
}

func (h *Handler) domainQueue(w http.ResponseWriter, r *http.Request, domainName string) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records := h.registry.QueueFor(domainName)

	total := len(records)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	resp := QueueResponse{
		Domain:  domainName,
		Total:   total,
		Records: make([]RecordResponse, 0, end-offset),
	}
	for _, rec := range records[offset:end] {
		resp.Records = append(resp.Records, recordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) clearQueue(w http.ResponseWriter, r *http.Request, domainName string) {
	if err := h.registry.ClearQueueFor(domainName); err != nil {
		if errors.Is(err, registry.ErrNotActive) {
			writeError(w, http.StatusConflict, "domain not started")
			return
		}
		log.Printf("api: clear queue error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDomains(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Domains()

	resp := DomainsResponse{Domains: make([]StatusResponse, len(statuses))}
	for i, st := range statuses {
		resp.Domains[i] = statusResponse(st)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) domainArchive(w http.ResponseWriter, r *http.Request, domainName string) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not enabled")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.archive.ListRecords(r.Context(), domainName, limit, offset)
	if err != nil {
		log.Printf("api: list archive error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}

	resp := ArchiveResponse{
		Domain:  domainName,
		Limit:   limit,
		Offset:  offset,
		Records: make([]RecordResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, recordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request, idStr string) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not enabled")
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec, err := h.archive.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("api: get record error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	writeJSON(w, http.StatusOK, recordDetailResponse(rec))
}

func (h *Handler) domainAnalytics(w http.ResponseWriter, r *http.Request, domainName string) {
	if h.analytics == nil {
		writeError(w, http.StatusNotFound, "analytics not enabled")
		return
	}

	day := time.Now().UTC()
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		parsed, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid day, want YYYY-MM-DD")
			return
		}
		day = parsed
	}

	success, failure, err := h.analytics.DayCounts(r.Context(), domainName, day)
	if err != nil {
		log.Printf("api: analytics error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load analytics")
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResponse{
		Domain:  domainName,
		Day:     day.Format("2006-01-02"),
		Success: success,
		Failure: failure,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
