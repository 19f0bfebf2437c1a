package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dondelocompro/pricehub/internal/db"
	"github.com/dondelocompro/pricehub/internal/domain"
	"github.com/dondelocompro/pricehub/internal/metrics"
	searchuc "github.com/dondelocompro/pricehub/internal/usecase/search"
)

// errorCode is the machine-readable code in error responses.
type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeValidationFailed errorCode = "validation_failed"
	codeSearchNotFound   errorCode = "search_not_found"
	codeInternalError    errorCode = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// vendorLister is the registry view the API needs.
type vendorLister interface {
	AllVendors() []domain.Vendor
}

// Server is the HTTP API over the search orchestrator.
type Server struct {
	search            *searchuc.Service
	vendors           vendorLister
	pinger            db.Pinger
	logger            *zap.Logger
	errorHandlers     []errorHandler
	defaultMaxResults int
	maxMaxResults     int
	heartbeat         time.Duration
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, vendors vendorLister, logger *zap.Logger) *Server {
	s := &Server{
		search:            search,
		vendors:           vendors,
		logger:            logger,
		defaultMaxResults: 50,
		maxMaxResults:     100,
		heartbeat:         15 * time.Second,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSearchNotFound, http.StatusNotFound, codeSearchNotFound),
	}
	return s
}

// WithLimits sets the default and maximum per-vendor result limits.
func (s *Server) WithLimits(def, max int) *Server {
	if def > 0 {
		s.defaultMaxResults = def
	}
	if max > 0 {
		s.maxMaxResults = max
	}
	return s
}

// WithHeartbeat sets the SSE keep-alive comment interval.
func (s *Server) WithHeartbeat(d time.Duration) *Server {
	if d > 0 {
		s.heartbeat = d
	}
	return s
}

// WithPinger attaches a cache connectivity check to /healthz.
func (s *Server) WithPinger(p db.Pinger) *Server {
	s.pinger = p
	return s
}

// Routes mounts every API endpoint on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/search", s.CreateSearch)
	r.Get("/api/search/{id}", s.GetSearch)
	r.Delete("/api/search/{id}", s.CancelSearch)
	r.Get("/api/search/{id}/events", s.StreamEvents)
	r.Get("/api/vendors", s.ListVendors)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type createSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type createSearchResponse struct {
	SearchID  string `json:"search_id"`
	Status    string `json:"status"`
	EventsURL string `json:"events_url"`
	Message   string `json:"message"`
}

// CreateSearch handles POST /api/search. The search id comes back
// immediately; results arrive on the event stream.
func (s *Server) CreateSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.MaxResults == 0 {
		req.MaxResults = s.defaultMaxResults
	}
	if req.MaxResults < 0 || req.MaxResults > s.maxMaxResults {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("max_results must be between 1 and %d", s.maxMaxResults))
		return
	}

	id, err := s.search.Start(req.Query, req.MaxResults)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, createSearchResponse{
		SearchID:  id,
		Status:    string(domain.StatusInitiated),
		EventsURL: fmt.Sprintf("/api/search/%s/events", id),
		Message:   "Search started. Connect to events_url for live results.",
	})
}

// GetSearch handles GET /api/search/{id}: a point-in-time snapshot.
func (s *Server) GetSearch(w http.ResponseWriter, r *http.Request) {
	snap, err := s.search.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CancelSearch handles DELETE /api/search/{id}.
func (s *Server) CancelSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.search.Cancel(id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"search_id": id,
		"message":   "cancellation requested",
	})
}

// StreamEvents handles GET /api/search/{id}/events as server-sent
// events: the full history replays first, live events follow, and the
// stream ends after the terminal event. Comment lines keep idle
// connections alive.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	sub, err := s.search.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeEvent(w, e); err != nil {
				return
			}
			flusher.Flush()
			if e.Kind.Terminal() {
				return
			}
		}
	}
}

// ListVendors handles GET /api/vendors.
func (s *Server) ListVendors(w http.ResponseWriter, _ *http.Request) {
	vendors := s.vendors.AllVendors()
	writeJSON(w, http.StatusOK, map[string]any{
		"vendors": vendors,
		"count":   len(vendors),
	})
}

// HealthCheck handles GET /healthz. The cache is optional
// infrastructure: its check only appears when a store is attached.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}
	httpStatus := http.StatusOK

	var registered, active []string
	for _, v := range s.vendors.AllVendors() {
		registered = append(registered, v.ID)
		if v.Active {
			active = append(active, v.ID)
		}
	}

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("cache ping failed", zap.Error(err))
			checks["cache"] = "unhealthy"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["cache"] = "healthy"
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":         status,
		"checks":         checks,
		"vendors":        registered,
		"active_vendors": active,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeEvent(w http.ResponseWriter, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, map[string]string{
		"code":    string(code),
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSearchNotFound,
		domain.ErrNoActiveVendors,
		domain.ErrSearchCancelled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
