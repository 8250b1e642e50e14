package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"weather-query-service/internal/models"
	"weather-query-service/internal/query"
	"weather-query-service/internal/storage"
	"weather-query-service/internal/tools"
	"weather-query-service/internal/trend"
	"weather-query-service/pkg/metrics"
)

// maxRequestBody bounds tool-call argument payloads
const maxRequestBody = 1 << 20

// Invalidator is the administrative cache-invalidation contract
type Invalidator interface {
	InvalidateCache(prefix string) int
}

// HealthChecker reports backing-store liveness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ToolHandler adapts the tool registry onto HTTP transport
type ToolHandler struct {
	registry    *tools.Registry
	invalidator Invalidator
	health      HealthChecker
	logger      zerolog.Logger
	metrics     *metrics.Collector
}

// NewToolHandler creates a new tool HTTP adapter
func NewToolHandler(
	registry *tools.Registry,
	invalidator Invalidator,
	health HealthChecker,
	logger zerolog.Logger,
	metricsCollector *metrics.Collector,
) *ToolHandler {
	return &ToolHandler{
		registry:    registry,
		invalidator: invalidator,
		health:      health,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListTools handles GET /api/tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPIRequest("/api/tools", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"tools": h.registry.List()}, http.StatusOK)
}

// CallTool handles POST /api/tools/{name}
func (h *ToolHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/tools/" + name).Observe(duration.Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.sendError(w, r, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.registry.Dispatch(ctx, name, json.RawMessage(body))
	if err != nil {
		h.sendToolError(w, r, name, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/tools/"+name, "POST", "200")
	h.sendJSON(w, result, http.StatusOK)
}

// InvalidateCache handles POST /api/admin/cache/invalidate
func (h *ToolHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prefix string `json:"prefix"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body, expected {\"prefix\": \"...\"}", http.StatusBadRequest)
		return
	}
	if req.Prefix == "" {
		h.sendError(w, r, "prefix is required (use a namespace such as \"query\" or \"summary\")", http.StatusBadRequest)
		return
	}

	removed := h.invalidator.InvalidateCache(req.Prefix)
	h.logger.Info().
		Str("prefix", req.Prefix).
		Int("removed", removed).
		Msg("[ADMIN_INVALIDATE] Cache entries invalidated")

	h.metrics.RecordAPIRequest("/api/admin/cache/invalidate", "POST", "200")
	h.sendJSON(w, map[string]interface{}{"removed": removed}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ToolHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			status["status"] = "unhealthy"
			h.sendJSON(w, status, http.StatusServiceUnavailable)
			return
		}
	}

	h.sendJSON(w, status, http.StatusOK)
}

// sendToolError maps the error taxonomy onto status codes. Deterministic
// rejections and insufficient-data failures surface their reason verbatim;
// everything else gets a generic message so internals stay internal.
func (h *ToolHandler) sendToolError(w http.ResponseWriter, r *http.Request, name string, err error) {
	endpoint := "/api/tools/" + name

	var unknownTool *tools.UnknownToolError
	var rejection *query.RejectionError
	var validation *models.ValidationError
	var insufficient *trend.InsufficientDataError
	var execution *storage.ExecutionError

	switch {
	case errors.As(err, &unknownTool):
		h.metrics.RecordAPIError("unknown_tool", endpoint)
		h.sendError(w, r, unknownTool.Error(), http.StatusNotFound)

	case errors.As(err, &rejection):
		h.metrics.RecordAPIError("rejected", endpoint)
		h.sendError(w, r, rejection.Reason, http.StatusBadRequest)

	case errors.As(err, &validation):
		h.metrics.RecordAPIError("validation", endpoint)
		h.sendError(w, r, validation.Message, http.StatusBadRequest)

	case errors.As(err, &insufficient):
		h.metrics.RecordAPIError("insufficient_data", endpoint)
		h.sendError(w, r, insufficient.Error(), http.StatusUnprocessableEntity)

	case errors.As(err, &execution):
		h.metrics.RecordAPIError(execution.Kind.String(), endpoint)
		switch execution.Kind {
		case storage.Timeout:
			h.sendError(w, r, "query timed out", http.StatusGatewayTimeout)
		case storage.StorageBusy:
			h.sendError(w, r, "storage busy, try again later", http.StatusServiceUnavailable)
		default:
			h.sendError(w, r, "query rejected by the storage engine", http.StatusBadRequest)
		}

	default:
		h.logger.Error().Err(err).Str("tool", name).Msg("[API_TOOL_ERROR] Tool call failed")
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *ToolHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ToolHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all tool API routes
func (h *ToolHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/tools", h.ListTools).Methods("GET")
	router.HandleFunc("/api/tools/{name}", h.CallTool).Methods("POST")
	router.HandleFunc("/api/admin/cache/invalidate", h.InvalidateCache).Methods("POST")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
