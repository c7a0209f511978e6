package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livninoam/workday/internal/repository"
	"github.com/livninoam/workday/internal/service/devenv"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	envs           devenv.Service
	limiter        RateLimiter
	rateLimit      int
	requestTimeout time.Duration
	dbHealth       func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 20

	welcomeMessage = "Welcome to the Dev Environment Management API"
	deletedMessage = "Environment deleted successfully"
	notFoundDetail = "Environment not found"
)

// NewRouter assembles routes with dependencies. A rateLimit of zero disables
// rate limiting; a zero requestTimeout leaves request contexts untouched.
func NewRouter(logger *slog.Logger, envSvc devenv.Service, limiter RateLimiter, rateLimit int, requestTimeout time.Duration, dbHealth func(context.Context) error) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:            http.NewServeMux(),
		logger:         logger,
		envs:           envSvc,
		limiter:        limiter,
		rateLimit:      rateLimit,
		requestTimeout: requestTimeout,
		dbHealth:       dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.audit("/", r.handleRoot))
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/envs", r.audit("/envs", r.guard("/envs", r.handleEnvs)))
	r.mux.HandleFunc("/envs/", r.audit("/envs/{id}", r.guard("/envs/{id}", r.handleEnvSubroutes)))
}

// guard applies the per-client rate limit and the request deadline.
func (r *Router) guard(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.withRateLimit(route, r.rateLimit, rateWindowDefault, rateLimitKeyIP, r.withTimeout(next))
}

func (r *Router) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	if r.requestTimeout <= 0 {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), r.requestTimeout)
		defer cancel()
		next(w, req.WithContext(ctx))
	}
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (r *Router) handleEnvs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload devenv.CreateInput
	if err := decodeJSON(w, req, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, err := r.envs.Create(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (r *Router) handleEnvSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/envs/")
	parts := strings.Split(trimmed, "/")
	envID := parts[0]
	if envID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleEnv(w, req, envID)
	case len(parts) == 2 && parts[1] == "extend":
		r.handleEnvExtend(w, req, envID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleEnv(w http.ResponseWriter, req *http.Request, envID string) {
	switch req.Method {
	case http.MethodGet:
		env, err := r.envs.Get(req.Context(), envID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, env)
	case http.MethodPut:
		var payload devenv.UpdateInput
		if err := decodeJSON(w, req, &payload); err != nil {
			writeDecodeError(w, err)
			return
		}
		env, err := r.envs.Update(req.Context(), envID, payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, env)
	case http.MethodDelete:
		if err := r.envs.Delete(req.Context(), envID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"detail": deletedMessage})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleEnvExtend(w http.ResponseWriter, req *http.Request, envID string) {
	if req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	if !query.Has("extra_duration") {
		writeValidationError(w, []devenv.FieldError{{Field: "extra_duration", Message: "field required"}})
		return
	}
	extra, err := strconv.ParseInt(strings.TrimSpace(query.Get("extra_duration")), 10, 32)
	if err != nil {
		writeValidationError(w, []devenv.FieldError{{Field: "extra_duration", Message: "must be an integer"}})
		return
	}
	env, err := r.envs.Extend(req.Context(), envID, int32(extra))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			r.logger.Warn("database health check failed", "error", err)
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps service and storage failures to responses. Unknown
// failures are logged and reported without internal detail.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var (
		verr     *devenv.ValidationError
		fieldErr *repository.FieldError
	)
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr.Fields)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundDetail)
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": fieldErr.Error(),
			"errors": []devenv.FieldError{{Field: fieldErr.Field, Message: fieldErr.Reason}},
		})
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, "invalid argument")
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.Error("request timed out", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		r.logger.Error("storage operation failed", "method", req.Method, "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeJSON reads exactly one JSON value from the body.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var sizeErr *http.MaxBytesError
		if errors.As(err, &sizeErr) {
			return err
		}
		return errTrailingData
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var (
		typeErr *json.UnmarshalTypeError
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, errTrailingData):
		writeError(w, http.StatusUnprocessableEntity, "request body must contain a single JSON object")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		writeValidationError(w, []devenv.FieldError{{Field: typeErr.Field, Message: "must be " + describeKind(typeErr.Type)}})
	default:
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
	}
}

func describeKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "an integer within range"
	case reflect.String:
		return "a string"
	default:
		return "of type " + t.String()
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
