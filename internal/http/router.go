package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/gatehouse/internal/domain"
	"github.com/splax/gatehouse/internal/engine"
	"github.com/splax/gatehouse/internal/repository"
	"github.com/splax/gatehouse/internal/repository/postgres"
	"github.com/splax/gatehouse/internal/service/grant"
	"github.com/splax/gatehouse/internal/ws"
)

// Router wires the decision API endpoints to the engine and grant service.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	engine    *engine.Engine
	grants    grant.Service
	decisions *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	jwtSecret string
	rateLimit int
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, eng *engine.Engine, grants grant.Service, decisions *ws.Hub, limiter RateLimiter, jwtSecret string, rateLimit int, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		engine:    eng,
		grants:    grants,
		decisions: decisions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   limiter,
		jwtSecret: jwtSecret,
		rateLimit: rateLimit,
		dbHealth:  dbHealth,
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
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.HandleFunc("/v1/check", r.audit(r.requireAuth(r.withRateLimit(r.rateLimit, rateWindowDefault, r.handleCheck))))
	r.mux.HandleFunc("/v1/check/create", r.audit(r.requireAuth(r.withRateLimit(r.rateLimit, rateWindowDefault, r.handleCreateCheck))))
	r.mux.HandleFunc("/v1/filter/sql", r.audit(r.requireAuth(r.withRateLimit(r.rateLimit, rateWindowDefault, r.handleFilterSQL))))
	r.mux.HandleFunc("/v1/grants", r.audit(r.requireAuth(r.withRateLimit(r.rateLimit, rateWindowDefault, r.handleGrants))))
	r.mux.HandleFunc("/v1/grants/", r.audit(r.requireAuth(r.withRateLimit(r.rateLimit, rateWindowDefault, r.handleGrantByID))))
	r.mux.HandleFunc("/v1/decisions/stream", r.audit(r.requireAuth(r.withRateLimit(rateLimitWebsocket, rateWindowRealtime, r.handleDecisionStream))))
}

type checkRequest struct {
	Actor        string `json:"actor,omitempty"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Level        string `json:"level,omitempty"`
	MinimumRole  string `json:"minimum_role,omitempty"`
}

type checkResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// decisionEvent is the audit payload broadcast for every point decision.
type decisionEvent struct {
	Actor        string `json:"actor"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Level        string `json:"level"`
	Result       string `json:"result"`
	Message      string `json:"message"`
	ElapsedMS    int64  `json:"elapsed_ms"`
	At           string `json:"at"`
}

func (r *Router) handleCheck(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	caller, _ := actorFromContext(req.Context())
	var body checkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := caller
	if body.Actor != "" && body.Actor != caller {
		// Only sentinel callers may ask on behalf of another actor.
		s := r.engine.Sentinels()
		if !s.IsRoot(caller) && !s.IsSystem(caller) {
			writeError(w, http.StatusForbidden, "only sentinel actors may check on behalf of others")
			return
		}
		actor = body.Actor
	}

	level, err := resolveLevel(body.Level, body.MinimumRole)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	decision := r.engine.CheckPermission(req.Context(), actor, body.ResourceType, body.ResourceID, level)
	r.broadcastDecision(actor, body.ResourceType, body.ResourceID, level, decision, time.Since(start))

	writeJSON(w, statusForResult(decision.Result), checkResponse{
		Result:  decision.Result.String(),
		Message: decision.Message,
	})
}

func resolveLevel(level, minimumRole string) (domain.Capability, error) {
	if level != "" {
		return domain.ParseCapability(level)
	}
	return engine.RequiredLevelForRole(minimumRole), nil
}

func statusForResult(result engine.Result) int {
	switch result {
	case engine.ResultGranted, engine.ResultDenied:
		return http.StatusOK
	case engine.ResultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) broadcastDecision(actor, resourceType, resourceID string, level domain.Capability, decision engine.Decision, elapsed time.Duration) {
	if r.decisions == nil {
		return
	}
	payload, err := json.Marshal(decisionEvent{
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Level:        level.String(),
		Result:       decision.Result.String(),
		Message:      decision.Message,
		ElapsedMS:    elapsed.Milliseconds(),
		At:           time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	r.decisions.Broadcast(resourceType, payload)
}

type createCheckRequest struct {
	ResourceType string            `json:"resource_type"`
	ForeignKeys  map[string]string `json:"foreign_keys"`
}

func (r *Router) handleCreateCheck(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, _ := actorFromContext(req.Context())
	var body createCheckRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	allowed, reason, err := r.engine.CanCreateReferencedEntity(req.Context(), body.ResourceType, actor, body.ForeignKeys)
	if err != nil {
		r.logger.Error("create permission check failed", "resource_type", body.ResourceType, "error", err)
		writeError(w, http.StatusInternalServerError, "create permission check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": allowed, "reason": reason})
}

type filterSQLRequest struct {
	ResourceType string `json:"resource_type"`
	Level        string `json:"level"`
}

func (r *Router) handleFilterSQL(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, _ := actorFromContext(req.Context())
	var body filterSQLRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	level, err := domain.ParseCapability(body.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pred, err := r.engine.PermissionFilter(req.Context(), actor, body.ResourceType, level)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownType) || errors.Is(err, engine.ErrNilArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("permission filter failed", "resource_type", body.ResourceType, "error", err)
		writeError(w, http.StatusInternalServerError, "permission filter failed")
		return
	}
	clause, args, err := postgres.Compile(pred, "t", 0)
	if err != nil {
		r.logger.Error("predicate compilation failed", "resource_type", body.ResourceType, "error", err)
		writeError(w, http.StatusInternalServerError, "predicate compilation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"where": clause, "args": args})
}

type grantRequest struct {
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	UserID       string     `json:"user_id,omitempty"`
	TeamID       string     `json:"team_id,omitempty"`
	RoleID       string     `json:"role_id,omitempty"`
	CanView      bool       `json:"can_view"`
	CanExecute   bool       `json:"can_execute"`
	CanCopy      bool       `json:"can_copy"`
	CanEdit      bool       `json:"can_edit"`
	CanDelete    bool       `json:"can_delete"`
	CanShare     bool       `json:"can_share"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func (g grantRequest) input() grant.Input {
	return grant.Input{
		ResourceType: g.ResourceType,
		ResourceID:   g.ResourceID,
		UserID:       g.UserID,
		TeamID:       g.TeamID,
		RoleID:       g.RoleID,
		CanView:      g.CanView,
		CanExecute:   g.CanExecute,
		CanCopy:      g.CanCopy,
		CanEdit:      g.CanEdit,
		CanDelete:    g.CanDelete,
		CanShare:     g.CanShare,
		ExpiresAt:    g.ExpiresAt,
	}
}

func (r *Router) handleGrants(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, _ := actorFromContext(req.Context())
	var body grantRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := r.grants.Create(req.Context(), actor, body.input())
	if err != nil {
		r.writeGrantError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleGrantByID(w http.ResponseWriter, req *http.Request) {
	grantID := strings.TrimPrefix(req.URL.Path, "/v1/grants/")
	if grantID == "" || strings.Contains(grantID, "/") {
		r.notFound(w)
		return
	}
	actor, _ := actorFromContext(req.Context())
	switch req.Method {
	case http.MethodPatch:
		var body grantRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		updated, err := r.grants.Update(req.Context(), actor, grantID, body.input())
		if err != nil {
			r.writeGrantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := r.grants.Delete(req.Context(), actor, grantID); err != nil {
			r.writeGrantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) writeGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "grant not found")
	case errors.Is(err, grant.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (r *Router) handleDecisionStream(w http.ResponseWriter, req *http.Request) {
	if r.decisions == nil {
		writeError(w, http.StatusServiceUnavailable, "decision stream disabled")
		return
	}
	topic := strings.TrimSpace(req.URL.Query().Get("resource_type"))
	if topic == "" {
		topic = ws.AllTopics
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.decisions.Register(topic, client)
	defer r.decisions.Unregister(topic, client)

	// Hold the connection open; the hub drops the client on send failure.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("database health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// audit logs every request with its status and duration.
func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, req)
		elapsed := time.Since(start)
		r.recordRequestMetrics(req.Method, req.URL.Path, recorder.status, elapsed)
		r.logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", recorder.status,
			"duration_ms", elapsed.Milliseconds())
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
