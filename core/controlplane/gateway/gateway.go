// Package gateway exposes the policy engine over HTTP: document mutation
// and lookup, branch-guard checks, and a websocket feed of sync events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guardplane/guardplane/core/controlplane/branchguard"
	"github.com/guardplane/guardplane/core/controlplane/policyengine"
	"github.com/guardplane/guardplane/core/controlplane/syncengine"
	"github.com/guardplane/guardplane/core/infra/logging"
	"github.com/guardplane/guardplane/core/infra/metrics"
	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

const logComponent = "GATEWAY"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one entry on the websocket feed.
type Event struct {
	Type            string    `json:"type"`
	ConfigurationID int64     `json:"configuration_id,omitempty"`
	ProjectID       int64     `json:"project_id,omitempty"`
	At              time.Time `json:"at"`
}

// Server wires the synchronous policy services to HTTP. Mutations of one
// configuration serialize on a per-configuration mutex, so concurrent edits
// cannot interleave their read-mutate-write cycles.
type Server struct {
	dir     platform.Directory
	evalCtx platform.EvalContext
	sync    *syncengine.SyncScanResultPoliciesService
	metrics metrics.GatewayMetrics

	cfgMu    sync.Mutex
	cfgLocks map[int64]*sync.Mutex

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]chan Event
}

func NewServer(dir platform.Directory, evalCtx platform.EvalContext, syncSvc *syncengine.SyncScanResultPoliciesService, m metrics.GatewayMetrics) *Server {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Server{
		dir:      dir,
		evalCtx:  evalCtx,
		sync:     syncSvc,
		metrics:  m,
		cfgLocks: map[int64]*sync.Mutex{},
		clients:  map[*websocket.Conn]chan Event{},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("PUT /api/v1/configurations/{id}/policies",
		s.instrumented("/api/v1/configurations/{id}/policies", s.handleMutatePolicies))
	mux.HandleFunc("GET /api/v1/configurations/{id}/policies/{kind}/{name}",
		s.instrumented("/api/v1/configurations/{id}/policies/{kind}/{name}", s.handleFetchPolicy))
	mux.HandleFunc("GET /api/v1/projects/{id}/branch-guard/default-branch",
		s.instrumented("/api/v1/projects/{id}/branch-guard/default-branch", s.handleDefaultBranchCheck))
	mux.HandleFunc("GET /api/v1/projects/{id}/branch-guard/force-push",
		s.instrumented("/api/v1/projects/{id}/branch-guard/force-push", s.handleForcePush))
	mux.HandleFunc("GET /api/v1/projects/{id}/branch-guard/deletable",
		s.instrumented("/api/v1/projects/{id}/branch-guard/deletable", s.handleDeletable))
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	return mux
}

func (s *Server) instrumented(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string, details []string) {
	writeJSON(w, code, map[string]any{"status": "error", "message": msg, "details": details})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// configLock returns the mutex serializing writes to one configuration.
func (s *Server) configLock(id int64) *sync.Mutex {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	mu, ok := s.cfgLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.cfgLocks[id] = mu
	}
	return mu
}

type mutateRequest struct {
	Policy    policy.Policy `json:"policy"`
	Kind      string        `json:"type"`
	Name      string        `json:"name,omitempty"`
	Operation string        `json:"operation"`
}

func (s *Server) handleMutatePolicies(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid configuration id", nil)
		return
	}
	var req mutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	kind := policy.Kind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, policy.ErrUnknownKind.Error(), nil)
		return
	}

	mu := s.configLock(id)
	mu.Lock()
	defer mu.Unlock()

	ctx := r.Context()
	cfg, err := s.dir.Configuration(ctx, id)
	if errors.Is(err, platform.ErrNotFound) {
		writeError(w, http.StatusNotFound, "configuration not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "configuration lookup failed", nil)
		return
	}

	result := policyengine.NewProcessService(cfg.Document, policyengine.Params{
		Policy:    req.Policy,
		Kind:      kind,
		Name:      req.Name,
		Operation: policyengine.Operation(req.Operation),
	}).Execute()
	if result.Status != policyengine.StatusSuccess {
		writeError(w, http.StatusBadRequest, result.Message, result.Details)
		return
	}

	cfg.Document = result.Document
	if err := s.dir.SaveConfiguration(ctx, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "configuration save failed", nil)
		return
	}
	s.triggerSync(ctx, cfg)
	s.broadcast(Event{Type: "policies_updated", ConfigurationID: cfg.ID, At: time.Now().UTC()})
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// triggerSync fans the edit out immediately. On failure the dirty mark left
// by SaveConfiguration lets the reconciler retry.
func (s *Server) triggerSync(ctx context.Context, cfg platform.Configuration) {
	if s.sync == nil {
		return
	}
	if err := s.sync.Execute(ctx, cfg); err != nil {
		logging.Error(logComponent, "inline sync failed, leaving dirty", "configuration_id", cfg.ID, "error", err)
		return
	}
	if err := s.dir.ClearDirty(ctx, cfg.ID); err != nil {
		logging.Warn(logComponent, "clear dirty after sync", "configuration_id", cfg.ID, "error", err)
	}
}

func (s *Server) handleFetchPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid configuration id", nil)
		return
	}
	kind := policy.Kind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, policy.ErrUnknownKind.Error(), nil)
		return
	}
	cfg, err := s.dir.Configuration(r.Context(), id)
	if errors.Is(err, platform.ErrNotFound) {
		writeError(w, http.StatusNotFound, "configuration not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "configuration lookup failed", nil)
		return
	}
	res := policyengine.NewFetchService(cfg.Document, kind, r.PathValue("name")).Execute()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "policy": res.Policy})
}

func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (platform.Project, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id", nil)
		return platform.Project{}, false
	}
	project, err := s.dir.Project(r.Context(), id)
	if errors.Is(err, platform.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found", nil)
		return platform.Project{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "project lookup failed", nil)
		return platform.Project{}, false
	}
	return project, true
}

func (s *Server) handleDefaultBranchCheck(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	blocked, err := branchguard.NewDefaultBranchUpdationCheckService(s.dir, project, s.evalCtx).Execute(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "branch check failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked": blocked})
}

func (s *Server) handleForcePush(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	branches, err := branchguard.NewProtectedBranchesForcePushService(s.dir, project, s.evalCtx).Execute(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "branch check failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (s *Server) handleDeletable(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	candidates, err := s.dir.ProtectedBranches(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "protected branch lookup failed", nil)
		return
	}
	deletable, err := branchguard.NewProtectedBranchesDeletionCheckService(s.dir, project, s.evalCtx).Execute(r.Context(), candidates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "branch check failed", nil)
		return
	}
	if deletable == nil {
		deletable = []platform.ProtectedBranch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deletable": deletable})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := make(chan Event, 16)
	s.clientsMu.Lock()
	s.clients[conn] = ch
	s.clientsMu.Unlock()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, conn)
			s.clientsMu.Unlock()
			_ = conn.Close()
		}()
		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	// Reader loop only to detect close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.clientsMu.Lock()
				if c, ok := s.clients[conn]; ok {
					delete(s.clients, conn)
					close(c)
				}
				s.clientsMu.Unlock()
				return
			}
		}
	}()
}

// broadcast fans an event to every connected client. Slow clients drop
// events rather than blocking the sender.
func (s *Server) broadcast(ev Event) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, ch := range s.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}
