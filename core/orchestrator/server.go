package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lendcore/lendcore/core/application"
	"github.com/lendcore/lendcore/core/infra/bus"
	"github.com/lendcore/lendcore/core/infra/logging"
	"github.com/lendcore/lendcore/core/infra/metrics"
	"github.com/lendcore/lendcore/core/workflow"
)

// Server exposes the orchestrator over HTTP: application intake, execution
// control, status queries, metrics, and a websocket event feed.
type Server struct {
	orch      *Orchestrator
	retention time.Duration

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

// NewServer wires a server around an orchestrator. The retention window is
// the default for cleanup requests that do not carry their own.
func NewServer(orch *Orchestrator, retention time.Duration) *Server {
	s := &Server{
		orch:      orch,
		retention: retention,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
	orch.Listen(s.broadcast)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/applications", s.handleSubmit)
	mux.HandleFunc("GET /v1/executions", s.handleList)
	mux.HandleFunc("GET /v1/executions/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /v1/executions/{id}/decision", s.handleDecision)
	mux.HandleFunc("POST /v1/executions/{id}/cancel", s.handleControl("cancel"))
	mux.HandleFunc("POST /v1/executions/{id}/pause", s.handleControl("pause"))
	mux.HandleFunc("POST /v1/executions/{id}/resume", s.handleControl("resume"))
	mux.HandleFunc("POST /v1/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

type submitRequest struct {
	Application *application.Application `json:"application"`
	WorkflowID  string                   `json:"workflow_id,omitempty"`
	ExecutionID string                   `json:"execution_id,omitempty"`
}

type submitResponse struct {
	ExecutionID string                   `json:"execution_id"`
	WorkflowID  string                   `json:"workflow_id"`
	Status      workflow.ExecutionStatus `json:"status"`
	Decision    any                      `json:"decision"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Application == nil {
		writeError(w, http.StatusBadRequest, "application is required")
		return
	}
	ex, dec, err := s.orch.ProcessApplication(r.Context(), req.Application, req.WorkflowID, req.ExecutionID)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrWorkflowNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		ExecutionID: ex.ID,
		WorkflowID:  ex.WorkflowID,
		Status:      ex.CurrentStatus(),
		Decision:    dec,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := workflow.ExecutionStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": s.orch.ListExecutions(status),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.orch.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	dec, ok := s.orch.Decision(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no decision for execution")
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var ok bool
		switch action {
		case "cancel":
			ok = s.orch.Cancel(id)
		case "pause":
			ok = s.orch.Pause(id)
		case "resume":
			ok = s.orch.Resume(id)
		}
		if !ok {
			writeError(w, http.StatusConflict, "execution not in a state that allows "+action)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"execution_id": id, "action": action})
	}
}

type cleanupRequest struct {
	OlderThan string `json:"older_than,omitempty"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	olderThan := s.retention
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.OlderThan != "" {
		d, perr := time.ParseDuration(req.OlderThan)
		if perr != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "older_than must be a positive duration")
			return
		}
		olderThan = d
	}
	removed, err := s.orch.Cleanup(r.Context(), olderThan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "older_than": olderThan.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// wireEvent is the JSON frame sent to websocket subscribers.
type wireEvent struct {
	Subject string    `json:"subject"`
	Event   bus.Event `json:"event"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(component, "websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	logging.Info(component, "event subscriber connected", "remote", conn.RemoteAddr().String())

	// Reader loop only services control frames; drop the client on error.
	go func() {
		defer s.dropClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(c *wsClient) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if present {
		_ = c.conn.Close()
	}
}

// broadcast fans a lifecycle event out to every websocket subscriber.
func (s *Server) broadcast(subject string, evt bus.Event) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		if err := c.send(wireEvent{Subject: subject, Event: evt}); err != nil {
			s.dropClient(c)
		}
	}
}

// Shutdown closes all websocket subscribers.
func (s *Server) Shutdown(context.Context) error {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*wsClient]struct{})
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn(component, "response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
