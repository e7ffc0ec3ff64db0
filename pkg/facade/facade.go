// Package facade is the platform's client-facing surface: a small HTTP
// API that accepts queries, reports their progress, serves conversation
// history and streams live events over WebSocket.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thehivegroup-ai/agentmesh/pkg/orchestrator"
	"github.com/thehivegroup-ai/agentmesh/pkg/progress"
)

// Query statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Query is one accepted user query and its lifecycle.
type Query struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversationId"`
	User           string               `json:"user"`
	Text           string               `json:"text"`
	Status         string               `json:"status"`
	Progress       int                  `json:"progress"`
	Result         *orchestrator.Result `json:"result,omitempty"`
	Error          string               `json:"error,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// QueryRunner runs one orchestration session. *orchestrator.Orchestrator
// implements it.
type QueryRunner interface {
	ProcessQuery(ctx context.Context, query, userID, threadID string) (*orchestrator.Result, error)
}

// Server is the façade HTTP server.
type Server struct {
	runner        QueryRunner
	conversations ConversationStore
	bus           *progress.Bus
	gateway       *progress.Gateway
	logger        *slog.Logger

	mu      sync.RWMutex
	queries map[string]*Query

	httpServer *http.Server
}

// New wires the façade.
func New(runner QueryRunner, conversations ConversationStore, bus *progress.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if conversations == nil {
		conversations = NewMemoryConversationStore()
	}
	return &Server{
		runner:        runner,
		conversations: conversations,
		bus:           bus,
		gateway:       progress.NewGateway(bus, logger),
		logger:        logger,
		queries:       make(map[string]*Query),
	}
}

// Conversations exposes the store, for wiring it as the orchestrator's
// message sink.
func (s *Server) Conversations() ConversationStore {
	return s.conversations
}

// Handler builds the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/queries", s.handleCreateQuery)
	r.Get("/api/queries/{queryID}", s.handleGetQuery)
	r.Get("/api/conversations/{conversationID}/messages", s.handleMessages)
	r.Get("/ws", s.gateway.ServeHTTP)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Start runs the server until shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	s.logger.Info("facade starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("facade server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type createQueryRequest struct {
	Username       string `json:"username"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type createQueryResponse struct {
	QueryID        string `json:"queryId"`
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
}

// handleCreateQuery accepts a query and starts the orchestration
// asynchronously. The client follows progress over /ws or by polling
// GET /api/queries/{id}.
func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Username == "" {
		req.Username = "anonymous"
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	query := &Query{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		User:           req.Username,
		Text:           req.Message,
		Status:         StatusProcessing,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.queries[query.ID] = query
	s.mu.Unlock()

	if err := s.conversations.AppendMessage(r.Context(), conversationID, "user", req.Message); err != nil {
		s.logger.Warn("failed to persist user message", "conversation_id", conversationID, "error", err)
	}

	go s.runQuery(query.ID, conversationID, req.Username, req.Message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(createQueryResponse{
		QueryID:        query.ID,
		ConversationID: conversationID,
		Status:         StatusProcessing,
	})
}

// runQuery drives the orchestrator and mirrors its progress events into
// the stored query record.
func (s *Server) runQuery(queryID, conversationID, username, text string) {
	ctx := context.Background()

	sub := s.bus.Join(conversationID)
	defer s.bus.Leave(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub.C {
			if event.Type != progress.EventQueryProgress {
				continue
			}
			data, ok := event.Data.(map[string]any)
			if !ok {
				continue
			}
			if percent, ok := data["progress"].(int); ok {
				s.updateQuery(queryID, func(q *Query) {
					if percent > q.Progress {
						q.Progress = percent
					}
				})
			}
		}
	}()

	result, err := s.runner.ProcessQuery(ctx, text, username, conversationID)

	s.bus.Leave(sub)
	<-done

	if err != nil {
		s.logger.Error("query failed", "query_id", queryID, "error", err)
		s.updateQuery(queryID, func(q *Query) {
			q.Status = StatusFailed
			q.Error = err.Error()
		})
		return
	}

	s.updateQuery(queryID, func(q *Query) {
		q.Status = StatusCompleted
		q.Progress = 100
		q.Result = result
	})
}

func (s *Server) updateQuery(queryID string, mutate func(*Query)) {
	s.mu.Lock()
	if q, ok := s.queries[queryID]; ok {
		mutate(q)
		q.UpdatedAt = time.Now().UTC()
	}
	s.mu.Unlock()
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")

	s.mu.RLock()
	q, ok := s.queries[queryID]
	var snapshot Query
	if ok {
		snapshot = *q
	}
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	messages, err := s.conversations.Messages(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []ConversationMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"conversationId": conversationID,
		"messages":       messages,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
