// Package server exposes an agent over the A2A JSON-RPC 2.0 transport.
//
// Every agent serves three surfaces from one listener: the JSON-RPC
// endpoint at the base URL, the agent card at
// /.well-known/agent-card.json, and a health probe at /health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/task"
)

// Service is the agent behind the transport.
type Service interface {
	SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.MessageSendResult, error)
	GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error)
	CancelTask(ctx context.Context, params a2a.TaskCancelParams) (*a2a.Task, error)
	ListTasks(ctx context.Context, params a2a.TaskListParams) ([]*a2a.Task, error)
}

// Config configures the transport server.
type Config struct {
	Addr string
}

// Server is the A2A transport server for one agent.
type Server struct {
	config     Config
	card       a2a.AgentCard
	service    Service
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server for the given card and service.
func New(cfg Config, card a2a.AgentCard, service Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		card:    card,
		service: service,
		logger:  logger,
	}
}

// Handler builds the HTTP handler. Useful for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/.well-known/agent-card.json", s.handleAgentCard)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handleJSONRPC)
	r.Post("/rpc", s.handleJSONRPC)

	return r
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Handler(),
	}

	s.logger.Info("a2a server starting", "addr", s.config.Addr, "agent", s.card.Name)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("a2a server failed: %w", err)
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

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.card)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a2a.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Transport: "json-rpc-2.0",
		Methods:   a2a.Methods(),
	})
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest,
			a2a.NewErrorResponse(nil, a2a.CodeParseError, "failed to read request body"))
		return
	}
	defer r.Body.Close()

	var rpcReq a2a.Request
	if err := json.Unmarshal(body, &rpcReq); err != nil {
		// Malformed JSON is a protocol-level failure, not a JSON-RPC one.
		s.writeResponse(w, http.StatusBadRequest,
			a2a.NewErrorResponse(nil, a2a.CodeParseError, "invalid JSON"))
		return
	}

	if rpcReq.JSONRPC != a2a.JSONRPCVersion || rpcReq.Method == "" {
		s.writeResponse(w, http.StatusOK,
			a2a.NewErrorResponse(rpcReq.ID, a2a.CodeInvalidRequest, "invalid JSON-RPC request"))
		return
	}

	s.logger.Debug("rpc request", "method", rpcReq.Method, "id", rpcReq.ID)

	result, rpcErr := s.dispatch(r.Context(), rpcReq.Method, rpcReq.Params)
	if rpcErr != nil {
		s.writeResponse(w, http.StatusOK, &a2a.Response{
			JSONRPC: a2a.JSONRPCVersion,
			ID:      rpcReq.ID,
			Error:   rpcErr,
		})
		return
	}

	resp, err := a2a.NewResponse(rpcReq.ID, result)
	if err != nil {
		s.writeResponse(w, http.StatusOK,
			a2a.NewErrorResponse(rpcReq.ID, a2a.CodeInternalError, err.Error()))
		return
	}
	s.writeResponse(w, http.StatusOK, resp)
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *a2a.RPCError) {
	switch method {
	case a2a.MethodMessageSend:
		var p a2a.MessageSendParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &a2a.RPCError{Code: a2a.CodeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		if len(p.Message.Parts) == 0 {
			return nil, &a2a.RPCError{
				Code:    a2a.CodeBadMessageFormat,
				Message: "message has no parts",
				Data:    map[string]any{"code": a2a.ErrCodeBadMessageFormat},
			}
		}
		result, err := s.service.SendMessage(ctx, p)
		if err != nil {
			return nil, rpcErrorFor(err)
		}
		return result, nil

	case a2a.MethodTasksGet:
		var p a2a.TaskQueryParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &a2a.RPCError{Code: a2a.CodeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		t, err := s.service.GetTask(ctx, p)
		if err != nil {
			return nil, rpcErrorFor(err)
		}
		return a2a.TaskResult{Task: t}, nil

	case a2a.MethodTasksCancel:
		var p a2a.TaskCancelParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &a2a.RPCError{Code: a2a.CodeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		t, err := s.service.CancelTask(ctx, p)
		if err != nil {
			return nil, rpcErrorFor(err)
		}
		return a2a.TaskResult{Task: t}, nil

	case a2a.MethodTasksList:
		var p a2a.TaskListParams
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, &a2a.RPCError{Code: a2a.CodeInvalidParams, Message: "invalid params: " + err.Error()}
			}
		}
		tasks, err := s.service.ListTasks(ctx, p)
		if err != nil {
			return nil, rpcErrorFor(err)
		}
		return a2a.TaskListResult{Tasks: tasks}, nil

	default:
		return nil, &a2a.RPCError{Code: a2a.CodeMethodNotFound, Message: "method not found: " + method}
	}
}

// rpcErrorFor maps domain errors onto wire-level codes. Unknown task ids
// keep the legacy -32602 mapping.
func rpcErrorFor(err error) *a2a.RPCError {
	var taskErr *task.Error
	if errors.As(err, &taskErr) {
		code := a2a.CodeInternalError
		switch taskErr.Code {
		case a2a.ErrCodeTaskNotFound:
			code = a2a.CodeTaskNotFound
		case a2a.ErrCodeTaskNotCancelable:
			code = a2a.CodeTaskNotCancelable
		case a2a.ErrCodeTaskAlreadyDone:
			code = a2a.CodeTaskAlreadyDone
		case a2a.ErrCodeBadMessageFormat:
			code = a2a.CodeBadMessageFormat
		}
		return &a2a.RPCError{
			Code:    code,
			Message: taskErr.Message,
			Data:    map[string]any{"code": taskErr.Code},
		}
	}
	return &a2a.RPCError{Code: a2a.CodeInternalError, Message: err.Error()}
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, resp *a2a.Response) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
