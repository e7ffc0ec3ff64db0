package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thehivegroup-ai/agentmesh/pkg/router"
)

// defaultCoordinationDeadline bounds a legacy coordination round before
// the cancel broadcast goes out.
const defaultCoordinationDeadline = 5 * time.Minute

// Coordinator is the pre-A2A supervision path: agents live in the same
// process and coordinate over the router instead of HTTP. It resolves
// to the same Result shape as ProcessQuery.
type Coordinator struct {
	router   *router.Router
	deadline time.Duration
	logger   *slog.Logger

	responses <-chan router.Message
}

// NewCoordinator creates a coordinator over the router.
func NewCoordinator(r *router.Router, deadline time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if deadline == 0 {
		deadline = defaultCoordinationDeadline
	}
	return &Coordinator{
		router:    r,
		deadline:  deadline,
		logger:    logger,
		responses: r.Subscribe(router.TypeResponse),
	}
}

// Run fans the query out to the expected agents and collects one
// response from each. Hitting the deadline broadcasts a cancel command
// and returns the partial result.
func (c *Coordinator) Run(ctx context.Context, query string, expectedAgents []string) (*Result, error) {
	if len(expectedAgents) == 0 {
		return nil, fmt.Errorf("no agents to coordinate")
	}

	sessionID := uuid.New().String()
	pending := make(map[string]string, len(expectedAgents))

	for _, agent := range expectedAgents {
		requestID := uuid.New().String()
		pending[requestID] = agent

		err := c.router.Publish(agent, router.Message{
			Type: router.TypeRequest,
			From: "orchestrator",
			Request: &router.Request{
				ID:     requestID,
				Action: "query",
				Params: map[string]any{"query": query, "sessionId": sessionID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to dispatch to %s: %w", agent, err)
		}
	}

	timeout := time.NewTimer(c.deadline)
	defer timeout.Stop()

	collected := make(map[string]toolResult)
	for len(collected) < len(expectedAgents) {
		select {
		case <-ctx.Done():
			c.cancelOutstanding("context canceled")
			return nil, ctx.Err()

		case <-timeout.C:
			c.cancelOutstanding("coordination deadline exceeded")
			return c.partialResult(sessionID, expectedAgents, collected), nil

		case msg, ok := <-c.responses:
			if !ok {
				return nil, fmt.Errorf("router closed during coordination")
			}
			if msg.Response == nil {
				continue
			}
			agent, mine := pending[msg.Response.RequestID]
			if !mine {
				continue
			}
			delete(pending, msg.Response.RequestID)

			tr := toolResult{Tool: "query", AgentType: agent}
			if msg.Response.Err != "" {
				tr.Err = msg.Response.Err
			} else {
				tr.Answer = fmt.Sprintf("%v", msg.Response.Result)
			}
			collected[agent] = tr
		}
	}

	return c.assembleResult(sessionID, "completed", expectedAgents, collected), nil
}

// cancelOutstanding tells every agent to drop in-flight work.
func (c *Coordinator) cancelOutstanding(reason string) {
	c.logger.Warn("broadcasting cancel to all agents", "reason", reason)
	c.router.Broadcast("orchestrator", router.Command{
		Action: router.ActionCancel,
		Reason: reason,
	})
}

func (c *Coordinator) partialResult(sessionID string, expected []string, collected map[string]toolResult) *Result {
	for _, agent := range expected {
		if _, ok := collected[agent]; !ok {
			collected[agent] = toolResult{
				Tool:      "query",
				AgentType: agent,
				Err:       staleMessage,
			}
		}
	}
	return c.assembleResult(sessionID, "timeout", expected, collected)
}

func (c *Coordinator) assembleResult(sessionID, status string, expected []string, collected map[string]toolResult) *Result {
	var results []toolResult
	var answer string
	for _, agent := range expected {
		tr := collected[agent]
		results = append(results, tr)
		if tr.Answer != "" {
			if answer != "" {
				answer += "\n"
			}
			answer += tr.Answer
		}
	}

	return &Result{
		SessionID: sessionID,
		Status:    status,
		Answer:    answer,
		Results:   groupByAgent(results),
	}
}
