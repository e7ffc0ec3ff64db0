// Package orchestrator is the supervisor of the platform: it decomposes
// a user query into worker invocations using an LLM with tool calling,
// drives each worker task to completion over A2A, and reports progress
// on the fan-out bus.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/client"
	"github.com/thehivegroup-ai/agentmesh/pkg/checkpoint"
	"github.com/thehivegroup-ai/agentmesh/pkg/llm"
	"github.com/thehivegroup-ai/agentmesh/pkg/progress"
)

const systemPrompt = `You are the orchestrator of a repository intelligence platform.
You answer questions about a catalog of source repositories by calling tools.
For generic questions about what exists, call list_repositories with no arguments.
Use get_repository_details only when the user asks about one specific repository.
Answer concisely from tool results; never invent repositories.`

// MessageSink persists conversation turns. The façade's conversation
// store implements it.
type MessageSink interface {
	AppendMessage(ctx context.Context, conversationID, role, content string) error
}

// Config tunes the orchestrator's supervision loop.
type Config struct {
	PollInterval time.Duration
	StaleAfter   time.Duration
	RPCDeadline  time.Duration
}

// Result is what ProcessQuery resolves to and what the final artifact
// carries.
type Result struct {
	SessionID string        `json:"sessionId"`
	Status    string        `json:"status"`
	Answer    string        `json:"answer"`
	Results   []AgentResult `json:"results"`
}

// AgentResult groups tool outcomes per worker agent.
type AgentResult struct {
	AgentType string          `json:"agentType"`
	Data      AgentResultData `json:"data"`
}

// AgentResultData is one agent's contribution.
type AgentResultData struct {
	Answer    string       `json:"answer"`
	ToolCalls []toolResult `json:"toolCalls"`
}

// Orchestrator supervises worker agents.
type Orchestrator struct {
	provider     llm.Provider
	discovery    *client.Client
	analysis     *client.Client
	relationship *client.Client
	bus          *progress.Bus
	checkpoints  *checkpoint.Manager
	sink         MessageSink
	logger       *slog.Logger

	pollInterval time.Duration
	staleAfter   time.Duration
	rpcDeadline  time.Duration

	mu             sync.RWMutex
	relationshipOK bool
}

// New wires the orchestrator. relationship may be nil when the worker is
// not deployed.
func New(provider llm.Provider, discovery, analysis, relationship *client.Client,
	bus *progress.Bus, checkpoints *checkpoint.Manager, sink MessageSink,
	cfg Config, logger *slog.Logger) *Orchestrator {

	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.RPCDeadline == 0 {
		cfg.RPCDeadline = 5 * time.Minute
	}
	if checkpoints == nil {
		checkpoints = checkpoint.NewManager(nil, logger)
	}

	return &Orchestrator{
		provider:     provider,
		discovery:    discovery,
		analysis:     analysis,
		relationship: relationship,
		bus:          bus,
		checkpoints:  checkpoints,
		sink:         sink,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		staleAfter:   cfg.StaleAfter,
		rpcDeadline:  cfg.RPCDeadline,
	}
}

// DiscoverWorkers fetches the worker agent cards. Discovery and analysis
// are required; the relationship worker is optional and its absence
// merely degrades output.
func (o *Orchestrator) DiscoverWorkers(ctx context.Context) error {
	for _, required := range []struct {
		name string
		cli  *client.Client
	}{
		{"discovery", o.discovery},
		{"analysis", o.analysis},
	} {
		card, err := required.cli.GetAgentCard(ctx, false)
		if err != nil {
			return fmt.Errorf("required worker %s is unreachable: %w", required.name, err)
		}
		o.logger.Info("worker discovered", "agent", required.name, "card", card.Name, "url", required.cli.BaseURL())
	}

	if o.relationship == nil {
		o.logger.Warn("relationship worker not configured, graph output degraded")
		return nil
	}
	if _, err := o.relationship.GetAgentCard(ctx, false); err != nil {
		o.logger.Warn("relationship worker unreachable, graph output degraded",
			"url", o.relationship.BaseURL(), "error", err)
		return nil
	}

	o.mu.Lock()
	o.relationshipOK = true
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) relationshipAvailable() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.relationshipOK && o.relationship != nil
}

// ProcessQuery runs one orchestration session end to end and returns
// the final result. Progress streams to the bus under threadID; the
// final artifact rides the query:completed event as a data: URI.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, userID, threadID string) (*Result, error) {
	sessionID := uuid.New().String()
	queryID := sessionID

	state := &checkpoint.State{
		SessionID: sessionID,
		QueryID:   queryID,
		UserID:    userID,
		Query:     query,
		Phase:     checkpoint.PhaseStarted,
	}
	o.checkpoints.Save(ctx, state)

	o.bus.Publish(progress.Event{
		Type:           progress.EventQueryProgress,
		ConversationID: threadID,
		QueryID:        queryID,
		Data:           map[string]any{"progress": 0},
	})

	result, err := o.runSession(ctx, state, query, threadID, queryID)
	if err != nil {
		state.Phase = checkpoint.PhaseFailed
		o.checkpoints.Save(ctx, state)
		o.bus.Publish(progress.Event{
			Type:           progress.EventError,
			ConversationID: threadID,
			QueryID:        queryID,
			Data:           map[string]any{"error": err.Error()},
		})
		// Every session ends with a terminal query:completed, success
		// or not, so subscribers never wait on a dead query.
		o.bus.Publish(progress.Event{
			Type:           progress.EventQueryCompleted,
			ConversationID: threadID,
			QueryID:        queryID,
			Data:           map[string]any{"status": "failed", "error": err.Error()},
		})
		return nil, err
	}

	state.Phase = checkpoint.PhaseCompleted
	o.checkpoints.Save(ctx, state)
	o.checkpoints.Clear(ctx, sessionID)
	return result, nil
}

func (o *Orchestrator) runSession(ctx context.Context, state *checkpoint.State, query, threadID, queryID string) (*Result, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: query},
	}

	completion, err := o.provider.Chat(ctx, messages, o.toolDefinitions())
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	var executed []toolResult
	if len(completion.ToolCalls) > 0 {
		state.Phase = checkpoint.PhaseToolCalls
		o.checkpoints.Save(ctx, state)

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			tr := o.executeToolCall(ctx, call, threadID, queryID)
			executed = append(executed, tr)

			state.ToolResults = append(state.ToolResults, checkpoint.ToolResult{
				Tool:   tr.Tool,
				Answer: tr.Answer,
				Err:    tr.Err,
			})
			o.checkpoints.Save(ctx, state)

			content := tr.Answer
			if tr.Err != "" {
				content = "error: " + tr.Err
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			})

			o.bus.Publish(progress.Event{
				Type:           progress.EventAgentMessage,
				ConversationID: threadID,
				QueryID:        queryID,
				Data: map[string]any{
					"agent":   tr.AgentType,
					"message": content,
				},
			})
		}

		state.Phase = checkpoint.PhaseSynthesis
		o.checkpoints.Save(ctx, state)

		completion, err = o.provider.Chat(ctx, messages, nil)
		if err != nil {
			return nil, fmt.Errorf("llm synthesis failed: %w", err)
		}
	}

	answer := completion.Content
	if answer == "" {
		answer = "No answer produced."
	}

	result := &Result{
		SessionID: state.SessionID,
		Status:    "completed",
		Answer:    answer,
		Results:   sessionResults(answer, executed),
	}

	// The conversation record must already hold the answer when clients
	// react to query:completed.
	if o.sink != nil {
		if err := o.sink.AppendMessage(ctx, threadID, "assistant", answer); err != nil {
			o.logger.Warn("failed to persist assistant message", "conversation_id", threadID, "error", err)
		}
	}

	artifact, err := a2a.EncodeJSONArtifact("query-result", result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result artifact: %w", err)
	}
	o.bus.Publish(progress.Event{
		Type:           progress.EventQueryCompleted,
		ConversationID: threadID,
		QueryID:        queryID,
		Data: map[string]any{
			"status":   "completed",
			"progress": 100,
			"answer":   answer,
			"artifact": artifact,
		},
	})

	return result, nil
}

// sessionResults shapes the final result list: the supervising llm
// agent leads with the synthesized answer and the full tool-call list,
// followed by one section per worker that contributed.
func sessionResults(answer string, executed []toolResult) []AgentResult {
	if len(executed) == 0 {
		return nil
	}
	out := []AgentResult{{
		AgentType: "llm",
		Data:      AgentResultData{Answer: answer, ToolCalls: executed},
	}}
	return append(out, groupByAgent(executed)...)
}

// groupByAgent folds tool results into per-agent sections.
func groupByAgent(results []toolResult) []AgentResult {
	grouped := make(map[string]*AgentResultData)
	var order []string

	for _, tr := range results {
		data, ok := grouped[tr.AgentType]
		if !ok {
			data = &AgentResultData{}
			grouped[tr.AgentType] = data
			order = append(order, tr.AgentType)
		}
		data.ToolCalls = append(data.ToolCalls, tr)
		if tr.Answer != "" {
			if data.Answer != "" {
				data.Answer += "\n"
			}
			data.Answer += tr.Answer
		}
	}

	out := make([]AgentResult, 0, len(order))
	for _, agent := range order {
		out = append(out, AgentResult{AgentType: agent, Data: *grouped[agent]})
	}
	return out
}
