package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/client"
	"github.com/thehivegroup-ai/agentmesh/pkg/llm"
	"github.com/thehivegroup-ai/agentmesh/pkg/progress"
)

// Tool names exposed to the model.
const (
	toolListRepositories  = "list_repositories"
	toolRepositoryDetails = "get_repository_details"
	toolMapRelationships  = "map_relationships"
)

type listRepositoriesArgs struct {
	Organization string `json:"organization,omitempty"`
	Topic        string `json:"topic,omitempty"`
}

type repositoryDetailsArgs struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// toolDefinitions advertises the callable tools. The relationship tool
// only appears when its worker answered discovery.
func (o *Orchestrator) toolDefinitions() []llm.ToolDefinition {
	tools := []llm.ToolDefinition{
		{
			Name:        toolListRepositories,
			Description: "List known repositories, optionally filtered by organization or topic. Call with no arguments to list everything.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"organization": map[string]any{"type": "string", "description": "Filter by owning organization"},
					"topic":        map[string]any{"type": "string", "description": "Filter by topic label"},
				},
			},
		},
		{
			Name:        toolRepositoryDetails,
			Description: "Get the details of one repository: languages, branches, topics and dependencies.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owner": map[string]any{"type": "string"},
					"name":  map[string]any{"type": "string"},
				},
				"required": []string{"owner", "name"},
			},
		},
	}

	if o.relationshipAvailable() {
		tools = append(tools, llm.ToolDefinition{
			Name:        toolMapRelationships,
			Description: "Map the dependency relationships of one repository within the catalog.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owner": map[string]any{"type": "string"},
					"name":  map[string]any{"type": "string"},
				},
				"required": []string{"owner", "name"},
			},
		})
	}
	return tools
}

// toolResult is one executed tool call, kept for the final artifact.
type toolResult struct {
	Tool      string `json:"tool"`
	AgentType string `json:"agentType"`
	Answer    string `json:"answer"`
	Err       string `json:"error,omitempty"`
}

// executeToolCall maps a model tool call onto a worker invocation: the
// call is encoded as a text command, sent over A2A, and polled to
// completion.
func (o *Orchestrator) executeToolCall(ctx context.Context, call llm.ToolCall, conversationID, queryID string) toolResult {
	agent, cli, command, err := o.resolveToolCall(call)
	if err != nil {
		return toolResult{Tool: call.Name, AgentType: agent, Err: err.Error()}
	}

	o.bus.Publish(progress.Event{
		Type:           progress.EventAgentSpawned,
		ConversationID: conversationID,
		QueryID:        queryID,
		Data:           map[string]any{"agent": agent, "tool": call.Name},
	})

	answer, err := o.invokeWorker(ctx, agent, cli, command, conversationID, queryID)
	if err != nil {
		return toolResult{Tool: call.Name, AgentType: agent, Err: err.Error()}
	}
	return toolResult{Tool: call.Name, AgentType: agent, Answer: answer}
}

// resolveToolCall picks the worker and builds the command text.
func (o *Orchestrator) resolveToolCall(call llm.ToolCall) (agent string, cli *client.Client, command string, err error) {
	switch call.Name {
	case toolListRepositories:
		var args listRepositoriesArgs
		if len(call.Arguments) > 0 {
			if uerr := json.Unmarshal(call.Arguments, &args); uerr != nil {
				return "discovery", nil, "", fmt.Errorf("bad %s arguments: %w", call.Name, uerr)
			}
		}
		command = "discover repositories"
		if args.Organization != "" {
			command += " in " + args.Organization
		}
		if args.Topic != "" {
			command += " topic: " + args.Topic
		}
		return "discovery", o.discovery, command, nil

	case toolRepositoryDetails:
		var args repositoryDetailsArgs
		if uerr := json.Unmarshal(call.Arguments, &args); uerr != nil {
			return "analysis", nil, "", fmt.Errorf("bad %s arguments: %w", call.Name, uerr)
		}
		if args.Owner == "" || args.Name == "" {
			return "analysis", nil, "", fmt.Errorf("%s requires owner and name", call.Name)
		}
		return "analysis", o.analysis, fmt.Sprintf("analyze repository: %s/%s", args.Owner, args.Name), nil

	case toolMapRelationships:
		if !o.relationshipAvailable() {
			return "relationship", nil, "", fmt.Errorf("relationship worker is unavailable")
		}
		var args repositoryDetailsArgs
		if uerr := json.Unmarshal(call.Arguments, &args); uerr != nil {
			return "relationship", nil, "", fmt.Errorf("bad %s arguments: %w", call.Name, uerr)
		}
		if args.Owner == "" || args.Name == "" {
			return "relationship", nil, "", fmt.Errorf("%s requires owner and name", call.Name)
		}
		return "relationship", o.relationship, fmt.Sprintf("map relationships: %s/%s", args.Owner, args.Name), nil

	default:
		return "", nil, "", fmt.Errorf("unknown tool: %s", call.Name)
	}
}

// invokeWorker sends the command as a user message and drives the
// resulting task to completion, returning the worker's answer text.
func (o *Orchestrator) invokeWorker(ctx context.Context, agent string, cli *client.Client, command, conversationID, queryID string) (string, error) {
	msg := a2a.NewTextMessage(a2a.MessageRoleUser, command)
	msg.ContextID = conversationID

	sendCtx, cancel := context.WithTimeout(ctx, o.rpcDeadline)
	sent, err := cli.SendMessage(sendCtx, a2a.MessageSendParams{Message: msg, ContextID: conversationID})
	cancel()
	if err != nil {
		return "", fmt.Errorf("failed to reach %s worker: %w", agent, err)
	}

	o.bus.Publish(progress.Event{
		Type:           progress.EventTaskCreated,
		ConversationID: conversationID,
		QueryID:        queryID,
		Data: map[string]any{
			"taskId": sent.Task.ID,
			"agent":  agent,
		},
	})

	done, err := o.pollUntilDone(ctx, agent, cli, sent.Task.ID, conversationID, queryID)
	if err != nil {
		return "", err
	}
	return workerAnswer(done), nil
}

// workerAnswer extracts the answer from a completed task: the decoded
// result artifact when present, else the final status message.
func workerAnswer(t *a2a.Task) string {
	for _, artifact := range t.Artifacts {
		raw, err := a2a.DecodeArtifact(artifact)
		if err != nil {
			continue
		}
		var result struct {
			Answer string `json:"answer"`
		}
		if json.Unmarshal(raw, &result) == nil && result.Answer != "" {
			return result.Answer
		}
		return strings.TrimSpace(string(raw))
	}
	return t.Status.Message
}
