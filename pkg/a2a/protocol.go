// Package a2a defines the Agent-to-Agent (A2A) wire schema: tasks,
// messages, artifacts, agent cards and the JSON-RPC 2.0 envelopes that
// carry them between agents.
package a2a

import (
	"time"
)

// ProtocolVersion is the A2A protocol version advertised on every agent card.
const ProtocolVersion = "0.3.0"

// ============================================================================
// TASK - Unit of Work
// ============================================================================

// TaskState represents the state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateUnknown       TaskState = "unknown"
)

// IsTerminal returns whether this state admits no further transitions.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// IsPending returns whether this state is waiting on an external party.
func (s TaskState) IsPending() bool {
	switch s {
	case TaskStateInputRequired, TaskStateAuthRequired:
		return true
	}
	return false
}

// TaskStatus is one entry of a task's status history.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Task is the unit of work offered across the A2A boundary.
//
// Invariants: History holds at least one entry, History[len-1] equals
// Status, and a terminal Status.State is never followed by another
// transition.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []TaskStatus   `json:"history"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ============================================================================
// MESSAGE - One Turn of A2A Conversation
// ============================================================================

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser   MessageRole = "user"
	MessageRoleAgent  MessageRole = "agent"
	MessageRoleSystem MessageRole = "system"
)

// Message is one turn of an A2A conversation.
type Message struct {
	MessageID string         `json:"messageId,omitempty"`
	Role      MessageRole    `json:"role"`
	Parts     []Part         `json:"parts"`
	TaskID    string         `json:"taskId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ============================================================================
// ARTIFACT - Produced Result
// ============================================================================

// Artifact is a result produced by a task, inline or by reference.
// Exactly one of Data and URI is populated; inline JSON travels as a
// data: URI on the wire when the artifact leaves the producing agent.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	Data       any    `json:"data,omitempty"`
	URI        string `json:"uri,omitempty"`
}

// ============================================================================
// AGENT CARD - Discovery & Capability Advertisement
// ============================================================================

// AgentCard is an agent's self-description, served at
// /.well-known/agent-card.json.
type AgentCard struct {
	ProtocolVersion string            `json:"protocolVersion"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	URL             string            `json:"url"`
	Transports      []AgentTransport  `json:"transports"`
	Capabilities    AgentCapabilities `json:"capabilities"`
	InputModes      []string          `json:"inputModes"`
	OutputModes     []string          `json:"outputModes"`
	Skills          []AgentSkill      `json:"skills,omitempty"`
	Provider        *AgentProvider    `json:"provider,omitempty"`
}

// AgentTransport declares one way of reaching the agent.
type AgentTransport struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Protocol string `json:"protocol"`
}

// AgentCapabilities describes optional protocol features.
type AgentCapabilities struct {
	Streaming  bool `json:"streaming"`
	MultiModal bool `json:"multiModal"`
}

// AgentSkill describes a specific capability the agent offers.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentProvider identifies who operates the agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// ============================================================================
// RPC METHOD PARAMETERS & RESULTS
// ============================================================================

// RPC method names served by every agent.
const (
	MethodMessageSend = "message/send"
	MethodTasksGet    = "tasks/get"
	MethodTasksCancel = "tasks/cancel"
	MethodTasksList   = "tasks/list"
)

// Methods lists the RPC methods in the order they are advertised.
func Methods() []string {
	return []string{MethodMessageSend, MethodTasksGet, MethodTasksCancel, MethodTasksList}
}

// MessageSendParams are the parameters of message/send.
type MessageSendParams struct {
	Message   Message        `json:"message"`
	TaskID    string         `json:"taskId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MessageSendResult is the result of message/send.
type MessageSendResult struct {
	Task      *Task  `json:"task"`
	MessageID string `json:"messageId"`
}

// TaskQueryParams are the parameters of tasks/get.
type TaskQueryParams struct {
	TaskID string `json:"taskId"`
}

// TaskCancelParams are the parameters of tasks/cancel.
type TaskCancelParams struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason,omitempty"`
}

// TaskResult wraps a single task returned by tasks/get and tasks/cancel.
type TaskResult struct {
	Task *Task `json:"task"`
}

// TaskListParams are the parameters of tasks/list.
type TaskListParams struct {
	ContextID string `json:"contextId,omitempty"`
}

// TaskListResult is the result of tasks/list.
type TaskListResult struct {
	Tasks []*Task `json:"tasks"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Transport string   `json:"transport"`
	Methods   []string `json:"methods"`
}
