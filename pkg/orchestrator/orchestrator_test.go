package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/client"
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/server"
	"github.com/thehivegroup-ai/agentmesh/pkg/checkpoint"
	"github.com/thehivegroup-ai/agentmesh/pkg/executor"
	"github.com/thehivegroup-ai/agentmesh/pkg/llm"
	"github.com/thehivegroup-ai/agentmesh/pkg/progress"
	"github.com/thehivegroup-ai/agentmesh/pkg/task"
	"github.com/thehivegroup-ai/agentmesh/pkg/worker"
)

// scriptedLLM replays canned completions.
type scriptedLLM struct {
	mu     sync.Mutex
	script []*llm.Completion
	calls  [][]llm.Message
}

func (s *scriptedLLM) Chat(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messages)
	if len(s.script) == 0 {
		return nil, fmt.Errorf("scripted llm exhausted")
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next, nil
}

// memorySink records persisted conversation turns.
type memorySink struct {
	mu       sync.Mutex
	messages []string
}

func (s *memorySink) AppendMessage(_ context.Context, conversationID, role, content string) error {
	s.mu.Lock()
	s.messages = append(s.messages, role+": "+content)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// startWorker serves a real worker behind the A2A transport.
func startWorker(t *testing.T, w worker.Worker) *client.Client {
	t.Helper()
	exec := executor.New(w, task.NewManager(task.NewMemoryStore(), nil), nil)
	t.Cleanup(exec.Close)

	srv := server.New(server.Config{}, w.Card("http://localhost:0"), exec, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cli := client.New(ts.URL, client.WithRetry(1, time.Millisecond))
	t.Cleanup(cli.Close)
	return cli
}

func fastConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
		StaleAfter:   time.Second,
		RPCDeadline:  5 * time.Second,
	}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestProcessQueryHappyPath(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	discovery := startWorker(t, worker.NewDiscovery(catalog))
	analysis := startWorker(t, worker.NewAnalysis(catalog))

	provider := &scriptedLLM{script: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{toolCall("call_1", toolListRepositories, `{}`)}},
		{Content: "The catalog holds four repositories."},
	}}

	bus := progress.NewBus(nil)
	sub := bus.Join("conv-1")
	defer bus.Leave(sub)

	sink := &memorySink{}
	o := New(provider, discovery, analysis, nil, bus,
		checkpoint.NewManager(checkpoint.NewMemoryStorage(), nil), sink, fastConfig(), nil)
	require.NoError(t, o.DiscoverWorkers(context.Background()))

	result, err := o.ProcessQuery(context.Background(), "what repositories exist?", "alice", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "The catalog holds four repositories.", result.Answer)
	// The llm agent leads with the synthesized answer and the tool-call
	// list; the contributing worker follows.
	require.Len(t, result.Results, 2)
	assert.Equal(t, "llm", result.Results[0].AgentType)
	assert.Equal(t, result.Answer, result.Results[0].Data.Answer)
	require.Len(t, result.Results[0].Data.ToolCalls, 1)
	assert.Equal(t, toolListRepositories, result.Results[0].Data.ToolCalls[0].Tool)
	assert.Equal(t, "discovery", result.Results[1].AgentType)
	assert.Contains(t, result.Results[1].Data.Answer, "cortside/coeus")

	// Drain events: progress is monotonic until completion, and
	// query:completed carries a decodable artifact; the assistant
	// message was persisted before the event fired.
	lastProgress := -1
	sawCompleted := false
	deadline := time.After(3 * time.Second)
	for !sawCompleted {
		select {
		case event := <-sub.C:
			switch event.Type {
			case progress.EventQueryProgress:
				data := event.Data.(map[string]any)
				percent := data["progress"].(int)
				assert.GreaterOrEqual(t, percent, lastProgress)
				assert.LessOrEqual(t, percent, 90)
				lastProgress = percent
			case progress.EventQueryCompleted:
				sawCompleted = true
				assert.Equal(t, 1, sink.count(), "assistant message persists before query:completed")

				data := event.Data.(map[string]any)
				assert.Equal(t, "completed", data["status"])
				artifact := data["artifact"].(a2a.Artifact)
				raw, err := a2a.DecodeArtifact(artifact)
				require.NoError(t, err)

				var decoded Result
				require.NoError(t, json.Unmarshal(raw, &decoded))
				assert.Equal(t, result.SessionID, decoded.SessionID)
				assert.Equal(t, "completed", decoded.Status)
				require.NotEmpty(t, decoded.Results)
				assert.Equal(t, "llm", decoded.Results[0].AgentType)
			}
		case <-deadline:
			t.Fatal("query:completed never arrived")
		}
	}
}

func TestProcessQueryToolFailureStillSynthesizes(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	discovery := startWorker(t, worker.NewDiscovery(catalog))
	analysis := startWorker(t, worker.NewAnalysis(catalog))

	provider := &scriptedLLM{script: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{
			toolCall("call_1", toolRepositoryDetails, `{"owner":"nobody","name":"nothing"}`),
		}},
		{Content: "That repository is not in the catalog."},
	}}

	o := New(provider, discovery, analysis, nil, progress.NewBus(nil), nil, nil, fastConfig(), nil)

	result, err := o.ProcessQuery(context.Background(), "analyze nobody/nothing", "alice", "conv-1")
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "llm", result.Results[0].AgentType)
	require.Len(t, result.Results[0].Data.ToolCalls, 1)
	assert.Contains(t, result.Results[0].Data.ToolCalls[0].Err, "not found")
	assert.Equal(t, "analysis", result.Results[1].AgentType)
	assert.Equal(t, "That repository is not in the catalog.", result.Answer)
}

func TestPollingLivenessTimeout(t *testing.T) {
	// An agent that accepts message/send, then never answers a poll.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req a2a.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method == a2a.MethodMessageSend {
			resp, _ := a2a.NewResponse(req.ID, a2a.MessageSendResult{
				Task: &a2a.Task{ID: "t-1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}},
			})
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	cli := client.New(ts.URL, client.WithRetry(0, time.Millisecond))
	t.Cleanup(cli.Close)

	provider := &scriptedLLM{script: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{toolCall("call_1", toolListRepositories, `{}`)}},
		{Content: "partial"},
	}}

	cfg := Config{
		PollInterval: 10 * time.Millisecond,
		StaleAfter:   100 * time.Millisecond,
		RPCDeadline:  time.Second,
	}
	o := New(provider, cli, cli, nil, progress.NewBus(nil), nil, nil, cfg, nil)

	start := time.Now()
	result, err := o.ProcessQuery(context.Background(), "anything", "alice", "conv-1")
	require.NoError(t, err)

	// The tool call failed with the liveness message, quickly.
	require.Len(t, result.Results, 2)
	assert.Contains(t, result.Results[0].Data.ToolCalls[0].Err, "not responding")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessQueryFailureEmitsTerminalEvent(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	discovery := startWorker(t, worker.NewDiscovery(catalog))
	analysis := startWorker(t, worker.NewAnalysis(catalog))

	bus := progress.NewBus(nil)
	sub := bus.Join("conv-1")
	defer bus.Leave(sub)

	// An exhausted script fails the first Chat call.
	o := New(&scriptedLLM{}, discovery, analysis, nil, bus, nil, nil, fastConfig(), nil)

	_, err := o.ProcessQuery(context.Background(), "anything", "alice", "conv-1")
	require.Error(t, err)

	// A failed session still ends with a terminal query:completed, after
	// the error event.
	sawError := false
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-sub.C:
			switch event.Type {
			case progress.EventError:
				sawError = true
			case progress.EventQueryCompleted:
				data := event.Data.(map[string]any)
				assert.Equal(t, "failed", data["status"])
				assert.Contains(t, data["error"].(string), "exhausted")
				assert.True(t, sawError, "error event precedes query:completed")
				return
			}
		case <-deadline:
			t.Fatal("terminal query:completed never arrived")
		}
	}
}

func TestRelationshipWorkerOptional(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	discovery := startWorker(t, worker.NewDiscovery(catalog))
	analysis := startWorker(t, worker.NewAnalysis(catalog))

	// Unreachable relationship worker.
	dead := client.New("http://127.0.0.1:1", client.WithRetry(0, time.Millisecond),
		client.WithTimeout(100*time.Millisecond))
	t.Cleanup(dead.Close)

	o := New(&scriptedLLM{}, discovery, analysis, dead, progress.NewBus(nil), nil, nil, fastConfig(), nil)

	// Degrades instead of failing.
	require.NoError(t, o.DiscoverWorkers(context.Background()))
	assert.False(t, o.relationshipAvailable())
	assert.Len(t, o.toolDefinitions(), 2)

	// With a live relationship worker the third tool appears.
	relationship := startWorker(t, worker.NewRelationship(catalog))
	o2 := New(&scriptedLLM{}, discovery, analysis, relationship, progress.NewBus(nil), nil, nil, fastConfig(), nil)
	require.NoError(t, o2.DiscoverWorkers(context.Background()))
	assert.True(t, o2.relationshipAvailable())
	assert.Len(t, o2.toolDefinitions(), 3)
}

func TestProcessQueryNoToolCalls(t *testing.T) {
	catalog := worker.NewCatalog(nil)
	discovery := startWorker(t, worker.NewDiscovery(catalog))
	analysis := startWorker(t, worker.NewAnalysis(catalog))

	provider := &scriptedLLM{script: []*llm.Completion{
		{Content: "Hello! Ask me about repositories."},
	}}

	o := New(provider, discovery, analysis, nil, progress.NewBus(nil), nil, nil, fastConfig(), nil)

	result, err := o.ProcessQuery(context.Background(), "hi", "alice", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello! Ask me about repositories.", result.Answer)
	assert.Empty(t, result.Results)
}
