package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehivegroup-ai/agentmesh/pkg/router"
)

// registerEcho registers an agent that answers every request with a
// fixed result.
func registerEcho(t *testing.T, r *router.Router, agentID, answer string) {
	t.Helper()
	require.NoError(t, r.Register(agentID, func(msg router.Message) {
		if msg.Type != router.TypeRequest {
			return
		}
		_ = r.Publish("orchestrator", router.Message{
			Type: router.TypeResponse,
			From: agentID,
			Response: &router.Response{
				RequestID: msg.Request.ID,
				Result:    answer,
			},
		})
	}))
}

func TestCoordinatorCollectsAllAgents(t *testing.T) {
	r := router.New(nil)
	defer r.Close()
	require.NoError(t, r.Register("orchestrator", func(router.Message) {}))

	registerEcho(t, r, "discovery", "four repositories")
	registerEcho(t, r, "analysis", "coeus is a C# service")

	c := NewCoordinator(r, time.Minute, nil)
	result, err := c.Run(context.Background(), "what exists?", []string{"discovery", "analysis"})
	require.NoError(t, err)

	assert.Equal(t, "completed", result.Status)
	assert.Contains(t, result.Answer, "four repositories")
	assert.Contains(t, result.Answer, "coeus is a C# service")
	assert.Len(t, result.Results, 2)
}

func TestCoordinatorDeadlineBroadcastsCancel(t *testing.T) {
	r := router.New(nil)
	defer r.Close()
	require.NoError(t, r.Register("orchestrator", func(router.Message) {}))

	registerEcho(t, r, "discovery", "fast answer")

	// The analysis agent never responds, but must see the cancel.
	var canceled atomic.Bool
	require.NoError(t, r.Register("analysis", func(msg router.Message) {
		if msg.Type == router.TypeCommand && msg.Command.Action == router.ActionCancel {
			canceled.Store(true)
		}
	}))

	c := NewCoordinator(r, 100*time.Millisecond, nil)
	result, err := c.Run(context.Background(), "anything", []string{"discovery", "analysis"})
	require.NoError(t, err)

	assert.Equal(t, "timeout", result.Status)
	assert.Contains(t, result.Answer, "fast answer")

	var analysisResult AgentResult
	for _, ar := range result.Results {
		if ar.AgentType == "analysis" {
			analysisResult = ar
		}
	}
	require.Len(t, analysisResult.Data.ToolCalls, 1)
	assert.Contains(t, analysisResult.Data.ToolCalls[0].Err, "not responding")

	require.Eventually(t, canceled.Load, 2*time.Second, 10*time.Millisecond,
		"cancel broadcast never reached the silent agent")
}

func TestCoordinatorIgnoresMalformedResponses(t *testing.T) {
	r := router.New(nil)
	defer r.Close()
	require.NoError(t, r.Register("orchestrator", func(router.Message) {}))

	registerEcho(t, r, "discovery", "real answer")

	c := NewCoordinator(r, time.Minute, nil)

	// A response message with no payload is skipped, not a panic.
	require.NoError(t, r.Publish("orchestrator", router.Message{
		Type: router.TypeResponse,
		From: "rogue",
	}))

	result, err := c.Run(context.Background(), "anything", []string{"discovery"})
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	assert.Contains(t, result.Answer, "real answer")
}

func TestCoordinatorRequiresAgents(t *testing.T) {
	r := router.New(nil)
	defer r.Close()

	c := NewCoordinator(r, time.Minute, nil)
	_, err := c.Run(context.Background(), "query", nil)
	assert.Error(t, err)
}
