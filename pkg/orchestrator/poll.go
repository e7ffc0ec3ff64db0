package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/client"
	"github.com/thehivegroup-ai/agentmesh/pkg/progress"
)

// staleMessage is the error reported when a worker stops answering
// polls entirely.
const staleMessage = "Task timed out - agent not responding"

// pollUntilDone drives one worker task to a terminal state.
//
// Each attempt polls tasks/get under the RPC deadline envelope. A failed
// poll never refreshes the liveness clock; once the worker has been
// silent longer than staleAfter the task is declared dead. Successful
// polls keep the loop alive indefinitely.
func (o *Orchestrator) pollUntilDone(ctx context.Context, agent string, cli *client.Client, taskID, conversationID, queryID string) (*a2a.Task, error) {
	lastResponse := time.Now()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.pollInterval):
		}

		rpcCtx, cancel := context.WithTimeout(ctx, o.rpcDeadline)
		t, err := cli.GetTask(rpcCtx, taskID)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if time.Since(lastResponse) > o.staleAfter {
				o.logger.Error("worker went silent", "agent", agent, "task_id", taskID)
				return nil, fmt.Errorf("%s", staleMessage)
			}
			o.logger.Warn("poll failed, retrying", "agent", agent, "task_id", taskID, "error", err)
			continue
		}
		lastResponse = time.Now()

		// Progress creeps toward 90 while the worker runs; completion
		// jumps it to 100 elsewhere.
		percent := 30 + attempt*2
		if percent > 90 {
			percent = 90
		}
		o.bus.Publish(progress.Event{
			Type:           progress.EventQueryProgress,
			ConversationID: conversationID,
			QueryID:        queryID,
			Data:           map[string]any{"progress": percent, "agent": agent},
		})
		o.bus.Publish(progress.Event{
			Type:           progress.EventAgentStatus,
			ConversationID: conversationID,
			QueryID:        queryID,
			Data:           map[string]any{"agent": agent, "status": agentStatus(t.Status.State)},
		})
		o.bus.Publish(progress.Event{
			Type:           progress.EventTaskUpdated,
			ConversationID: conversationID,
			QueryID:        queryID,
			Data: map[string]any{
				"taskId": t.ID,
				"state":  string(t.Status.State),
			},
		})

		switch t.Status.State {
		case a2a.TaskStateCompleted:
			return t, nil
		case a2a.TaskStateFailed:
			return nil, fmt.Errorf("%s task failed: %s", agent, t.Status.Message)
		case a2a.TaskStateCanceled:
			return nil, fmt.Errorf("%s task canceled: %s", agent, t.Status.Message)
		case a2a.TaskStateRejected:
			return nil, fmt.Errorf("%s task rejected: %s", agent, t.Status.Message)
		}
	}
}

func agentStatus(state a2a.TaskState) string {
	switch state {
	case a2a.TaskStateSubmitted, a2a.TaskStateWorking:
		return "busy"
	default:
		return "idle"
	}
}
