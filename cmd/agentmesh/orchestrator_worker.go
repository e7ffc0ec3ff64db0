package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/orchestrator"
	"github.com/thehivegroup-ai/agentmesh/pkg/worker"
)

// orchestratorWorker exposes the orchestrator as a regular A2A worker:
// any message text becomes a query session.
type orchestratorWorker struct {
	orch *orchestrator.Orchestrator
}

func newOrchestratorWorker(orch *orchestrator.Orchestrator) *orchestratorWorker {
	return &orchestratorWorker{orch: orch}
}

func (w *orchestratorWorker) Name() string { return "orchestrator" }

func (w *orchestratorWorker) Card(baseURL string) a2a.AgentCard {
	return orchestratorCard(baseURL)
}

func (w *orchestratorWorker) Execute(ctx context.Context, req worker.Request) (*worker.Result, error) {
	var query string
	switch r := req.(type) {
	case worker.GenericRequest:
		query = r.Text
	case worker.DiscoverRequest:
		query = "what repositories exist?"
	case worker.AnalyzeRequest:
		query = "analyze repository: " + r.Owner + "/" + r.Name
	case worker.MapRelationshipsRequest:
		query = "map relationships: " + r.Owner + "/" + r.Name
	}

	result, err := w.orch.ProcessQuery(ctx, query, "a2a", uuid.New().String())
	if err != nil {
		return nil, err
	}
	return &worker.Result{Answer: result.Answer, Data: result}, nil
}

func orchestratorCard(baseURL string) a2a.AgentCard {
	return a2a.AgentCard{
		ProtocolVersion: a2a.ProtocolVersion,
		Name:            "orchestrator",
		Description:     "Supervises the repository workers and answers user queries",
		URL:             baseURL,
		Transports: []a2a.AgentTransport{
			{Type: "jsonrpc", URL: baseURL, Protocol: "json-rpc-2.0"},
		},
		Capabilities: a2a.AgentCapabilities{Streaming: false, MultiModal: false},
		InputModes:   []string{"text"},
		OutputModes:  []string{"text", "data"},
		Skills: []a2a.AgentSkill{
			{
				ID:          "answer-query",
				Name:        "Answer query",
				Description: "Answer a free-text question about the repository catalog",
				Tags:        []string{"orchestration", "query"},
			},
		},
	}
}
