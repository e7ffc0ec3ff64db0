package worker

import (
	"context"
	"fmt"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// Request is the closed set of operations a worker can be asked to
// perform. The executor parses incoming message text into one of these
// variants; each worker matches over the whole set.
type Request interface {
	isRequest()
}

// DiscoverRequest lists catalog repositories, optionally filtered.
type DiscoverRequest struct {
	Organization string
	Topic        string
}

// AnalyzeRequest asks for the details of one repository.
type AnalyzeRequest struct {
	Owner  string
	Name   string
	Branch string
}

// MapRelationshipsRequest asks for the dependency edges around one
// repository.
type MapRelationshipsRequest struct {
	Owner string
	Name  string
}

// GenericRequest carries free text that matched no command grammar.
type GenericRequest struct {
	Text string
}

func (DiscoverRequest) isRequest()         {}
func (AnalyzeRequest) isRequest()          {}
func (MapRelationshipsRequest) isRequest() {}
func (GenericRequest) isRequest()          {}

// Result is what a worker produces for one request: a human-readable
// answer plus structured data for the artifact.
type Result struct {
	Answer string `json:"answer"`
	Data   any    `json:"data,omitempty"`
}

// Worker is one agent's domain logic.
type Worker interface {
	// Name is the agent's short name (discovery, analysis, relationship).
	Name() string
	// Card describes the worker for /.well-known/agent-card.json.
	Card(baseURL string) a2a.AgentCard
	// Execute runs one request. Unsupported variants return an error,
	// which the executor records as a task failure.
	Execute(ctx context.Context, req Request) (*Result, error)
}

// unsupported builds the error every worker returns for request
// variants outside its domain.
func unsupported(worker string, req Request) error {
	return fmt.Errorf("%s worker does not handle %T requests", worker, req)
}

// baseCard fills the card fields every worker shares.
func baseCard(name, description, baseURL string, skills []a2a.AgentSkill) a2a.AgentCard {
	return a2a.AgentCard{
		ProtocolVersion: a2a.ProtocolVersion,
		Name:            name,
		Description:     description,
		URL:             baseURL,
		Transports: []a2a.AgentTransport{
			{Type: "jsonrpc", URL: baseURL, Protocol: "json-rpc-2.0"},
		},
		Capabilities: a2a.AgentCapabilities{Streaming: false, MultiModal: false},
		InputModes:   []string{"text"},
		OutputModes:  []string{"text", "data"},
		Skills:       skills,
	}
}
