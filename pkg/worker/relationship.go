package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// Edge is one dependency relationship between catalog repositories.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Relationship maps dependency edges between catalog repositories.
type Relationship struct {
	catalog *Catalog
}

// NewRelationship creates the relationship worker.
func NewRelationship(catalog *Catalog) *Relationship {
	return &Relationship{catalog: catalog}
}

func (r *Relationship) Name() string { return "relationship" }

func (r *Relationship) Card(baseURL string) a2a.AgentCard {
	return baseCard(
		"relationship",
		"Maps dependency relationships between catalog repositories",
		baseURL,
		[]a2a.AgentSkill{
			{
				ID:          "map-relationships",
				Name:        "Map relationships",
				Description: "Report which catalog repositories a repository depends on, and which depend on it",
				Tags:        []string{"repositories", "dependencies", "graph"},
			},
		},
	)
}

func (r *Relationship) Execute(ctx context.Context, req Request) (*Result, error) {
	switch q := req.(type) {
	case MapRelationshipsRequest:
		return r.mapEdges(q)
	case GenericRequest:
		return &Result{
			Answer: "Specify a repository to map, e.g. \"map relationships: owner/name\"",
		}, nil
	default:
		return nil, unsupported(r.Name(), req)
	}
}

func (r *Relationship) mapEdges(req MapRelationshipsRequest) (*Result, error) {
	repo, ok := r.catalog.Find(req.Owner, req.Name)
	if !ok {
		return nil, fmt.Errorf("repository %s/%s not found in catalog", req.Owner, req.Name)
	}

	full := repo.FullName()
	var edges []Edge

	// Outgoing: what this repository depends on.
	for _, dep := range repo.Dependencies {
		edges = append(edges, Edge{From: full, To: dep, Kind: "depends-on"})
	}

	// Incoming: who depends on this repository.
	for _, other := range r.catalog.All() {
		if strings.EqualFold(other.FullName(), full) {
			continue
		}
		for _, dep := range other.Dependencies {
			if strings.EqualFold(dep, full) {
				edges = append(edges, Edge{From: other.FullName(), To: full, Kind: "depends-on"})
			}
		}
	}

	answer := fmt.Sprintf("%s has %d dependency relationships", full, len(edges))
	if len(edges) == 0 {
		answer = full + " has no known dependency relationships"
	}

	return &Result{
		Answer: answer,
		Data: map[string]any{
			"repository": full,
			"edges":      edges,
			"count":      len(edges),
		},
	}, nil
}
