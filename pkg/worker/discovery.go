package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// Discovery lists and filters the repository catalog.
type Discovery struct {
	catalog *Catalog
}

// NewDiscovery creates the discovery worker.
func NewDiscovery(catalog *Catalog) *Discovery {
	return &Discovery{catalog: catalog}
}

func (d *Discovery) Name() string { return "discovery" }

func (d *Discovery) Card(baseURL string) a2a.AgentCard {
	return baseCard(
		"discovery",
		"Discovers repositories in the catalog, filtered by organization or topic",
		baseURL,
		[]a2a.AgentSkill{
			{
				ID:          "discover-repositories",
				Name:        "Discover repositories",
				Description: "List known repositories, optionally filtered by organization or topic",
				Tags:        []string{"repositories", "search"},
			},
		},
	)
}

func (d *Discovery) Execute(ctx context.Context, req Request) (*Result, error) {
	switch r := req.(type) {
	case DiscoverRequest:
		return d.discover(r.Organization, r.Topic)
	case GenericRequest:
		// Free-text exploration lists everything.
		return d.discover("", "")
	case AnalyzeRequest, MapRelationshipsRequest:
		return nil, unsupported(d.Name(), req)
	default:
		return nil, unsupported(d.Name(), req)
	}
}

func (d *Discovery) discover(organization, topic string) (*Result, error) {
	repos := d.catalog.Filter(organization, topic)
	if len(repos) == 0 {
		return &Result{
			Answer: noMatchAnswer(organization, topic),
			Data:   map[string]any{"repositories": []Repository{}, "count": 0},
		}, nil
	}

	names := make([]string, len(repos))
	for i, repo := range repos {
		names[i] = repo.FullName()
	}

	return &Result{
		Answer: fmt.Sprintf("Found %d repositories: %s", len(repos), strings.Join(names, ", ")),
		Data: map[string]any{
			"repositories": repos,
			"count":        len(repos),
		},
	}, nil
}

func noMatchAnswer(organization, topic string) string {
	var filters []string
	if organization != "" {
		filters = append(filters, "organization "+organization)
	}
	if topic != "" {
		filters = append(filters, "topic "+topic)
	}
	if len(filters) == 0 {
		return "No repositories in catalog"
	}
	return "No repositories matched " + strings.Join(filters, " and ")
}
