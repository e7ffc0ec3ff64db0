package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// RepositoryDetail is the analysis worker's output for one repository.
type RepositoryDetail struct {
	Owner         string   `json:"owner"`
	Name          string   `json:"name"`
	FullName      string   `json:"fullName"`
	Description   string   `json:"description,omitempty"`
	Organization  string   `json:"organization,omitempty"`
	Branch        string   `json:"branch"`
	DefaultBranch string   `json:"defaultBranch,omitempty"`
	Branches      []string `json:"branches,omitempty"`
	Languages     []string `json:"languages,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
}

// Analysis reports the details of single repositories.
type Analysis struct {
	catalog *Catalog
}

// NewAnalysis creates the analysis worker.
func NewAnalysis(catalog *Catalog) *Analysis {
	return &Analysis{catalog: catalog}
}

func (a *Analysis) Name() string { return "analysis" }

func (a *Analysis) Card(baseURL string) a2a.AgentCard {
	return baseCard(
		"analysis",
		"Analyzes a repository: languages, branches, topics and manifest-derived dependencies",
		baseURL,
		[]a2a.AgentSkill{
			{
				ID:          "analyze-repository",
				Name:        "Analyze repository",
				Description: "Report languages, branches, topics and dependencies of one repository",
				Tags:        []string{"repositories", "analysis"},
			},
		},
	)
}

func (a *Analysis) Execute(ctx context.Context, req Request) (*Result, error) {
	switch r := req.(type) {
	case AnalyzeRequest:
		return a.analyze(r)
	case GenericRequest:
		return &Result{
			Answer: "Specify a repository to analyze, e.g. \"analyze repository: owner/name\"",
		}, nil
	default:
		return nil, unsupported(a.Name(), req)
	}
}

func (a *Analysis) analyze(req AnalyzeRequest) (*Result, error) {
	repo, ok := a.catalog.Find(req.Owner, req.Name)
	if !ok {
		return nil, fmt.Errorf("repository %s/%s not found in catalog", req.Owner, req.Name)
	}

	branch := req.Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}
	if branch != "" && len(repo.Branches) > 0 && !containsFold(repo.Branches, branch) {
		return nil, fmt.Errorf("branch %q not found in %s (have: %s)",
			branch, repo.FullName(), strings.Join(repo.Branches, ", "))
	}

	detail := RepositoryDetail{
		Owner:         repo.Owner,
		Name:          repo.Name,
		FullName:      repo.FullName(),
		Description:   repo.Description,
		Organization:  repo.Organization,
		Branch:        branch,
		DefaultBranch: repo.DefaultBranch,
		Branches:      repo.Branches,
		Languages:     repo.Languages,
		Topics:        repo.Topics,
		Dependencies:  repo.Dependencies,
	}

	var summary []string
	if len(repo.Languages) > 0 {
		summary = append(summary, "written in "+strings.Join(repo.Languages, ", "))
	}
	if len(repo.Dependencies) > 0 {
		summary = append(summary, fmt.Sprintf("depends on %d catalog repositories", len(repo.Dependencies)))
	}
	answer := fmt.Sprintf("%s (%s branch)", repo.FullName(), branch)
	if len(summary) > 0 {
		answer += ": " + strings.Join(summary, "; ")
	}
	if repo.Description != "" {
		answer += ". " + repo.Description
	}

	return &Result{Answer: answer, Data: detail}, nil
}
