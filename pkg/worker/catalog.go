// Package worker implements the domain logic behind the three worker
// agents: repository discovery, repository analysis and dependency
// relationship mapping. All three operate over a shared repository
// catalog loaded from YAML.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/thehivegroup-ai/agentmesh/pkg/config"
)

// Repository is one catalog entry.
type Repository struct {
	Owner         string   `yaml:"owner" json:"owner"`
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Organization  string   `yaml:"organization,omitempty" json:"organization,omitempty"`
	DefaultBranch string   `yaml:"default_branch,omitempty" json:"defaultBranch,omitempty"`
	Branches      []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	Languages     []string `yaml:"languages,omitempty" json:"languages,omitempty"`
	Topics        []string `yaml:"topics,omitempty" json:"topics,omitempty"`
	// Dependencies are "owner/name" references derived from the
	// repository's manifests.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

type catalogFile struct {
	Organization string       `yaml:"organization"`
	Repositories []Repository `yaml:"repositories"`
}

// Catalog is the set of repositories the workers know about. It reloads
// itself when its backing file changes.
type Catalog struct {
	mu           sync.RWMutex
	organization string
	repos        []Repository
	byFullName   map[string]Repository
	logger       *slog.Logger
}

// NewCatalog returns a catalog seeded with the built-in sample data.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{logger: logger}
	c.replace(sampleOrganization, sampleRepositories())
	return c
}

// LoadCatalog reads the catalog from a YAML file, expanding ${VAR}
// references. An empty path yields the built-in sample.
func LoadCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	c := NewCatalog(logger)
	if path == "" {
		return c, nil
	}
	if err := c.loadFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal([]byte(config.ExpandEnvVars(string(raw))), &file); err != nil {
		return fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if len(file.Repositories) == 0 {
		return fmt.Errorf("catalog %s has no repositories", path)
	}

	for i, repo := range file.Repositories {
		if repo.Owner == "" || repo.Name == "" {
			return fmt.Errorf("catalog %s: repository %d missing owner or name", path, i)
		}
	}

	c.replace(file.Organization, file.Repositories)
	c.logger.Info("catalog loaded", "path", path, "repositories", len(file.Repositories))
	return nil
}

func (c *Catalog) replace(organization string, repos []Repository) {
	byFullName := make(map[string]Repository, len(repos))
	for _, repo := range repos {
		if repo.Organization == "" {
			repo.Organization = organization
		}
		byFullName[strings.ToLower(repo.FullName())] = repo
	}

	normalized := make([]Repository, 0, len(repos))
	for _, repo := range byFullName {
		normalized = append(normalized, repo)
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].FullName() < normalized[j].FullName()
	})

	c.mu.Lock()
	c.organization = organization
	c.repos = normalized
	c.byFullName = byFullName
	c.mu.Unlock()
}

// WatchFile reloads the catalog whenever path changes. Failed reloads
// keep the previous contents.
func (c *Catalog) WatchFile(ctx context.Context, path string) error {
	return config.Watch(ctx, path, func() {
		if err := c.loadFile(path); err != nil {
			c.logger.Warn("catalog reload failed, keeping previous contents",
				"path", path, "error", err)
		}
	})
}

// Organization returns the catalog's default organization.
func (c *Catalog) Organization() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.organization
}

// All returns every repository in deterministic order.
func (c *Catalog) All() []Repository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Repository, len(c.repos))
	copy(out, c.repos)
	return out
}

// Find looks up a repository by owner and name, case-insensitively.
func (c *Catalog) Find(owner, name string) (Repository, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	repo, ok := c.byFullName[strings.ToLower(owner+"/"+name)]
	return repo, ok
}

// Filter returns repositories matching the organization and topic
// filters; empty filters match everything.
func (c *Catalog) Filter(organization, topic string) []Repository {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Repository
	for _, repo := range c.repos {
		if organization != "" && !strings.EqualFold(repo.Organization, organization) &&
			!strings.EqualFold(repo.Owner, organization) {
			continue
		}
		if topic != "" && !containsFold(repo.Topics, topic) {
			continue
		}
		out = append(out, repo)
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

const sampleOrganization = "cortside"

// sampleRepositories is the fallback catalog used when no file is
// configured. The entries mirror a small real-world service mesh so the
// relationship worker has edges to map.
func sampleRepositories() []Repository {
	return []Repository{
		{
			Owner:         "cortside",
			Name:          "coeus",
			Description:   "Example microservice demonstrating the platform service template",
			DefaultBranch: "main",
			Branches:      []string{"main", "develop"},
			Languages:     []string{"C#", "SQL"},
			Topics:        []string{"microservice", "template"},
			Dependencies:  []string{"cortside/cortside.common", "cortside/cortside.aspnetcore"},
		},
		{
			Owner:         "cortside",
			Name:          "cortside.common",
			Description:   "Shared utility libraries: validation, correlation, messaging primitives",
			DefaultBranch: "main",
			Branches:      []string{"main", "develop"},
			Languages:     []string{"C#"},
			Topics:        []string{"library", "shared"},
		},
		{
			Owner:         "cortside",
			Name:          "cortside.aspnetcore",
			Description:   "ASP.NET Core hosting, middleware and health-check extensions",
			DefaultBranch: "main",
			Branches:      []string{"main", "develop"},
			Languages:     []string{"C#"},
			Topics:        []string{"library", "web"},
			Dependencies:  []string{"cortside/cortside.common"},
		},
		{
			Owner:         "cortside",
			Name:          "cortside.amqp",
			Description:   "AMQP message publishing and receiving over shared contracts",
			DefaultBranch: "main",
			Branches:      []string{"main"},
			Languages:     []string{"C#"},
			Topics:        []string{"library", "messaging"},
			Dependencies:  []string{"cortside/cortside.common"},
		},
	}
}
