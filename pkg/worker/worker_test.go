package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogSampleFallback(t *testing.T) {
	c, err := LoadCatalog("", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, c.All())

	repo, ok := c.Find("cortside", "coeus")
	require.True(t, ok)
	assert.Equal(t, "cortside/coeus", repo.FullName())
	assert.Equal(t, "cortside", repo.Organization)
}

func TestCatalogLoadAndExpand(t *testing.T) {
	t.Setenv("CATALOG_ORG", "acme")
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
organization: ${CATALOG_ORG}
repositories:
  - owner: acme
    name: widgets
    topics: [core]
    dependencies: [acme/base]
  - owner: acme
    name: base
`), 0o644))

	c, err := LoadCatalog(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "acme", c.Organization())
	assert.Len(t, c.All(), 2)

	_, ok := c.Find("ACME", "Widgets")
	assert.True(t, ok, "lookup is case-insensitive")
}

func TestCatalogRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repositories: []\n"), 0o644))

	_, err := LoadCatalog(path, nil)
	assert.Error(t, err)
}

func TestCatalogWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repositories:
  - owner: acme
    name: one
`), 0o644))

	c, err := LoadCatalog(path, nil)
	require.NoError(t, err)
	require.Len(t, c.All(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.WatchFile(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte(`
repositories:
  - owner: acme
    name: one
  - owner: acme
    name: two
`), 0o644))

	require.Eventually(t, func() bool {
		return len(c.All()) == 2
	}, 3*time.Second, 50*time.Millisecond)
}

func TestDiscoveryFilters(t *testing.T) {
	c := NewCatalog(nil)
	d := NewDiscovery(c)
	ctx := context.Background()

	all, err := d.Execute(ctx, DiscoverRequest{})
	require.NoError(t, err)
	data := all.Data.(map[string]any)
	assert.Equal(t, len(c.All()), data["count"])
	assert.Contains(t, all.Answer, "cortside/coeus")

	byTopic, err := d.Execute(ctx, DiscoverRequest{Topic: "messaging"})
	require.NoError(t, err)
	assert.Equal(t, 1, byTopic.Data.(map[string]any)["count"])

	none, err := d.Execute(ctx, DiscoverRequest{Organization: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 0, none.Data.(map[string]any)["count"])
	assert.Contains(t, none.Answer, "No repositories matched")

	// Free text lists everything.
	generic, err := d.Execute(ctx, GenericRequest{Text: "what repositories exist?"})
	require.NoError(t, err)
	assert.Equal(t, len(c.All()), generic.Data.(map[string]any)["count"])

	// Out-of-domain variants are rejected.
	_, err = d.Execute(ctx, AnalyzeRequest{Owner: "cortside", Name: "coeus"})
	assert.Error(t, err)
}

func TestAnalysisDetail(t *testing.T) {
	a := NewAnalysis(NewCatalog(nil))
	ctx := context.Background()

	result, err := a.Execute(ctx, AnalyzeRequest{Owner: "cortside", Name: "coeus"})
	require.NoError(t, err)

	detail := result.Data.(RepositoryDetail)
	assert.Equal(t, "cortside/coeus", detail.FullName)
	assert.Equal(t, "main", detail.Branch, "defaults to the default branch")
	assert.Contains(t, detail.Dependencies, "cortside/cortside.common")

	// Explicit branch must exist.
	_, err = a.Execute(ctx, AnalyzeRequest{Owner: "cortside", Name: "coeus", Branch: "release-9"})
	assert.Error(t, err)

	withBranch, err := a.Execute(ctx, AnalyzeRequest{Owner: "cortside", Name: "coeus", Branch: "develop"})
	require.NoError(t, err)
	assert.Equal(t, "develop", withBranch.Data.(RepositoryDetail).Branch)

	// Unknown repository is a domain error.
	_, err = a.Execute(ctx, AnalyzeRequest{Owner: "nobody", Name: "nothing"})
	assert.Error(t, err)
}

func TestRelationshipEdges(t *testing.T) {
	r := NewRelationship(NewCatalog(nil))
	ctx := context.Background()

	result, err := r.Execute(ctx, MapRelationshipsRequest{Owner: "cortside", Name: "cortside.common"})
	require.NoError(t, err)

	data := result.Data.(map[string]any)
	edges := data["edges"].([]Edge)
	// Nothing outgoing, three repositories depend on it.
	assert.Len(t, edges, 3)
	for _, e := range edges {
		assert.Equal(t, "cortside/cortside.common", e.To)
		assert.Equal(t, "depends-on", e.Kind)
	}

	coeus, err := r.Execute(ctx, MapRelationshipsRequest{Owner: "cortside", Name: "coeus"})
	require.NoError(t, err)
	coeusEdges := coeus.Data.(map[string]any)["edges"].([]Edge)
	assert.Len(t, coeusEdges, 2)
	for _, e := range coeusEdges {
		assert.Equal(t, "cortside/coeus", e.From)
	}
}

func TestWorkerCards(t *testing.T) {
	c := NewCatalog(nil)
	for _, w := range []Worker{NewDiscovery(c), NewAnalysis(c), NewRelationship(c)} {
		card := w.Card("http://localhost:3002")
		assert.Equal(t, "0.3.0", card.ProtocolVersion)
		assert.Equal(t, w.Name(), card.Name)
		require.NotEmpty(t, card.Transports)
		assert.Equal(t, "json-rpc-2.0", card.Transports[0].Protocol)
		assert.NotEmpty(t, card.Skills)
	}
}
