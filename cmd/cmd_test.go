// -- cmd/cmd_test.go --
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/config"
	"github.com/planopticon/planopticon/internal/graphstore"
)

// executeC runs a command with captured output, the way the shell would.
func executeC(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	c.SetOut(buf)
	c.SetErr(buf)
	c.SetArgs(args)
	err := c.Execute()
	return buf.String(), err
}

// withTestConfig points the command helpers at an isolated memory-backed
// graph whose snapshot lives under a temp directory. The previous config is
// restored when the test ends.
func withTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Graph.Backend = "memory"
	cfg.Graph.SnapshotPath = filepath.Join(t.TempDir(), "knowledge_graph.json")

	prev := appCfg
	appCfg = cfg
	t.Cleanup(func() { appCfg = prev })
	return cfg
}

// seedSnapshot writes a small graph snapshot for commands to load.
func seedSnapshot(t *testing.T, path string) {
	t.Helper()
	snap := schemas.GraphSnapshot{
		Nodes: []schemas.Entity{
			{Name: "Alice", Type: "person", Descriptions: []string{"Presenter"}},
			{Name: "Go", Type: "technology", Descriptions: []string{"Language"}},
		},
		Relationships: []schemas.Relationship{
			{Source: "Alice", Target: "Go", Type: "uses"},
		},
	}
	require.NoError(t, graphstore.WriteSnapshot(path, snap))
}

func TestQueryStatsCommand(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	out, err := executeC(t, newQueryCmd(), "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge graph statistics")
	assert.Contains(t, out, "entity_count: 2")
	assert.Contains(t, out, "relationship_count: 1")
	assert.Contains(t, out, "person: 1")
}

func TestQueryEntitiesCommand(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	t.Run("TextFormat", func(t *testing.T) {
		out, err := executeC(t, newQueryCmd(), "entities", "--name", "ali")
		require.NoError(t, err)
		assert.Contains(t, out, "Found 1 entities")
		assert.Contains(t, out, "[person] Alice")
	})

	t.Run("JSONFormat", func(t *testing.T) {
		out, err := executeC(t, newQueryCmd(), "entities", "--format", "json", "--type", "technology")
		require.NoError(t, err)
		assert.Contains(t, out, `"query_type": "filter"`)
		assert.Contains(t, out, `"name": "Go"`)
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, err := executeC(t, newQueryCmd(), "entities", "--format", "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

func TestQueryNeighborsCommand(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	out, err := executeC(t, newQueryCmd(), "neighbors", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 entities and 1 relationships")
	assert.Contains(t, out, "Alice --[uses]--> Go")
}

func TestQueryCypherNeedsEmbeddedBackend(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	_, err := executeC(t, newQueryCmd(), "cypher", "MATCH (e:Entity) RETURN e")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph.backend")
}

func TestAskCommandRequiresLLM(t *testing.T) {
	withTestConfig(t)

	_, err := executeC(t, newAskCmd(), "who is Alice?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM provider")
}

func TestIngestTranscriptRequiresLLM(t *testing.T) {
	withTestConfig(t)

	path := filepath.Join(t.TempDir(), "transcript.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"segments": []}`), 0o644))

	_, err := executeC(t, newIngestTranscriptCmd(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM provider")
}

func TestIngestTextRequiresLLM(t *testing.T) {
	withTestConfig(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alice presented Go."), 0o644))

	_, err := executeC(t, newIngestTextCmd(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM provider")
}

func TestIngestDiagramsWithoutLLM(t *testing.T) {
	cfg := withTestConfig(t)

	path := filepath.Join(t.TempDir(), "diagrams.json")
	diagrams := `[{"frame_index": 3, "timestamp": 12.5, "diagram_type": "flowchart"}]`
	require.NoError(t, os.WriteFile(path, []byte(diagrams), 0o644))

	out, err := executeC(t, newIngestDiagramsCmd(), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 1 diagrams")

	snap, err := graphstore.ReadSnapshot(cfg.Graph.SnapshotPath)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "diagram_0", snap.Nodes[0].Name)
	assert.Equal(t, "diagram", snap.Nodes[0].Type)
}

func TestGraphExportAndDescribe(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	exportPath := filepath.Join(t.TempDir(), "export.json")
	out, err := executeC(t, newGraphExportCmd(), "--out", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Graph exported to "+exportPath)

	out, err = executeC(t, newGraphDescribeCmd(), exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "store_type: json")
	assert.Contains(t, out, "entity_count: 2")
	assert.Contains(t, out, "technology: 1")
}

func TestGraphMergeCommand(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	otherPath := filepath.Join(t.TempDir(), "other.json")
	other := schemas.GraphSnapshot{
		Nodes: []schemas.Entity{
			{Name: "alice", Type: "person", Descriptions: []string{"Speaker"}},
			{Name: "Bob", Type: "person"},
		},
		Relationships: []schemas.Relationship{
			{Source: "alice", Target: "Bob", Type: "knows"},
		},
	}
	require.NoError(t, graphstore.WriteSnapshot(otherPath, other))

	out, err := executeC(t, newGraphMergeCmd(), otherPath)
	require.NoError(t, err)
	// Alice merges case-insensitively, Bob is new.
	assert.Contains(t, out, "3 entities and 2 relationships")

	snap, err := graphstore.ReadSnapshot(cfg.Graph.SnapshotPath)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 3)
}

func TestGraphVisualizeCommand(t *testing.T) {
	cfg := withTestConfig(t)
	seedSnapshot(t, cfg.Graph.SnapshotPath)

	out, err := executeC(t, newGraphVisualizeCmd(), "--max-nodes", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, `Alice["Alice"]:::person`)
	assert.Contains(t, out, `-- "uses" -->`)
}

func TestGraphDiscoverCommand(t *testing.T) {
	withTestConfig(t)
	dir := t.TempDir()

	t.Run("Empty", func(t *testing.T) {
		out, err := executeC(t, newGraphDiscoverCmd(), "--dir", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "No knowledge graph files found.")
	})

	t.Run("FindsSnapshot", func(t *testing.T) {
		path := filepath.Join(dir, "knowledge_graph.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

		out, err := executeC(t, newGraphDiscoverCmd(), "--dir", dir)
		require.NoError(t, err)
		assert.Contains(t, out, path)
	})
}
