// internal/knowledge/graph_test.go
package knowledge

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/graphstore"
)

// scriptedLLM replays canned responses and records the prompts it saw.
type scriptedLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (s *scriptedLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.prompts = append(s.prompts, req.UserPrompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "{}", nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *scriptedLLM) Close() error { return nil }

const extractionJSON = `{
	"entities": [
		{"name": "Python", "type": "technology", "description": "programming language"},
		{"name": "Guido", "type": "person", "description": "creator of Python"}
	],
	"relationships": [
		{"source": "Guido", "target": "Python", "type": "created"},
		{"source": "Guido", "target": "Unknown", "type": "likes"}
	]
}`

func newTestGraph(llm schemas.LLMClient, opts Options) *Graph {
	return New(graphstore.NewMemoryStore(zap.NewNop()), llm, zap.NewNop(), opts)
}

func TestExtractEntitiesAndRelationships(t *testing.T) {
	t.Parallel()

	t.Run("ObjectResponse", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(&scriptedLLM{responses: []string{extractionJSON}}, Options{})

		entities, rels := g.ExtractEntitiesAndRelationships(context.Background(), "some talk")
		require.Len(t, entities, 2)
		assert.Equal(t, "Python", entities[0].Name)
		assert.Equal(t, "technology", entities[0].Type)
		assert.Equal(t, []string{"programming language"}, entities[0].Descriptions)
		require.Len(t, rels, 2)
		assert.Equal(t, "created", rels[0].Type)
	})

	t.Run("MarkdownWrapped", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(&scriptedLLM{responses: []string{"```json\n" + extractionJSON + "\n```"}}, Options{})

		entities, _ := g.ExtractEntitiesAndRelationships(context.Background(), "x")
		assert.Len(t, entities, 2)
	})

	t.Run("FlatArrayFallback", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(&scriptedLLM{responses: []string{`[{"name": "Solo", "type": "concept"}]`}}, Options{})

		entities, rels := g.ExtractEntitiesAndRelationships(context.Background(), "x")
		require.Len(t, entities, 1)
		assert.Equal(t, "Solo", entities[0].Name)
		assert.Empty(t, rels)
	})

	t.Run("DefaultsApplied", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(&scriptedLLM{responses: []string{
			`{"entities":[{"name":"Thing"}],"relationships":[{"source":"a","target":"b"}]}`,
		}}, Options{})

		entities, rels := g.ExtractEntitiesAndRelationships(context.Background(), "x")
		require.Len(t, entities, 1)
		assert.Equal(t, schemas.DefaultEntityType, entities[0].Type)
		require.Len(t, rels, 1)
		assert.Equal(t, schemas.DefaultRelationshipType, rels[0].Type)
	})

	t.Run("UnparsableYieldsEmpty", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(&scriptedLLM{responses: []string{"I have no JSON for you."}}, Options{})

		entities, rels := g.ExtractEntitiesAndRelationships(context.Background(), "x")
		assert.Empty(t, entities)
		assert.Empty(t, rels)
	})

	t.Run("LLMErrorYieldsEmpty", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(&scriptedLLM{err: errors.New("quota exhausted")}, Options{})

		entities, rels := g.ExtractEntitiesAndRelationships(context.Background(), "x")
		assert.Empty(t, entities)
		assert.Empty(t, rels)
	})

	t.Run("NoLLMConfigured", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil, Options{})

		entities, rels := g.ExtractEntitiesAndRelationships(context.Background(), "x")
		assert.Empty(t, entities)
		assert.Empty(t, rels)
	})
}

func TestAddContent(t *testing.T) {
	t.Parallel()

	g := newTestGraph(&scriptedLLM{responses: []string{extractionJSON}}, Options{})
	ts := 42.5
	g.AddContent(context.Background(), "Guido created Python.", "segment_3", &ts)

	store := g.Store()
	assert.Equal(t, 2, store.EntityCount())

	e, ok := store.GetEntity("python")
	require.True(t, ok)
	require.Len(t, e.Occurrences, 1)
	assert.Equal(t, "segment_3", e.Occurrences[0].Source)
	require.NotNil(t, e.Occurrences[0].Text)
	assert.Equal(t, "Guido created Python.", *e.Occurrences[0].Text)

	// The edge to "Unknown" must be dropped before it reaches the store.
	assert.Equal(t, 1, store.RelationshipCount())
	assert.True(t, store.HasRelationship("Guido", "Python", "created"))

	rels := store.GetAllRelationships()
	require.NotNil(t, rels[0].ContentSource)
	assert.Equal(t, "segment_3", *rels[0].ContentSource)
	require.NotNil(t, rels[0].Timestamp)
	assert.InDelta(t, 42.5, *rels[0].Timestamp, 1e-9)
}

func TestAddContentSnippetTruncation(t *testing.T) {
	t.Parallel()

	g := newTestGraph(&scriptedLLM{responses: []string{`{"entities":[{"name":"X"}]}`}}, Options{SnippetLength: 10})
	long := strings.Repeat("abcde", 10) // 50 runes
	g.AddContent(context.Background(), long, "s", nil)

	e, ok := g.Store().GetEntity("X")
	require.True(t, ok)
	require.Len(t, e.Occurrences, 1)
	assert.Equal(t, long[:10]+"...", *e.Occurrences[0].Text)
}

func TestProcessTranscript(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{responses: []string{`{"entities":[{"name":"Topic"}]}`}}
	g := newTestGraph(llm, Options{BatchSize: 5})

	segments := make([]schemas.TranscriptSegment, 12)
	for i := range segments {
		segments[i] = schemas.TranscriptSegment{
			Start:   float64(i * 10),
			End:     float64(i*10 + 9),
			Text:    "segment text",
			Speaker: "Alice",
		}
	}
	segments[6].Speaker = "Bob"

	g.ProcessTranscript(context.Background(), schemas.Transcript{Segments: segments})

	store := g.Store()
	// Speakers registered up front.
	alice, ok := store.GetEntity("Alice")
	require.True(t, ok)
	assert.Equal(t, "person", alice.Type)
	assert.Equal(t, []string{"Speaker in transcript"}, alice.Descriptions)
	assert.True(t, store.HasEntity("Bob"))

	// 12 segments at batch size 5: batches start at 0, 5, and 10.
	assert.Len(t, llm.prompts, 3)

	topic, ok := store.GetEntity("Topic")
	require.True(t, ok)
	sources := make([]string, 0, len(topic.Occurrences))
	for _, occ := range topic.Occurrences {
		sources = append(sources, occ.Source)
	}
	assert.Equal(t, []string{"transcript_batch_0", "transcript_batch_5", "transcript_batch_10"}, sources)

	// First batch stamped with its first segment's start time.
	require.NotNil(t, topic.Occurrences[0].Timestamp)
	assert.InDelta(t, 0.0, *topic.Occurrences[0].Timestamp, 1e-9)
	assert.InDelta(t, 50.0, *topic.Occurrences[1].Timestamp, 1e-9)
}

func TestProcessTranscriptEmpty(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{}
	g := newTestGraph(llm, Options{})

	g.ProcessTranscript(context.Background(), schemas.Transcript{})
	assert.Empty(t, llm.prompts)
	assert.Equal(t, 0, g.Store().EntityCount())
}

func TestProcessTranscriptSkipsBlankBatches(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{}
	g := newTestGraph(llm, Options{BatchSize: 2})

	g.ProcessTranscript(context.Background(), schemas.Transcript{Segments: []schemas.TranscriptSegment{
		{Text: "   "}, {Text: ""},
	}})
	assert.Empty(t, llm.prompts, "batches with no text must not reach the model")
}

func TestProcessDiagrams(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{responses: []string{`{"entities":[{"name":"Login Flow"}]}`}}
	g := newTestGraph(llm, Options{})

	ts0, ts1 := 31.0, 90.0
	g.ProcessDiagrams(context.Background(), []schemas.DiagramResult{
		{FrameIndex: 7, Timestamp: &ts0, DiagramType: "flowchart", TextContent: "login flow"},
		{FrameIndex: 20, Timestamp: &ts1},
	})

	store := g.Store()
	assert.True(t, store.HasEntity("Login Flow"))

	d0, ok := store.GetEntity("diagram_0")
	require.True(t, ok)
	assert.Equal(t, "diagram", d0.Type)
	assert.Equal(t, []string{"Visual diagram from video"}, d0.Descriptions)
	require.Len(t, d0.Occurrences, 1)
	assert.Equal(t, "frame_index=7", *d0.Occurrences[0].Text)
	require.NotNil(t, d0.Properties)
	assert.Equal(t, "flowchart", d0.Properties["diagram_type"])

	// Diagram with no text still gets its marker entity, and no LLM call.
	d1, ok := store.GetEntity("diagram_1")
	require.True(t, ok)
	assert.Equal(t, "frame_index=20", *d1.Occurrences[0].Text)
	assert.Len(t, llm.prompts, 1)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	a := newTestGraph(nil, Options{})
	a.Store().MergeEntity("Shared", "concept", []string{"from a"}, "a")

	b := newTestGraph(nil, Options{})
	b.Store().MergeEntity("Shared", "concept", []string{"from b"}, "b")
	b.Store().MergeEntity("OnlyB", "person", nil, "b")
	ts := 1.0
	b.Store().AddOccurrence("OnlyB", "seg", &ts, nil)
	b.Store().AddRelationship("OnlyB", "Shared", "mentions", nil, nil)

	a.Merge(b)

	assert.Equal(t, 2, a.Store().EntityCount())
	shared, ok := a.Store().GetEntity("shared")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"from a", "from b"}, shared.Descriptions)

	onlyB, ok := a.Store().GetEntity("OnlyB")
	require.True(t, ok)
	assert.Len(t, onlyB.Occurrences, 1)
	assert.Equal(t, 1, a.Store().RelationshipCount())

	// Relationship merge is append-only: merging again doubles the edges.
	a.Merge(b)
	assert.Equal(t, 2, a.Store().RelationshipCount())
	assert.Equal(t, 2, a.Store().EntityCount())
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil, Options{})
	g.Store().MergeEntity("Kafka", "technology", []string{"broker"}, "talk")
	g.Store().MergeEntity("Topic", "concept", nil, "talk")
	g.Store().AddRelationship("Kafka", "Topic", "contains", nil, nil)

	// Save appends .json when the path has no extension.
	base := filepath.Join(t.TempDir(), "knowledge_graph")
	path, err := g.Save(base)
	require.NoError(t, err)
	assert.Equal(t, base+".json", path)

	loaded := newTestGraph(nil, Options{})
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Store().EntityCount())
	assert.True(t, loaded.Store().HasRelationship("Kafka", "Topic", "contains"))

	stats := loaded.Stats()
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 1, stats.RelationshipCount)
	assert.Equal(t, map[string]int{"technology": 1, "concept": 1}, stats.EntityTypes)
}

func TestMermaid(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil, Options{})
	store := g.Store()
	store.MergeEntity("Message Queue", "technology", nil, "t")
	store.MergeEntity("Producer", "concept", nil, "t")
	store.MergeEntity("Consumer", "concept", nil, "t")
	store.MergeEntity("Lonely", "concept", nil, "t")
	store.AddRelationship("Producer", "Message Queue", "writes_to", nil, nil)
	store.AddRelationship("Producer", "Message Queue", "writes_to", nil, nil) // duplicate edge
	store.AddRelationship("Consumer", "Message Queue", "reads_from", nil, nil)

	out := g.Mermaid(3)
	lines := strings.Split(out, "\n")

	assert.Equal(t, "graph LR", lines[0])
	assert.Contains(t, out, `Message_Queue["Message Queue"]:::technology`)
	assert.Contains(t, out, `Producer["Producer"]:::concept`)
	assert.NotContains(t, out, "Lonely", "degree ranking must drop isolated nodes past the cap")

	assert.Equal(t, 1, strings.Count(out, `Producer -- "writes_to" --> Message_Queue`),
		"duplicate edges render once")
	assert.Contains(t, out, `Consumer -- "reads_from" --> Message_Queue`)
	assert.Contains(t, out, "classDef person")
	assert.Contains(t, out, "classDef diagram")
}

func TestMermaidQuotesEscaped(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil, Options{})
	g.Store().MergeEntity(`The "Big" Idea`, "concept", nil, "t")

	out := g.Mermaid(0)
	assert.Contains(t, out, `The__Big__Idea["The 'Big' Idea"]:::concept`)
}
