// internal/knowledge/graph.go

// Package knowledge turns raw video-analysis artifacts (transcripts, diagram
// text) into knowledge-graph content: LLM extraction, merging, interchange,
// and mermaid rendering.
package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/graphstore"
	"github.com/planopticon/planopticon/internal/llmutil"
)

const (
	defaultBatchSize     = 10
	defaultSnippetLength = 100
	defaultMermaidNodes  = 30
)

// Options tunes ingestion. Zero values fall back to defaults.
type Options struct {
	// BatchSize is the number of transcript segments combined per extraction
	// call.
	BatchSize int
	// SnippetLength caps the occurrence text excerpt, in runes.
	SnippetLength int
}

// Graph integrates extracted content into a structured knowledge graph. The
// LLM client is optional: with none configured, extraction yields nothing and
// ingestion degrades to registering only pre-known entities (speakers,
// diagram markers).
type Graph struct {
	store      graphstore.GraphStore
	llm        schemas.LLMClient
	log        *zap.Logger
	batchSize  int
	snippetLen int
}

// New wires a Graph over an open store.
func New(store graphstore.GraphStore, llm schemas.LLMClient, logger *zap.Logger, opts Options) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = defaultSnippetLength
	}
	return &Graph{
		store:      store,
		llm:        llm,
		log:        logger.Named("knowledge"),
		batchSize:  opts.BatchSize,
		snippetLen: opts.SnippetLength,
	}
}

// Store exposes the underlying store for query layers.
func (g *Graph) Store() graphstore.GraphStore { return g.store }

const extractionPromptFormat = `Extract all notable entities and relationships from the following content.

CONTENT:
%s

Return a JSON object with two keys:
- "entities": array of {"name": "...", "type": "person|concept|technology|organization|time", "description": "brief description"}
- "relationships": array of {"source": "entity name", "target": "entity name", "type": "relationship description"}

Return ONLY the JSON object.`

// ExtractEntitiesAndRelationships extracts entities and relationships in a
// single LLM call. Extraction failures are absorbed: a model that returns
// garbage, or no model at all, yields empty results rather than aborting an
// ingestion run.
func (g *Graph) ExtractEntitiesAndRelationships(ctx context.Context, text string) ([]schemas.Entity, []schemas.Relationship) {
	if g.llm == nil {
		return nil, nil
	}

	raw, err := g.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: fmt.Sprintf(extractionPromptFormat, text),
		Tier:       schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.3,
			MaxTokens:       4096,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		g.log.Warn("Entity extraction call failed", zap.Error(err))
		return nil, nil
	}

	if parsed, err := llmutil.ParseJSONResponse[schemas.ExtractionResult](raw); err == nil {
		return convertExtraction(*parsed)
	}

	// Fallback: some models return a flat entity array.
	if flat, err := llmutil.ParseJSONResponse[[]schemas.ExtractedEntity](raw); err == nil {
		return convertExtraction(schemas.ExtractionResult{Entities: *flat})
	}

	g.log.Warn("Entity extraction returned unparsable output", zap.Int("response_len", len(raw)))
	return nil, nil
}

func convertExtraction(res schemas.ExtractionResult) ([]schemas.Entity, []schemas.Relationship) {
	entities := make([]schemas.Entity, 0, len(res.Entities))
	for _, item := range res.Entities {
		if item.Name == "" {
			continue
		}
		entityType := item.Type
		if entityType == "" {
			entityType = schemas.DefaultEntityType
		}
		var descs []string
		if item.Description != "" {
			descs = []string{item.Description}
		}
		entities = append(entities, schemas.Entity{Name: item.Name, Type: entityType, Descriptions: descs})
	}

	rels := make([]schemas.Relationship, 0, len(res.Relationships))
	for _, item := range res.Relationships {
		if item.Source == "" || item.Target == "" {
			continue
		}
		relType := item.Type
		if relType == "" {
			relType = schemas.DefaultRelationshipType
		}
		rels = append(rels, schemas.Relationship{Source: item.Source, Target: item.Target, Type: relType})
	}
	return entities, rels
}

// AddContent extracts from one piece of content and merges the results: each
// entity gets merged plus one occurrence carrying a text snippet; each
// relationship is recorded only when both endpoints already exist in the
// graph.
func (g *Graph) AddContent(ctx context.Context, text, source string, timestamp *float64) {
	entities, relationships := g.ExtractEntitiesAndRelationships(ctx, text)

	snippet := truncateSnippet(text, g.snippetLen)

	for _, entity := range entities {
		g.store.MergeEntity(entity.Name, entity.Type, entity.Descriptions, source)
		g.store.AddOccurrence(entity.Name, source, timestamp, &snippet)
	}

	for _, rel := range relationships {
		if g.store.HasEntity(rel.Source) && g.store.HasEntity(rel.Target) {
			cs := source
			g.store.AddRelationship(rel.Source, rel.Target, rel.Type, &cs, timestamp)
		}
	}
}

// truncateSnippet caps text at max runes, marking the cut with "...".
func truncateSnippet(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// ProcessTranscript folds transcript segments into the graph. Speakers are
// registered up front so extracted relationships can attach to them, then
// segments are batched to keep the extraction call count down. Each batch is
// tagged transcript_batch_<startIndex> and stamped with its first segment's
// start time.
func (g *Graph) ProcessTranscript(ctx context.Context, transcript schemas.Transcript) {
	segments := transcript.Segments
	if len(segments) == 0 {
		g.log.Warn("Transcript has no segments")
		return
	}

	for _, segment := range segments {
		if segment.Speaker != "" && !g.store.HasEntity(segment.Speaker) {
			g.store.MergeEntity(segment.Speaker, "person", []string{"Speaker in transcript"}, "")
		}
	}

	for start := 0; start < len(segments); start += g.batchSize {
		end := start + g.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]

		texts := make([]string, 0, len(batch))
		for _, seg := range batch {
			if seg.Text != "" {
				texts = append(texts, seg.Text)
			}
		}
		combined := strings.Join(texts, " ")
		if strings.TrimSpace(combined) == "" {
			continue
		}

		timestamp := batch[0].Start
		source := fmt.Sprintf("transcript_batch_%d", start)
		g.log.Debug("Processing transcript batch",
			zap.String("source", source), zap.Int("segments", len(batch)))

		g.AddContent(ctx, combined, source, &timestamp)
	}
}

// ProcessDiagrams folds diagram OCR results into the graph. Each diagram also
// gets its own diagram_<i> marker entity so downstream queries can navigate
// back to the frame it came from.
func (g *Graph) ProcessDiagrams(ctx context.Context, diagrams []schemas.DiagramResult) {
	for i, diagram := range diagrams {
		source := fmt.Sprintf("diagram_%d", i)
		if diagram.TextContent != "" {
			g.AddContent(ctx, diagram.TextContent, source, nil)
		}

		if !g.store.HasEntity(source) {
			g.store.MergeEntity(source, "diagram", []string{"Visual diagram from video"}, "")
			text := fmt.Sprintf("frame_index=%d", diagram.FrameIndex)
			g.store.AddOccurrence(source, source, nil, &text)
			props := map[string]any{
				"frame_index": diagram.FrameIndex,
			}
			if diagram.Timestamp != nil {
				props["timestamp"] = *diagram.Timestamp
			}
			if diagram.DiagramType != "" {
				props["diagram_type"] = diagram.DiagramType
			}
			g.store.SetEntityProperties(source, props)
		}
	}
}

// Merge folds another graph into this one. Entities are identity-resolved
// through the normal merge path; relationships are appended verbatim, so
// merging the same graph twice doubles its relationship records.
func (g *Graph) Merge(other *Graph) {
	for _, entity := range other.store.GetAllEntities() {
		entityType := entity.Type
		if entityType == "" {
			entityType = schemas.DefaultEntityType
		}
		g.store.MergeEntity(entity.Name, entityType, entity.Descriptions, entity.Source)
		for _, occ := range entity.Occurrences {
			g.store.AddOccurrence(entity.Name, occ.Source, occ.Timestamp, occ.Text)
		}
	}

	for _, rel := range other.store.GetAllRelationships() {
		relType := rel.Type
		if relType == "" {
			relType = schemas.DefaultRelationshipType
		}
		g.store.AddRelationship(rel.Source, rel.Target, relType, rel.ContentSource, rel.Timestamp)
	}
}

// Snapshot returns the portable interchange form of the graph.
func (g *Graph) Snapshot() schemas.GraphSnapshot {
	return g.store.Snapshot()
}

// Save writes the graph to a JSON file, appending a .json suffix when the
// path has none.
func (g *Graph) Save(path string) (string, error) {
	if filepath.Ext(path) == "" {
		path += ".json"
	}
	if err := graphstore.WriteSnapshot(path, g.Snapshot()); err != nil {
		return "", err
	}
	g.log.Info("Saved knowledge graph",
		zap.Int("entities", g.store.EntityCount()),
		zap.Int("relationships", g.store.RelationshipCount()),
		zap.String("path", path))
	return path, nil
}

// Load replays a saved JSON graph into this one through the merge path, so
// loading into a non-empty graph behaves like Merge.
func (g *Graph) Load(path string) error {
	snap, err := graphstore.ReadSnapshot(path)
	if err != nil {
		return err
	}
	return graphstore.Restore(g.store, snap)
}

// Stats summarizes the graph.
func (g *Graph) Stats() schemas.GraphStats {
	return graphstore.Stats(g.store)
}

// Mermaid renders the maxNodes highest-degree entities and the relationships
// among them as a mermaid graph definition. maxNodes <= 0 uses the default.
func (g *Graph) Mermaid(maxNodes int) string {
	if maxNodes <= 0 {
		maxNodes = defaultMermaidNodes
	}
	return renderMermaid(g.store.GetAllEntities(), g.store.GetAllRelationships(), maxNodes)
}
