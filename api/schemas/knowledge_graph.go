// api/schemas/knowledge_graph.go
package schemas

// -- Canonical Knowledge Graph Data Model --

// DefaultEntityType is assigned to entities extracted without an explicit
// classification tag.
const DefaultEntityType = "concept"

// DefaultRelationshipType is the label used for relationships that carry no
// more specific semantic type.
const DefaultRelationshipType = "related_to"

// Occurrence is a provenance record tying an entity back to the span of
// source content it was discovered in (a transcript batch, a diagram, ...).
type Occurrence struct {
	Source    string   `json:"source"`
	Timestamp *float64 `json:"timestamp"` // Seconds into the source video, when known.
	Text      *string  `json:"text"`      // Truncated snippet of the originating text.
}

// Entity is a named, typed node in the knowledge graph. Identity is the
// case-insensitive name; Name retains the casing of whichever content stream
// created the entity first. Descriptions form a deduplicated set (order is
// not significant); Occurrences are append-only in call order.
type Entity struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Descriptions []string       `json:"descriptions"`
	Occurrences  []Occurrence   `json:"occurrences"`
	Source       string         `json:"source,omitempty"`     // Origin tag, e.g. "transcript" or "diagram".
	Properties   map[string]any `json:"properties,omitempty"` // Free-form key/value bag.
}

// Relationship is a directed, typed edge between two entities, referenced by
// display name. Relationships are intentionally not deduplicated: the store
// records every assertion, and integrators that need uniqueness must check
// with HasRelationship before adding.
type Relationship struct {
	Source        string         `json:"source"`
	Target        string         `json:"target"`
	Type          string         `json:"type"`
	ContentSource *string        `json:"content_source,omitempty"`
	Timestamp     *float64       `json:"timestamp,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// GraphSnapshot is the portable interchange representation of a graph. It is
// the sole on-disk format and must round-trip losslessly except for the
// ordering of each entity's description set.
type GraphSnapshot struct {
	Nodes         []Entity       `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// GraphStats summarizes a graph: totals plus a per-type entity breakdown.
type GraphStats struct {
	EntityCount       int            `json:"entity_count"`
	RelationshipCount int            `json:"relationship_count"`
	EntityTypes       map[string]int `json:"entity_types"`
	StoreType         string         `json:"store_type,omitempty"`
}

// -- Upstream Content Schemas --

// TranscriptSegment is a single segment of transcribed audio, as produced by
// the (external) transcription collaborator.
type TranscriptSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Speaker    string   `json:"speaker,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Transcript is an ordered sequence of transcribed segments for one video.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
}

// DiagramResult is the slice of the (external) vision collaborator's output
// the knowledge graph cares about: extracted text plus frame provenance.
type DiagramResult struct {
	FrameIndex  int      `json:"frame_index"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
	DiagramType string   `json:"diagram_type,omitempty"`
	TextContent string   `json:"text_content,omitempty"`
}

// -- Extraction Schemas --

// ExtractedEntity is one entity candidate as returned by the extraction
// model: a free-form type/name/description tuple.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelationship is one relationship candidate from the extraction
// model, referencing entities by name.
type ExtractedRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ExtractionResult is the structured object the extraction prompt asks the
// model for. Models sometimes return a bare entity array instead; the
// integration layer tolerates that shape separately.
type ExtractionResult struct {
	Entities      []ExtractedEntity      `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}
