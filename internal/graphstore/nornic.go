// internal/graphstore/nornic.go
package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/orneryd/nornicdb/pkg/nornicdb"
	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
)

// occurrenceEdge links an entity to its occurrence nodes. These edges are
// internal bookkeeping and are excluded from relationship counts.
const occurrenceEdge = "OCCURRED_IN"

// relEdge is the single physical label every user relationship is stored
// under; the semantic type lives in the edge's "type" property. Keeping one
// static label means no query ever interpolates a caller-supplied string.
const relEdge = "REL"

// relPayload carries the nullable relationship fields through a single
// JSON-encoded edge property, sidestepping engine-specific null handling.
type relPayload struct {
	ContentSource *string        `json:"content_source,omitempty"`
	Timestamp     *float64       `json:"timestamp,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// occPayload is the JSON-encoded body of one occurrence node.
type occPayload struct {
	Source    string   `json:"source"`
	Timestamp *float64 `json:"timestamp"`
	Text      *string  `json:"text"`
}

// NornicStore persists the knowledge graph in an embedded NornicDB instance
// addressed by a local data directory. All access goes through fixed,
// reviewed Cypher templates with named parameters.
//
// Entities are (:Entity) nodes keyed by a lowercased name_lower property;
// occurrence records live in separate (:Occurrence) nodes connected by
// OCCURRED_IN bookkeeping edges. The store survives process restarts.
type NornicStore struct {
	db  *nornicdb.DB
	log *zap.Logger
	seq int64
}

var _ GraphStore = (*NornicStore)(nil)

// OpenNornic opens (or creates) an embedded graph database at dataDir. The
// engine's background machinery (decay, inferred links, async writes) is
// disabled: this store is a plain synchronous graph.
func OpenNornic(dataDir string, logger *zap.Logger) (*NornicStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := nornicdb.DefaultConfig()
	cfg.Database.DataDir = dataDir
	cfg.Database.AsyncWritesEnabled = false
	cfg.Memory.DecayEnabled = false
	cfg.Memory.AutoLinksEnabled = false

	db, err := nornicdb.Open(dataDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening graph database at %s: %w", dataDir, err)
	}

	s := &NornicStore{db: db, log: logger.Named("graphstore.nornic")}
	s.ensureIndexes()
	return s, nil
}

// ensureIndexes creates the lookup indexes used by every entity query.
// Failures are swallowed: the usual cause is that the index already exists.
func (s *NornicStore) ensureIndexes() {
	for _, q := range []string{
		"CREATE INDEX FOR (e:Entity) ON (e.name_lower)",
		"CREATE INDEX FOR (e:Entity) ON (e.type)",
	} {
		if _, err := s.db.Cypher(context.Background(), q, nil); err != nil {
			s.log.Debug("Index creation skipped", zap.String("query", q), zap.Error(err))
		}
	}
}

func (s *NornicStore) query(q string, params map[string]any) ([]map[string]any, error) {
	return s.db.Cypher(context.Background(), q, params)
}

func (s *NornicStore) MergeEntity(name, entityType string, descriptions []string, source string) {
	nameLower := strings.ToLower(name)

	rows, err := s.query(
		"MATCH (e:Entity {name_lower: $name_lower}) RETURN e.descriptions AS descriptions",
		map[string]any{"name_lower": nameLower},
	)
	if err != nil {
		s.log.Error("Entity lookup failed during merge", zap.String("name", name), zap.Error(err))
		return
	}

	if len(rows) > 0 {
		// Existing entity: union descriptions in two round trips. Concurrent
		// writers are not supported, so read-modify-write is safe here.
		existing := decodeStringSlice(rows[0]["descriptions"])
		merged := unionDescriptions(existing, descriptions)
		_, err := s.query(
			"MATCH (e:Entity {name_lower: $name_lower}) SET e.descriptions = $descs",
			map[string]any{"name_lower": nameLower, "descs": encodeJSON(merged)},
		)
		if err != nil {
			s.log.Error("Description merge failed", zap.String("name", name), zap.Error(err))
		}
		return
	}

	_, err = s.query(
		"CREATE (e:Entity {name: $name, name_lower: $name_lower, type: $type, descriptions: $descs, source: $source, props: $props})",
		map[string]any{
			"name":       name,
			"name_lower": nameLower,
			"type":       entityType,
			"descs":      encodeJSON(unionDescriptions(nil, descriptions)),
			"source":     source,
			"props":      "{}",
		},
	)
	if err != nil {
		s.log.Error("Entity creation failed", zap.String("name", name), zap.Error(err))
	}
}

func (s *NornicStore) AddOccurrence(name, source string, timestamp *float64, text *string) {
	s.seq++
	payload := encodeJSON(occPayload{Source: source, Timestamp: timestamp, Text: text})

	// MATCH-then-CREATE: zero effect when the entity is missing, matching the
	// contract's silent no-op.
	_, err := s.query(
		"MATCH (e:Entity {name_lower: $name_lower}) "+
			"CREATE (o:Occurrence {id: $id, data: $data, seq: $seq}) "+
			"CREATE (e)-[:OCCURRED_IN]->(o)",
		map[string]any{
			"name_lower": strings.ToLower(name),
			"id":         uuid.NewString(),
			"data":       payload,
			"seq":        s.seq,
		},
	)
	if err != nil {
		s.log.Error("Occurrence insert failed", zap.String("name", name), zap.Error(err))
	}
}

func (s *NornicStore) AddRelationship(source, target, relType string, contentSource *string, timestamp *float64) {
	s.addEdge(source, target, relType, relPayload{ContentSource: contentSource, Timestamp: timestamp})
}

func (s *NornicStore) AddTypedRelationship(source, target, edgeLabel string, properties map[string]any) {
	s.addEdge(source, target, edgeLabel, relPayload{Properties: properties})
}

func (s *NornicStore) addEdge(source, target, relType string, payload relPayload) {
	// Both endpoints are matched in one statement; if either is absent the
	// statement executes with zero effect and no error is surfaced.
	_, err := s.query(
		"MATCH (a:Entity {name_lower: $src_lower}) "+
			"MATCH (b:Entity {name_lower: $tgt_lower}) "+
			"CREATE (a)-[:REL {type: $type, data: $data}]->(b)",
		map[string]any{
			"src_lower": strings.ToLower(source),
			"tgt_lower": strings.ToLower(target),
			"type":      relType,
			"data":      encodeJSON(payload),
		},
	)
	if err != nil {
		s.log.Error("Relationship insert failed",
			zap.String("source", source), zap.String("target", target), zap.Error(err))
	}
}

func (s *NornicStore) SetEntityProperties(name string, properties map[string]any) bool {
	nameLower := strings.ToLower(name)

	rows, err := s.query(
		"MATCH (e:Entity {name_lower: $name_lower}) RETURN e.props AS props",
		map[string]any{"name_lower": nameLower},
	)
	if err != nil || len(rows) == 0 {
		return false
	}

	merged := decodeStringMap(rows[0]["props"])
	for k, v := range properties {
		merged[k] = v
	}
	_, err = s.query(
		"MATCH (e:Entity {name_lower: $name_lower}) SET e.props = $props",
		map[string]any{"name_lower": nameLower, "props": encodeJSON(merged)},
	)
	if err != nil {
		s.log.Error("Property merge failed", zap.String("name", name), zap.Error(err))
		return false
	}
	return true
}

func (s *NornicStore) HasEntity(name string) bool {
	rows, err := s.query(
		"MATCH (e:Entity {name_lower: $name_lower}) RETURN count(e) AS c",
		map[string]any{"name_lower": strings.ToLower(name)},
	)
	if err != nil || len(rows) == 0 {
		return false
	}
	return asInt(rows[0]["c"]) > 0
}

func (s *NornicStore) HasRelationship(source, target, edgeLabel string) bool {
	params := map[string]any{
		"src_lower": strings.ToLower(source),
		"tgt_lower": strings.ToLower(target),
	}
	q := "MATCH (a:Entity {name_lower: $src_lower})-[r:REL]->(b:Entity {name_lower: $tgt_lower}) "
	if edgeLabel != "" {
		q += "WHERE r.type = $label "
		params["label"] = edgeLabel
	}
	q += "RETURN count(r) AS c"

	rows, err := s.query(q, params)
	if err != nil || len(rows) == 0 {
		return false
	}
	return asInt(rows[0]["c"]) > 0
}

func (s *NornicStore) GetEntity(name string) (*schemas.Entity, bool) {
	nameLower := strings.ToLower(name)

	rows, err := s.query(
		"MATCH (e:Entity {name_lower: $name_lower}) "+
			"RETURN e.name AS name, e.type AS type, e.descriptions AS descriptions, e.source AS source, e.props AS props",
		map[string]any{"name_lower": nameLower},
	)
	if err != nil || len(rows) == 0 {
		return nil, false
	}

	e := s.rowToEntity(rows[0])
	e.Occurrences = s.occurrencesFor(nameLower)
	return &e, true
}

func (s *NornicStore) GetAllEntities() []schemas.Entity {
	rows, err := s.query(
		"MATCH (e:Entity) "+
			"RETURN e.name AS name, e.name_lower AS name_lower, e.type AS type, e.descriptions AS descriptions, e.source AS source, e.props AS props",
		nil,
	)
	if err != nil {
		s.log.Error("Entity scan failed", zap.Error(err))
		return nil
	}

	entities := make([]schemas.Entity, 0, len(rows))
	for _, row := range rows {
		e := s.rowToEntity(row)
		e.Occurrences = s.occurrencesFor(asString(row["name_lower"]))
		entities = append(entities, e)
	}
	return entities
}

func (s *NornicStore) rowToEntity(row map[string]any) schemas.Entity {
	entityType := asString(row["type"])
	if entityType == "" {
		entityType = schemas.DefaultEntityType
	}
	e := schemas.Entity{
		Name:         asString(row["name"]),
		Type:         entityType,
		Descriptions: decodeStringSlice(row["descriptions"]),
		Source:       asString(row["source"]),
	}
	if props := decodeStringMap(row["props"]); len(props) > 0 {
		e.Properties = props
	}
	return e
}

func (s *NornicStore) occurrencesFor(nameLower string) []schemas.Occurrence {
	rows, err := s.query(
		"MATCH (e:Entity {name_lower: $name_lower})-[:OCCURRED_IN]->(o:Occurrence) "+
			"RETURN o.data AS data, o.seq AS seq",
		map[string]any{"name_lower": nameLower},
	)
	if err != nil {
		s.log.Error("Occurrence scan failed", zap.String("name", nameLower), zap.Error(err))
		return nil
	}

	// Append order is restored from the per-store sequence counter; the
	// engine does not guarantee row order.
	sort.Slice(rows, func(i, j int) bool {
		return asInt(rows[i]["seq"]) < asInt(rows[j]["seq"])
	})

	occs := make([]schemas.Occurrence, 0, len(rows))
	for _, row := range rows {
		var p occPayload
		if err := json.UnmarshalFromString(asString(row["data"]), &p); err != nil {
			continue
		}
		occs = append(occs, schemas.Occurrence{Source: p.Source, Timestamp: p.Timestamp, Text: p.Text})
	}
	return occs
}

func (s *NornicStore) GetAllRelationships() []schemas.Relationship {
	rows, err := s.query(
		"MATCH (a:Entity)-[r:REL]->(b:Entity) "+
			"RETURN a.name AS source, b.name AS target, r.type AS type, r.data AS data",
		nil,
	)
	if err != nil {
		s.log.Error("Relationship scan failed", zap.Error(err))
		return nil
	}

	rels := make([]schemas.Relationship, 0, len(rows))
	for _, row := range rows {
		relType := asString(row["type"])
		if relType == "" {
			relType = schemas.DefaultRelationshipType
		}
		rel := schemas.Relationship{
			Source: asString(row["source"]),
			Target: asString(row["target"]),
			Type:   relType,
		}
		var p relPayload
		if err := json.UnmarshalFromString(asString(row["data"]), &p); err == nil {
			rel.ContentSource = p.ContentSource
			rel.Timestamp = p.Timestamp
			if len(p.Properties) > 0 {
				rel.Properties = p.Properties
			}
		}
		rels = append(rels, rel)
	}
	return rels
}

func (s *NornicStore) EntityCount() int {
	rows, err := s.query("MATCH (e:Entity) RETURN count(e) AS c", nil)
	if err != nil || len(rows) == 0 {
		return 0
	}
	return asInt(rows[0]["c"])
}

func (s *NornicStore) RelationshipCount() int {
	total := 0
	if rows, err := s.query("MATCH ()-[r]->() RETURN count(r) AS c", nil); err == nil && len(rows) > 0 {
		total = asInt(rows[0]["c"])
	}
	// Occurrence links are internal bookkeeping, not user relationships.
	occ := 0
	if rows, err := s.query("MATCH ()-[r:OCCURRED_IN]->() RETURN count(r) AS c", nil); err == nil && len(rows) > 0 {
		occ = asInt(rows[0]["c"])
	}
	return total - occ
}

// RawQuery executes a caller-supplied Cypher query verbatim and returns the
// raw rows.
func (s *NornicStore) RawQuery(query string) ([]map[string]any, error) {
	rows, err := s.db.Cypher(context.Background(), query, nil)
	if err != nil {
		return nil, fmt.Errorf("executing raw query: %w", err)
	}
	return rows, nil
}

func (s *NornicStore) Snapshot() schemas.GraphSnapshot {
	return snapshotOf(s)
}

// Close releases the engine's file handles. Safe to call once on every exit
// path.
func (s *NornicStore) Close() error {
	return s.db.Close()
}

// -- row decoding helpers --

func encodeJSON(v any) string {
	out, err := json.MarshalToString(v)
	if err != nil {
		return "{}"
	}
	return out
}

func decodeStringSlice(v any) []string {
	raw := asString(v)
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.UnmarshalFromString(raw, &out); err != nil {
		return []string{}
	}
	return out
}

func decodeStringMap(v any) map[string]any {
	out := map[string]any{}
	raw := asString(v)
	if raw == "" {
		return out
	}
	_ = json.UnmarshalFromString(raw, &out)
	return out
}

func unionDescriptions(existing, added []string) []string {
	set := make(map[string]struct{}, len(existing)+len(added))
	for _, d := range existing {
		set[d] = struct{}{}
	}
	for _, d := range added {
		set[d] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
