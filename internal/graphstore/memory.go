// internal/graphstore/memory.go
package graphstore

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
)

// entityRecord is the mutable in-memory representation of one entity. The
// description set lives in a map; it is materialized sorted on read.
type entityRecord struct {
	name        string // First-seen display casing.
	entityType  string
	descs       map[string]struct{}
	occurrences []schemas.Occurrence
	source      string
	properties  map[string]any
}

// MemoryStore is the dependency-free in-process backend: a map keyed by
// lowercased entity name plus an append-only relationship list. It has no
// persistence and is intended as a disposable per-run scratch graph.
type MemoryStore struct {
	mu            sync.RWMutex
	nodes         map[string]*entityRecord
	relationships []schemas.Relationship
	log           *zap.Logger
}

var _ GraphStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new, empty in-memory graph store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		nodes: make(map[string]*entityRecord),
		log:   logger.Named("graphstore.memory"),
	}
}

func (s *MemoryStore) MergeEntity(name, entityType string, descriptions []string, source string) {
	key := strings.ToLower(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.nodes[key]; ok {
		for _, d := range descriptions {
			rec.descs[d] = struct{}{}
		}
		return
	}

	descs := make(map[string]struct{}, len(descriptions))
	for _, d := range descriptions {
		descs[d] = struct{}{}
	}
	s.nodes[key] = &entityRecord{
		name:       name,
		entityType: entityType,
		descs:      descs,
		source:     source,
	}
	s.log.Debug("Entity created", zap.String("name", name), zap.String("type", entityType))
}

func (s *MemoryStore) AddOccurrence(name, source string, timestamp *float64, text *string) {
	key := strings.ToLower(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[key]
	if !ok {
		return
	}
	rec.occurrences = append(rec.occurrences, schemas.Occurrence{
		Source:    source,
		Timestamp: timestamp,
		Text:      text,
	})
}

func (s *MemoryStore) AddRelationship(source, target, relType string, contentSource *string, timestamp *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bothEndpointsExistLocked(source, target) {
		s.log.Debug("Dropping relationship with missing endpoint",
			zap.String("source", source), zap.String("target", target))
		return
	}
	s.relationships = append(s.relationships, schemas.Relationship{
		Source:        source,
		Target:        target,
		Type:          relType,
		ContentSource: contentSource,
		Timestamp:     timestamp,
	})
}

func (s *MemoryStore) AddTypedRelationship(source, target, edgeLabel string, properties map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bothEndpointsExistLocked(source, target) {
		s.log.Debug("Dropping typed relationship with missing endpoint",
			zap.String("source", source), zap.String("target", target), zap.String("label", edgeLabel))
		return
	}
	rel := schemas.Relationship{
		Source: source,
		Target: target,
		Type:   edgeLabel,
	}
	if len(properties) > 0 {
		rel.Properties = make(map[string]any, len(properties))
		for k, v := range properties {
			rel.Properties[k] = v
		}
	}
	s.relationships = append(s.relationships, rel)
}

// bothEndpointsExistLocked assumes the caller holds at least a read lock.
func (s *MemoryStore) bothEndpointsExistLocked(source, target string) bool {
	_, srcOK := s.nodes[strings.ToLower(source)]
	_, tgtOK := s.nodes[strings.ToLower(target)]
	return srcOK && tgtOK
}

func (s *MemoryStore) SetEntityProperties(name string, properties map[string]any) bool {
	key := strings.ToLower(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[key]
	if !ok {
		return false
	}
	if rec.properties == nil {
		rec.properties = make(map[string]any, len(properties))
	}
	for k, v := range properties {
		rec.properties[k] = v
	}
	return true
}

func (s *MemoryStore) HasEntity(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.nodes[strings.ToLower(name)]
	return ok
}

func (s *MemoryStore) HasRelationship(source, target, edgeLabel string) bool {
	srcLower := strings.ToLower(source)
	tgtLower := strings.ToLower(target)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rel := range s.relationships {
		if strings.ToLower(rel.Source) == srcLower && strings.ToLower(rel.Target) == tgtLower {
			if edgeLabel == "" || rel.Type == edgeLabel {
				return true
			}
		}
	}
	return false
}

func (s *MemoryStore) GetEntity(name string) (*schemas.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.nodes[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	e := rec.materialize()
	return &e, true
}

func (s *MemoryStore) GetAllEntities() []schemas.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make([]schemas.Entity, 0, len(s.nodes))
	for _, rec := range s.nodes {
		entities = append(entities, rec.materialize())
	}
	return entities
}

func (s *MemoryStore) GetAllRelationships() []schemas.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rels := make([]schemas.Relationship, len(s.relationships))
	copy(rels, s.relationships)
	return rels
}

func (s *MemoryStore) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

func (s *MemoryStore) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.relationships)
}

// RawQuery always fails: the in-memory backend has no declarative query
// engine behind it.
func (s *MemoryStore) RawQuery(string) ([]map[string]any, error) {
	return nil, ErrRawQueryUnsupported
}

func (s *MemoryStore) Snapshot() schemas.GraphSnapshot {
	return snapshotOf(s)
}

func (s *MemoryStore) Close() error {
	return nil
}

// materialize converts the mutable record into the read-only schema form.
// The caller must hold at least a read lock.
func (r *entityRecord) materialize() schemas.Entity {
	descs := make([]string, 0, len(r.descs))
	for d := range r.descs {
		descs = append(descs, d)
	}
	sort.Strings(descs)

	occs := make([]schemas.Occurrence, len(r.occurrences))
	copy(occs, r.occurrences)

	e := schemas.Entity{
		Name:         r.name,
		Type:         r.entityType,
		Descriptions: descs,
		Occurrences:  occs,
		Source:       r.source,
	}
	if len(r.properties) > 0 {
		e.Properties = make(map[string]any, len(r.properties))
		for k, v := range r.properties {
			e.Properties[k] = v
		}
	}
	return e
}
