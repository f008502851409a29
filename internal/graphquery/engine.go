// internal/graphquery/engine.go
package graphquery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/graphstore"
	"github.com/planopticon/planopticon/internal/llmutil"
)

const defaultLimit = 50

// The closed set of plan actions the model may choose. The prompt menu and
// the dispatch switch in Ask are both built from these.
const (
	actionEntities      = "entities"
	actionRelationships = "relationships"
	actionNeighbors     = "neighbors"
	actionStats         = "stats"
)

// planPromptFormat constrains the model to a closed menu of four actions.
// The model never writes backend query text; it only fills in filter values.
// Arguments: stats JSON, the four action names, the question.
const planPromptFormat = `You are a query planner for a knowledge graph extracted from video content.

Graph statistics:
%s

Choose exactly ONE action that best answers the user's question.

Available actions:
1. {"action": "%s", "name": "<name substring or empty>", "entity_type": "<type or empty>"}
2. {"action": "%s", "source": "<substring or empty>", "target": "<substring or empty>", "rel_type": "<substring or empty>"}
3. {"action": "%s", "entity_name": "<exact entity name>", "depth": <1 or 2>}
4. {"action": "%s"}

Question: %s

Return ONLY the JSON object for the chosen action.`

const synthesisPromptFormat = `Answer the question using only the query results below.

Question: %s

Query results:
%s

Give a concise, direct answer. If the results do not contain enough information, say so.`

type queryPlan struct {
	Action     string `json:"action"`
	Name       string `json:"name,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
	Source     string `json:"source,omitempty"`
	Target     string `json:"target,omitempty"`
	RelType    string `json:"rel_type,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
	Depth      int    `json:"depth,omitempty"`
}

// Engine runs queries against a graph store. The llm client is optional;
// without one every direct query still works and only Ask degrades to an
// explanatory result.
type Engine struct {
	store graphstore.GraphStore
	llm   schemas.LLMClient
	log   *zap.Logger
	limit int
}

// New builds a query engine. A nil logger is replaced with a no-op logger,
// a non-positive defaultLimit falls back to 50.
func New(store graphstore.GraphStore, llm schemas.LLMClient, logger *zap.Logger, limit int) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Engine{
		store: store,
		llm:   llm,
		log:   logger.Named("graphquery"),
		limit: limit,
	}
}

// Entities returns entities whose name contains the given substring
// (case-insensitive) and whose type matches exactly (case-insensitive).
// Empty filters match everything. Results are sorted by name and capped at
// limit (0 means the engine default).
func (e *Engine) Entities(name, entityType string, limit int) Result {
	if limit <= 0 {
		limit = e.limit
	}
	nameLower := strings.ToLower(name)
	typeLower := strings.ToLower(entityType)

	var matched []schemas.Entity
	for _, ent := range e.store.GetAllEntities() {
		if nameLower != "" && !strings.Contains(strings.ToLower(ent.Name), nameLower) {
			continue
		}
		if typeLower != "" && strings.ToLower(ent.Type) != typeLower {
			continue
		}
		matched = append(matched, ent)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []schemas.Entity{}
	}

	return Result{
		Data:        matched,
		Kind:        KindFilter,
		Query:       fmt.Sprintf("entities(name=%s, entity_type=%s, limit=%d)", name, entityType, limit),
		Explanation: fmt.Sprintf("Found %d entities", len(matched)),
	}
}

// Relationships returns relationships whose source, target, and type each
// contain the corresponding substring (case-insensitive). Empty filters
// match everything.
func (e *Engine) Relationships(source, target, relType string, limit int) Result {
	if limit <= 0 {
		limit = e.limit
	}
	srcLower := strings.ToLower(source)
	tgtLower := strings.ToLower(target)
	typLower := strings.ToLower(relType)

	matched := []schemas.Relationship{}
	for _, rel := range e.store.GetAllRelationships() {
		if srcLower != "" && !strings.Contains(strings.ToLower(rel.Source), srcLower) {
			continue
		}
		if tgtLower != "" && !strings.Contains(strings.ToLower(rel.Target), tgtLower) {
			continue
		}
		if typLower != "" && !strings.Contains(strings.ToLower(rel.Type), typLower) {
			continue
		}
		matched = append(matched, rel)
		if len(matched) >= limit {
			break
		}
	}

	return Result{
		Data:        matched,
		Kind:        KindFilter,
		Query:       fmt.Sprintf("relationships(source=%s, target=%s, rel_type=%s, limit=%d)", source, target, relType, limit),
		Explanation: fmt.Sprintf("Found %d relationships", len(matched)),
	}
}

// Neighbors walks the graph breadth-first from the named entity. Each hop
// scans the full relationship list and includes every relationship touching
// the current frontier, then expands the frontier with endpoints not yet
// visited. The result data lists entity records first, relationships after.
func (e *Engine) Neighbors(name string, depth int) Result {
	raw := fmt.Sprintf("neighbors(entity_name=%s, depth=%d)", name, depth)

	seed, ok := e.store.GetEntity(name)
	if !ok {
		return Result{
			Data:        []any{},
			Kind:        KindFilter,
			Query:       raw,
			Explanation: fmt.Sprintf("Entity '%s' not found", name),
		}
	}
	if depth <= 0 {
		depth = 1
	}

	seedKey := strings.ToLower(name)
	visited := map[string]struct{}{seedKey: {}}
	frontier := map[string]struct{}{seedKey: {}}

	entities := []schemas.Entity{*seed}
	var rels []schemas.Relationship
	all := e.store.GetAllRelationships()

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		next := make(map[string]struct{})
		for _, rel := range all {
			srcKey := strings.ToLower(rel.Source)
			tgtKey := strings.ToLower(rel.Target)
			_, srcIn := frontier[srcKey]
			_, tgtIn := frontier[tgtKey]
			if !srcIn && !tgtIn {
				continue
			}
			rels = append(rels, rel)
			for _, end := range []struct{ key, name string }{{srcKey, rel.Source}, {tgtKey, rel.Target}} {
				if _, seen := visited[end.key]; seen {
					continue
				}
				visited[end.key] = struct{}{}
				next[end.key] = struct{}{}
				if ent, found := e.store.GetEntity(end.name); found {
					entities = append(entities, *ent)
				}
			}
		}
		frontier = next
	}

	data := make([]any, 0, len(entities)+len(rels))
	for _, ent := range entities {
		data = append(data, ent)
	}
	for _, rel := range rels {
		data = append(data, rel)
	}

	return Result{
		Data:        data,
		Kind:        KindFilter,
		Query:       raw,
		Explanation: fmt.Sprintf("Found %d entities and %d relationships", len(entities), len(rels)),
	}
}

// Stats summarizes the graph: totals plus a per-type entity breakdown.
func (e *Engine) Stats() Result {
	stats := graphstore.Stats(e.store)
	return Result{
		Data:        stats,
		Kind:        KindFilter,
		Query:       "stats()",
		Explanation: "Knowledge graph statistics",
	}
}

// Cypher passes a backend-native query straight through. Backends without a
// query engine return graphstore.ErrRawQueryUnsupported, which is surfaced
// unchanged so callers can tell the user to switch backends.
func (e *Engine) Cypher(query string) (Result, error) {
	rows, err := e.store.RawQuery(query)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:        rows,
		Kind:        KindCypher,
		Query:       query,
		Explanation: fmt.Sprintf("Cypher query returned %d rows", len(rows)),
	}, nil
}

// Ask answers a natural-language question. The model plans one action from a
// closed menu, the engine executes it locally, and a second model call
// phrases the answer. Every failure mode degrades to an explanatory result;
// Ask never returns an error.
func (e *Engine) Ask(ctx context.Context, question string) Result {
	if e.llm == nil {
		return Result{
			Kind:        KindAgentic,
			Query:       question,
			Explanation: "Agentic mode requires a configured LLM provider.",
		}
	}

	statsJSON, err := json.MarshalIndent(graphstore.Stats(e.store), "", "  ")
	if err != nil {
		statsJSON = []byte("{}")
	}

	planResp, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: fmt.Sprintf(planPromptFormat, statsJSON,
			actionEntities, actionRelationships, actionNeighbors, actionStats, question),
		Tier:       schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			MaxTokens:       256,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		e.log.Warn("Query planning call failed.", zap.Error(err))
		return Result{
			Kind:        KindAgentic,
			Query:       question,
			Explanation: fmt.Sprintf("LLM planning failed: %v", err),
		}
	}

	plan, err := llmutil.ParseJSONResponse[queryPlan](planResp)
	if err != nil || plan.Action == "" {
		e.log.Warn("Query plan did not parse.", zap.Error(err))
		return Result{
			Kind:        KindAgentic,
			Query:       question,
			Explanation: "Could not parse LLM query plan from response.",
		}
	}
	e.log.Debug("Executing query plan.", zap.String("action", plan.Action))

	var executed Result
	switch plan.Action {
	case actionEntities:
		executed = e.Entities(plan.Name, plan.EntityType, 0)
	case actionRelationships:
		executed = e.Relationships(plan.Source, plan.Target, plan.RelType, 0)
	case actionNeighbors:
		executed = e.Neighbors(plan.EntityName, plan.Depth)
	case actionStats:
		executed = e.Stats()
	default:
		return Result{
			Kind:        KindAgentic,
			Query:       question,
			Explanation: fmt.Sprintf("Unknown action in plan: %s", plan.Action),
		}
	}

	answer, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: fmt.Sprintf(synthesisPromptFormat, question, executed.Text()),
		Tier:       schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: 0.3,
			MaxTokens:   1024,
		},
	})
	if err != nil {
		e.log.Warn("Answer synthesis failed, returning raw results.", zap.Error(err))
		return Result{
			Data:        executed.Data,
			Kind:        KindAgentic,
			Query:       question,
			Explanation: fmt.Sprintf("LLM synthesis failed (%v), showing raw results", err),
		}
	}

	return Result{
		Data:        executed.Data,
		Kind:        KindAgentic,
		Query:       question,
		Explanation: strings.TrimSpace(llmutil.CleanTextOutput(answer)),
	}
}
