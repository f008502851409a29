// -- cmd/query.go --
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planopticon/planopticon/internal/graphquery"
	"github.com/planopticon/planopticon/internal/graphstore"
	"github.com/planopticon/planopticon/internal/observability"
)

// newQueryCmd creates the `query` command group for the structured query
// modes that run without a model.
func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Runs structured queries against the knowledge graph",
	}
	queryCmd.PersistentFlags().String("format", "text", "output format: text, json, or mermaid")

	queryCmd.AddCommand(newQueryEntitiesCmd())
	queryCmd.AddCommand(newQueryRelationshipsCmd())
	queryCmd.AddCommand(newQueryNeighborsCmd())
	queryCmd.AddCommand(newQueryStatsCmd())
	queryCmd.AddCommand(newQueryCypherCmd())
	return queryCmd
}

// openEngine opens the configured backend read-only and wraps it in a query
// engine. The caller must close the returned store.
func openEngine(llmRequired bool) (*graphquery.Engine, graphstore.GraphStore, error) {
	logger := observability.GetLogger()

	llm, err := buildLLM(logger)
	if err != nil {
		if llmRequired {
			return nil, nil, fmt.Errorf("this command needs a configured LLM provider: %w", err)
		}
		llm = nil
	}

	g, err := openKnowledge(llm, logger)
	if err != nil {
		if llm != nil {
			_ = llm.Close()
		}
		return nil, nil, err
	}
	engine := graphquery.New(g.Store(), llm, logger, activeConfig().Query.DefaultLimit)
	return engine, g.Store(), nil
}

// renderResult prints a query result in the requested format.
func renderResult(cmd *cobra.Command, res graphquery.Result) error {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "", "text":
		fmt.Fprintln(cmd.OutOrStdout(), res.Text())
	case "json":
		out, err := res.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	case "mermaid":
		fmt.Fprintln(cmd.OutOrStdout(), res.Mermaid())
	default:
		return fmt.Errorf("unknown output format %q (want text, json, or mermaid)", format)
	}
	return nil
}

func newQueryEntitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Lists entities, filtered by name substring and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(false)
			if err != nil {
				return err
			}
			defer store.Close()

			name, _ := cmd.Flags().GetString("name")
			entityType, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")
			return renderResult(cmd, engine.Entities(name, entityType, limit))
		},
	}
	cmd.Flags().String("name", "", "case-insensitive name substring")
	cmd.Flags().String("type", "", "exact entity type (person, concept, technology, ...)")
	cmd.Flags().Int("limit", 0, "maximum results (0 uses the configured default)")
	return cmd
}

func newQueryRelationshipsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relationships",
		Short: "Lists relationships, filtered by endpoint and type substrings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(false)
			if err != nil {
				return err
			}
			defer store.Close()

			source, _ := cmd.Flags().GetString("source")
			target, _ := cmd.Flags().GetString("target")
			relType, _ := cmd.Flags().GetString("rel-type")
			limit, _ := cmd.Flags().GetInt("limit")
			return renderResult(cmd, engine.Relationships(source, target, relType, limit))
		},
	}
	cmd.Flags().String("source", "", "source entity substring")
	cmd.Flags().String("target", "", "target entity substring")
	cmd.Flags().String("rel-type", "", "relationship type substring")
	cmd.Flags().Int("limit", 0, "maximum results (0 uses the configured default)")
	return cmd
}

func newQueryNeighborsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighbors <entity>",
		Short: "Walks the graph outward from an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(false)
			if err != nil {
				return err
			}
			defer store.Close()

			depth, _ := cmd.Flags().GetInt("depth")
			return renderResult(cmd, engine.Neighbors(args[0], depth))
		},
	}
	cmd.Flags().Int("depth", 1, "number of hops to walk")
	return cmd
}

func newQueryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Shows entity and relationship counts with a per-type breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(false)
			if err != nil {
				return err
			}
			defer store.Close()
			return renderResult(cmd, engine.Stats())
		},
	}
}

func newQueryCypherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cypher <query>",
		Short: "Runs a raw Cypher query against the embedded database backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(false)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := engine.Cypher(args[0])
			if errors.Is(err, graphstore.ErrRawQueryUnsupported) {
				return fmt.Errorf("raw queries need the embedded database backend; set graph.backend to 'nornic'")
			}
			if err != nil {
				return err
			}
			return renderResult(cmd, res)
		},
	}
}

// newAskCmd creates the `ask` command: a natural-language question answered
// through a guarded plan-execute-synthesize loop.
func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answers a natural-language question about the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(true)
			if err != nil {
				return err
			}
			defer store.Close()

			return renderResult(cmd, engine.Ask(cmd.Context(), args[0]))
		},
	}
	cmd.Flags().String("format", "text", "output format: text, json, or mermaid")
	return cmd
}
