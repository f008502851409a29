// -- cmd/ingest.go --
package cmd

import (
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/observability"
)

// newIngestCmd creates the `ingest` command group. Ingestion runs model
// extraction over analysis artifacts and folds the results into the graph.
func newIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extracts entities and relationships from analysis artifacts into the graph",
	}
	ingestCmd.AddCommand(newIngestTranscriptCmd())
	ingestCmd.AddCommand(newIngestDiagramsCmd())
	ingestCmd.AddCommand(newIngestTextCmd())
	return ingestCmd
}

func newIngestTextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <file.txt>",
		Short: "Ingests a plain text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading text %s: %w", args[0], err)
			}

			llm, err := buildLLM(logger)
			if err != nil {
				return fmt.Errorf("text ingestion needs a configured LLM provider: %w", err)
			}
			defer llm.Close()

			g, err := openKnowledge(llm, logger)
			if err != nil {
				return err
			}
			defer g.Store().Close()

			source, _ := cmd.Flags().GetString("source")
			if source == "" {
				source = args[0]
			}
			g.AddContent(cmd.Context(), string(raw), source, nil)
			if err := persistKnowledge(g); err != nil {
				return err
			}

			stats := g.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s. Graph now holds %d entities and %d relationships.\n",
				args[0], stats.EntityCount, stats.RelationshipCount)
			return nil
		},
	}
	cmd.Flags().String("source", "", "provenance tag for extracted entities (defaults to the file path)")
	return cmd
}

func newIngestTranscriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <transcript.json>",
		Short: "Ingests a timestamped transcript file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading transcript %s: %w", args[0], err)
			}
			var transcript schemas.Transcript
			if err := json.Unmarshal(raw, &transcript); err != nil {
				return fmt.Errorf("parsing transcript %s: %w", args[0], err)
			}

			llm, err := buildLLM(logger)
			if err != nil {
				return fmt.Errorf("transcript ingestion needs a configured LLM provider: %w", err)
			}
			defer llm.Close()

			g, err := openKnowledge(llm, logger)
			if err != nil {
				return err
			}
			defer g.Store().Close()

			g.ProcessTranscript(cmd.Context(), transcript)
			if err := persistKnowledge(g); err != nil {
				return err
			}

			stats := g.Stats()
			logger.Info("Transcript ingested",
				zap.String("file", args[0]),
				zap.Int("segments", len(transcript.Segments)),
				zap.Int("entities", stats.EntityCount),
				zap.Int("relationships", stats.RelationshipCount),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d segments. Graph now holds %d entities and %d relationships.\n",
				len(transcript.Segments), stats.EntityCount, stats.RelationshipCount)
			return nil
		},
	}
}

func newIngestDiagramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagrams <diagrams.json>",
		Short: "Ingests diagram detection results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading diagrams %s: %w", args[0], err)
			}
			var diagrams []schemas.DiagramResult
			if err := json.Unmarshal(raw, &diagrams); err != nil {
				return fmt.Errorf("parsing diagrams %s: %w", args[0], err)
			}

			// Diagram ingestion degrades gracefully without a model: the
			// diagram entities themselves are still recorded.
			llm, err := buildLLM(logger)
			if err != nil {
				logger.Warn("No LLM provider available, ingesting diagrams without text extraction", zap.Error(err))
				llm = nil
			}
			if llm != nil {
				defer llm.Close()
			}

			g, err := openKnowledge(llm, logger)
			if err != nil {
				return err
			}
			defer g.Store().Close()

			g.ProcessDiagrams(cmd.Context(), diagrams)
			if err := persistKnowledge(g); err != nil {
				return err
			}

			stats := g.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d diagrams. Graph now holds %d entities and %d relationships.\n",
				len(diagrams), stats.EntityCount, stats.RelationshipCount)
			return nil
		},
	}
}
