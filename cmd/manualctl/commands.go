package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/parser"
	"github.com/dgallion1/manualbot/internal/rag"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the chunk tables and indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := svc.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema ready.")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest manuals synchronously",
	Long: `Extracts text from each file, splits it into parent and child chunks,
embeds the children and stores everything. Supported types: ` + strings.Join(parser.ExtensionList(), ", ") + `.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question and stream the answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document>",
	Short: "Delete a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteDocument(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List stored documents with chunk counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		docs, err := svc.ListDocuments(cmd.Context())
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
			return nil
		}
		for _, d := range docs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tparents=%d\tchildren=%d\n", d.Name, d.ParentCount, d.ChildCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd, ingestCmd, askCmd, deleteCmd, documentsCmd)
}

// runIngest processes every file and reports a combined error if any failed.
func runIngest(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			cmd.PrintErrf("%s: %v\n", path, err)
			failed++
			continue
		}
		res, err := svc.ProcessDocument(cmd.Context(), data, name)
		if err != nil {
			cmd.PrintErrf("%s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d parent chunks, %d child chunks\n", res.DocumentName, res.ParentChunks, res.ChildChunks)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	var streamErr error
	var sources []domain.Citation
	for ev := range svc.AnswerStream(cmd.Context(), nil, args[0]) {
		switch ev.Kind {
		case rag.EventDelta:
			fmt.Fprint(cmd.OutOrStdout(), ev.Text)
		case rag.EventSources:
			sources = ev.Citations
		case rag.EventError:
			streamErr = ev.Err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout())
	if streamErr != nil {
		return streamErr
	}
	if len(sources) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
		for i, c := range sources {
			fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s\n", i+1, formatCitation(c))
		}
	}
	return nil
}

func formatCitation(c domain.Citation) string {
	var b strings.Builder
	b.WriteString(c.DocumentName)
	if c.PageNumber != nil {
		fmt.Fprintf(&b, ", page %d", *c.PageNumber)
	}
	if c.SectionTitle != nil {
		fmt.Fprintf(&b, ", %q", *c.SectionTitle)
	}
	fmt.Fprintf(&b, " (%.2f)", c.Similarity)
	return b.String()
}
