package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [document-id]",
	Short: "Show stored documents and their artifacts",
	Long: `Without arguments, list every document in the store. With a document id,
show that document's artifact details.

Examples:
  docqa-cli inspect                  # List all stored documents
  docqa-cli inspect --json           # List as JSON
  docqa-cli inspect 4f2c...          # Show one document's artifacts`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Bool("json", false, "output as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 1 {
		return inspectDocument(cmd, store, args[0], jsonOutput)
	}
	return listDocuments(cmd, store, jsonOutput)
}

func listDocuments(cmd *cobra.Command, store domain.ArtifactStore, jsonOutput bool) error {
	out := cmd.OutOrStdout()

	stored, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stored)
	}

	if len(stored) == 0 {
		fmt.Fprintln(out, "No documents stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tSTORED\tSIZE\tARTIFACTS")
	for _, doc := range stored {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			doc.ID,
			doc.StoredAt.Local().Format(time.DateTime),
			humanBytes(doc.SizeBytes),
			artifactBadge(doc.Complete),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d documents\n", len(stored))
	return nil
}

func inspectDocument(cmd *cobra.Command, store domain.ArtifactStore, docID string, jsonOutput bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	manifest, index, err := store.LoadArtifacts(ctx, docID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		// No completed artifacts; the source alone may still exist.
		raw, srcErr := store.LoadSource(ctx, docID)
		if errors.Is(srcErr, domain.ErrDocumentNotFound) {
			return fmt.Errorf("document %s is not in the store", docID)
		}
		if srcErr != nil {
			return fmt.Errorf("loading source: %w", srcErr)
		}
		color.New(color.FgYellow).Fprintf(out, "⚠ %s has no completed artifacts\n", docID)
		fmt.Fprintf(out, "source: %s (ingestion pending, failed or abandoned)\n", humanBytes(int64(len(raw))))
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading artifacts: %w", err)
	}

	if jsonOutput {
		detail := struct {
			DocumentID    string    `json:"document_id"`
			Filename      string    `json:"filename"`
			CreatedAt     time.Time `json:"created_at"`
			Chunks        int       `json:"chunks"`
			Dimension     int       `json:"dimension"`
			ContentDigest string    `json:"content_digest"`
		}{
			DocumentID:    manifest.DocumentID,
			Filename:      manifest.Filename,
			CreatedAt:     manifest.CreatedAt,
			Chunks:        len(manifest.Chunks),
			Dimension:     index.Dim(),
			ContentDigest: manifest.ContentDigest,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	bold := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("document:"), manifest.DocumentID)
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("filename:"), manifest.Filename)
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("ingested:"), manifest.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "%s %d chunks, %d-dimensional vectors\n", bold.Sprint("index:   "), index.Len(), index.Dim())
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("digest:  "), manifest.ContentDigest)
	return nil
}

func artifactBadge(complete bool) string {
	if complete {
		return color.GreenString("●") + " complete"
	}
	return color.YellowString("●") + " source only"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
