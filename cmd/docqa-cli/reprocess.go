package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <document-id>",
	Short: "Queue a document for re-ingestion on a running server",
	Long: `Ask a running server to rebuild a document's chunks and vector index from
its stored source. The server picks the work up on its ingestion workers.

The server address comes from --server, then $DOCQA_SERVER_URL, then the
configured port on localhost.

Examples:
  docqa-cli reprocess 4f2c...
  docqa-cli reprocess 4f2c... --server http://docqa.internal:8080`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(reprocessCmd)

	reprocessCmd.Flags().String("server", "", "server base URL")
}

func runReprocess(cmd *cobra.Command, args []string) error {
	docID := args[0]

	base, _ := cmd.Flags().GetString("server")
	if base == "" {
		base = os.Getenv("DOCQA_SERVER_URL")
	}
	if base == "" {
		base = "http://localhost:" + cfg.Server.Port
	}

	url := strings.TrimRight(base, "/") + "/v1/documents/" + docID + "/reprocess"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching server at %s: %w", base, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ document %s queued for reprocessing\n", docID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("document %s is not tracked by the server", docID)
	case http.StatusConflict:
		return fmt.Errorf("an ingestion for document %s is already in flight", docID)
	default:
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
}
