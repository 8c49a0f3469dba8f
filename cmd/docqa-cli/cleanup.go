package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docqa/internal/worker"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy to stored documents",
	Long: `Remove documents past the retention age, incomplete artifact sets past
their grace period, and the oldest documents over the count cap.

The policy defaults come from the environment; flags override them per run.

Examples:
  docqa-cli cleanup                         # Apply the configured policy
  docqa-cli cleanup --dry-run               # Show what would be removed
  docqa-cli cleanup --max-age 48h           # Override the retention age
  docqa-cli cleanup --max-documents 100     # Override the document cap`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Bool("dry-run", false, "report removals without deleting anything")
	cleanupCmd.Flags().Duration("max-age", 0, "retention age override (0 uses config)")
	cleanupCmd.Flags().Int("max-documents", 0, "document cap override (0 uses config)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	maxAge, _ := cmd.Flags().GetDuration("max-age")
	maxDocuments, _ := cmd.Flags().GetInt("max-documents")

	policy := worker.DefaultJanitorPolicy()
	policy.MaxAge = cfg.Worker.MaxDocumentAge
	policy.MaxDocuments = cfg.Worker.MaxDocuments
	if maxAge > 0 {
		policy.MaxAge = maxAge
	}
	if maxDocuments > 0 {
		policy.MaxDocuments = maxDocuments
	}
	policy.DryRun = dryRun

	// Offline run: no registry, so the orphan grace period is the only
	// protection for in-flight ingestions. Stop the server first or keep
	// the grace period generous.
	janitor := worker.NewJanitor(store, nil, policy, 0, logger)
	report, err := janitor.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(report.Removed) == 0 && len(report.Failed) == 0 {
		color.New(color.FgGreen).Fprintf(out, "✓ Nothing to remove (%d documents scanned)\n", report.Scanned)
		return nil
	}

	for _, action := range report.Removed {
		if dryRun {
			fmt.Fprintf(out, "would remove %s (%s)\n", color.New(color.Bold).Sprint(action.DocumentID), action.Reason)
		} else {
			color.New(color.FgGreen).Fprintf(out, "✓ removed %s (%s)\n", action.DocumentID, action.Reason)
		}
	}
	for _, failure := range report.Failed {
		color.New(color.FgRed).Fprintf(out, "✗ failed to remove %s: %s\n", failure.DocumentID, failure.Reason)
	}

	verb := "removed"
	if dryRun {
		verb = "would remove"
	}
	fmt.Fprintf(out, "\n%d scanned, %s %d, %d failed\n", report.Scanned, verb, len(report.Removed), len(report.Failed))

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d removals failed", len(report.Failed))
	}
	return nil
}
