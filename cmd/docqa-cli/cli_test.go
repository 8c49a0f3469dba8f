package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docqa/internal/adapter/repository"
	"docqa/internal/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// setupStoreTest points the CLI at a throwaway fs store and returns a direct
// handle on it for seeding.
func setupStoreTest(t *testing.T) (string, *repository.FSStore) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("STORAGE_ROOT", root)
	resetFlags(t)

	store, err := repository.NewFSStore(root, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return root, store
}

// resetFlags restores flag defaults between runs; flag values persist on the
// shared command tree.
func resetFlags(t *testing.T) {
	t.Helper()
	for _, set := range []struct{ cmd, flag, value string }{
		{"cleanup", "dry-run", "false"},
		{"cleanup", "max-age", "0s"},
		{"cleanup", "max-documents", "0"},
		{"inspect", "json", "false"},
		{"reprocess", "server", ""},
	} {
		cmd, _, err := rootCmd.Find([]string{set.cmd})
		if err != nil {
			t.Fatalf("finding command %s: %v", set.cmd, err)
		}
		if err := cmd.Flags().Set(set.flag, set.value); err != nil {
			t.Fatalf("resetting --%s: %v", set.flag, err)
		}
	}
}

func seedCompletedDocument(t *testing.T, store *repository.FSStore, docID string) {
	t.Helper()
	ctx := context.Background()
	raw := []byte("the pump manual text")
	if err := store.SaveSource(ctx, docID, raw); err != nil {
		t.Fatalf("saving source: %v", err)
	}

	index := domain.NewVectorIndex(2)
	if err := index.Build([]domain.IndexEntry{
		{ChunkID: 0, Page: 1, Vector: []float32{1, 0}},
		{ChunkID: 1, Page: 1, Vector: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("building index: %v", err)
	}
	manifest := &domain.ChunkManifest{
		DocumentID: docID,
		Filename:   "manual.txt",
		SourceHash: domain.SourceChecksum(raw),
		CreatedAt:  time.Now().UTC(),
		Chunks: []domain.Chunk{
			{DocumentID: docID, Ordinal: 0, Page: 1, Start: 0, End: 8, Content: "the pump"},
			{DocumentID: docID, Ordinal: 1, Page: 1, Start: 9, End: 20, Content: "manual text"},
		},
	}
	if err := store.SaveArtifacts(ctx, manifest, index); err != nil {
		t.Fatalf("saving artifacts: %v", err)
	}
}

// ageDocument backdates a document's directory; the store lists it as the
// stored-at time.
func ageDocument(t *testing.T, root, docID string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	if err := os.Chtimes(filepath.Join(root, docID), old, old); err != nil {
		t.Fatalf("aging document: %v", err)
	}
}

func TestRootCmd_Help(t *testing.T) {
	out, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("root --help failed: %v", err)
	}
	for _, want := range []string{"docqa-cli", "cleanup", "inspect", "reprocess"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected help output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestInspect_EmptyStore(t *testing.T) {
	setupStoreTest(t)

	out, err := runCLI(t, "inspect")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(out, "No documents stored.") {
		t.Errorf("expected empty-store message, got:\n%s", out)
	}
}

func TestInspect_ListsStoredDocuments(t *testing.T) {
	_, store := setupStoreTest(t)
	seedCompletedDocument(t, store, "doc-1")
	if err := store.SaveSource(context.Background(), "doc-2", []byte("half done")); err != nil {
		t.Fatalf("saving source: %v", err)
	}

	out, err := runCLI(t, "inspect")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	for _, want := range []string{"doc-1", "complete", "doc-2", "source only", "2 documents"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected listing to contain %q, got:\n%s", want, out)
		}
	}
}

func TestInspect_DocumentDetail(t *testing.T) {
	_, store := setupStoreTest(t)
	seedCompletedDocument(t, store, "doc-1")

	out, err := runCLI(t, "inspect", "doc-1")
	if err != nil {
		t.Fatalf("inspect doc-1 failed: %v", err)
	}
	for _, want := range []string{"manual.txt", "2 chunks", "2-dimensional"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected detail to contain %q, got:\n%s", want, out)
		}
	}
}

func TestInspect_SourceOnlyDetail(t *testing.T) {
	_, store := setupStoreTest(t)
	if err := store.SaveSource(context.Background(), "doc-2", []byte("half done")); err != nil {
		t.Fatalf("saving source: %v", err)
	}

	out, err := runCLI(t, "inspect", "doc-2")
	if err != nil {
		t.Fatalf("inspect doc-2 failed: %v", err)
	}
	if !strings.Contains(out, "no completed artifacts") {
		t.Errorf("expected source-only notice, got:\n%s", out)
	}
}

func TestInspect_MissingDocument(t *testing.T) {
	setupStoreTest(t)

	_, err := runCLI(t, "inspect", "ghost")
	if err == nil {
		t.Fatal("expected error for missing document, got nil")
	}
	if !strings.Contains(err.Error(), "not in the store") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCleanup_NothingToRemove(t *testing.T) {
	_, store := setupStoreTest(t)
	seedCompletedDocument(t, store, "doc-1")

	out, err := runCLI(t, "cleanup")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !strings.Contains(out, "Nothing to remove") {
		t.Errorf("expected no-op message, got:\n%s", out)
	}
}

func TestCleanup_DryRunKeepsFiles(t *testing.T) {
	root, store := setupStoreTest(t)
	seedCompletedDocument(t, store, "doc-1")
	ageDocument(t, root, "doc-1", 48*time.Hour)

	out, err := runCLI(t, "cleanup", "--dry-run")
	if err != nil {
		t.Fatalf("cleanup --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "would remove") || !strings.Contains(out, "doc-1") {
		t.Errorf("expected dry-run removal report, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "doc-1")); err != nil {
		t.Errorf("dry run must not delete anything: %v", err)
	}
}

func TestCleanup_RemovesExpiredDocuments(t *testing.T) {
	root, store := setupStoreTest(t)
	seedCompletedDocument(t, store, "doc-1")
	ageDocument(t, root, "doc-1", 48*time.Hour)

	out, err := runCLI(t, "cleanup")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !strings.Contains(out, "older than retention") {
		t.Errorf("expected retention reason, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "doc-1")); !os.IsNotExist(err) {
		t.Errorf("expected doc-1 to be deleted, stat err: %v", err)
	}
}

func TestCleanup_MaxAgeFlagOverride(t *testing.T) {
	root, store := setupStoreTest(t)
	seedCompletedDocument(t, store, "doc-1")
	ageDocument(t, root, "doc-1", 2*time.Hour)

	out, err := runCLI(t, "cleanup", "--max-age", "1h")
	if err != nil {
		t.Fatalf("cleanup --max-age failed: %v", err)
	}
	if !strings.Contains(out, "older than retention") {
		t.Errorf("expected flag override to expire the document, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "doc-1")); !os.IsNotExist(err) {
		t.Errorf("expected doc-1 to be deleted, stat err: %v", err)
	}
}

func TestReprocess_QueuedOnServer(t *testing.T) {
	setupStoreTest(t)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	out, err := runCLI(t, "reprocess", "doc-1", "--server", srv.URL)
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	if gotPath != "/v1/documents/doc-1/reprocess" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if !strings.Contains(out, "queued for reprocessing") {
		t.Errorf("expected queued confirmation, got:\n%s", out)
	}
}

func TestReprocess_ServerConflict(t *testing.T) {
	setupStoreTest(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	_, err := runCLI(t, "reprocess", "doc-1", "--server", srv.URL)
	if err == nil {
		t.Fatal("expected conflict error, got nil")
	}
	if !strings.Contains(err.Error(), "already in flight") {
		t.Errorf("unexpected error: %v", err)
	}
}
