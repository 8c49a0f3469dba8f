package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"docqa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestExtractor_Extract_PlainTextPages(t *testing.T) {
	extractor := NewExtractor(nil, testLogger())

	pages, err := extractor.Extract(context.Background(), []byte("first page\fsecond page\fthird page"), "manual.txt")
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, domain.Page{Number: 1, Text: "first page"}, pages[0])
	assert.Equal(t, domain.Page{Number: 2, Text: "second page"}, pages[1])
	assert.Equal(t, domain.Page{Number: 3, Text: "third page"}, pages[2])
}

func TestExtractor_Extract_NoFormFeedIsOnePage(t *testing.T) {
	extractor := NewExtractor(nil, testLogger())

	pages, err := extractor.Extract(context.Background(), []byte("just one page of text"), "note.md")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
}

func TestExtractor_Extract_EmptyUpload(t *testing.T) {
	extractor := NewExtractor(nil, testLogger())

	_, err := extractor.Extract(context.Background(), nil, "empty.txt")
	require.Error(t, err)

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "empty upload")
}

func TestExtractor_Extract_BinaryWithoutRemote(t *testing.T) {
	extractor := NewExtractor(nil, testLogger())

	_, err := extractor.Extract(context.Background(), []byte("%PDF-1.7\x00\x01binary"), "manual.pdf")
	require.Error(t, err)

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "remote extraction service")
}

func TestExtractor_Extract_BinaryDelegatesToRemote(t *testing.T) {
	raw := []byte("%PDF-1.7\x00fake pdf bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)

		var req remoteExtractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "manual.pdf", req.Filename)

		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		require.NoError(t, err)
		assert.Equal(t, raw, decoded)

		json.NewEncoder(w).Encode(remoteExtractResponse{
			Pages: []domain.Page{
				{Number: 1, Text: "extracted page one"},
				{Number: 2, Text: "extracted page two"},
			},
		})
	}))
	defer server.Close()

	extractor := NewExtractor(NewRemoteClient(server.URL, testLogger()), testLogger())

	pages, err := extractor.Extract(context.Background(), raw, "manual.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "extracted page one", pages[0].Text)
}

func TestExtractor_Extract_RemoteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("cannot parse document"))
	}))
	defer server.Close()

	extractor := NewExtractor(NewRemoteClient(server.URL, testLogger()), testLogger())

	_, err := extractor.Extract(context.Background(), []byte("%PDF-1.7\x00"), "manual.pdf")
	require.Error(t, err)

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "remote extraction failed")
	assert.Contains(t, extractErr.Error(), "422")
}

func TestRemoteClient_Extract_RenumbersMissingPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteExtractResponse{
			Pages: []domain.Page{{Text: "a"}, {Text: "b"}},
		})
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, testLogger())
	pages, err := client.Extract(context.Background(), []byte{0x1}, "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
}

func TestIsBinary(t *testing.T) {
	assert.True(t, isBinary([]byte("%PDF-1.4 rest")))
	assert.True(t, isBinary([]byte{0x50, 0x4b, 0x00, 0x01}))
	assert.True(t, isBinary([]byte{0xff, 0xfe, 0x41}))
	assert.False(t, isBinary([]byte("ordinary prose with unicode: naïve café 設備")))
	assert.False(t, isBinary([]byte("# markdown\n\n- list item\n")))
}
