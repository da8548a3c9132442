package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/studyrag/ai/mock"
	"github.com/poiesic/studyrag/answer"
	"github.com/poiesic/studyrag/chunking"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/ingestion"
	"github.com/poiesic/studyrag/retrieval"
	"github.com/poiesic/studyrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	repos   *badger.Repositories
	handler http.Handler
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()
	repos, err := badger.NewMemoryRepositories(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	chunker, err := chunking.New(chunking.WithChunkSize(200), chunking.WithChunkOverlap(20))
	require.NoError(t, err)
	pipeline, err := ingestion.NewPipeline(repos.Documents, repos.Index, chunker, filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	retriever, err := retrieval.New(repos.Index)
	require.NoError(t, err)
	orch, err := answer.NewOrchestrator(retriever, mock.NewMockGenerator(), repos.Conversations)
	require.NoError(t, err)

	srv := NewServer(Services{
		Answers:         orch,
		Search:          retriever,
		Ingest:          pipeline,
		Documents:       repos.Documents,
		Index:           repos.Index,
		ModelConfigured: true,
	}, opts...)
	return &testAPI{repos: repos, handler: srv.Handler()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	api := newTestAPI(t, WithVersion("1.2.3"))

	rec := api.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]string](t, rec)
	assert.Equal(t, "running", root["status"])
	assert.Equal(t, "1.2.3", root["version"])

	rec = api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	services := health["services"].(map[string]any)
	assert.Equal(t, true, services["vector_store"])
	assert.Equal(t, true, services["language_model"])
	assert.EqualValues(t, 0, services["chunks_indexed"])
}

func TestRequestIDHeader(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUploadListGetDelete(t *testing.T) {
	api := newTestAPI(t)
	text := strings.Repeat("Mitochondria are the powerhouse of the cell. ", 20)

	rec := api.upload(t, "biology.txt", []byte(text))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[uploadResponse](t, rec)
	assert.Equal(t, "biology.txt", up.Filename)
	assert.Positive(t, up.ChunkCount)
	assert.Contains(t, up.Message, "indexed successfully with")

	rec = api.do(t, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode[[]documentResponse](t, rec)
	require.Len(t, docs, 1)
	assert.Equal(t, up.ID, docs[0].ID)
	assert.Equal(t, int64(len(text)), docs[0].FileSize)

	rec = api.do(t, http.MethodGet, "/documents/"+up.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, up.ChunkCount, decode[documentResponse](t, rec).ChunkCount)

	rec = api.do(t, http.MethodDelete, "/documents/"+up.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Document "+up.ID+" deleted successfully", decode[messageResponse](t, rec).Message)

	n, err := api.repos.Index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	rec = api.do(t, http.MethodGet, "/documents/"+up.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", decode[errorResponse](t, rec).Detail)

	rec = api.do(t, http.MethodDelete, "/documents/"+up.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejections(t *testing.T) {
	api := newTestAPI(t)

	rec := api.upload(t, "slides.pptx", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Detail, "not supported")

	rec = api.upload(t, "blank.txt", []byte("   \n\t "))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Could not extract text from document", decode[errorResponse](t, rec).Detail)

	rec = api.do(t, http.MethodPost, "/documents/upload", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	api := newTestAPI(t, WithMaxUploadBytes(64))
	rec := api.upload(t, "big.txt", bytes.Repeat([]byte("a"), 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSearch(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusOK, api.upload(t, "notes.md", []byte("The French Revolution began in 1789.")).Code)

	rec := api.do(t, http.MethodPost, "/search", map[string]any{"query": "French Revolution"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[searchResponse](t, rec)
	assert.Equal(t, "French Revolution", resp.Query)
	require.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, "notes.md", resp.Results[0].Filename)
	assert.Equal(t, 0, resp.Results[0].ChunkIndex)
	assert.Equal(t, roundTo(resp.Results[0].SimilarityScore, 4), resp.Results[0].SimilarityScore)

	rec = api.do(t, http.MethodPost, "/search", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Query cannot be empty", decode[errorResponse](t, rec).Detail)

	rec = api.do(t, http.MethodPost, "/search", map[string]any{"query": "x", "top_k": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/search/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, stats["total_chunks"])
	assert.Equal(t, "ready", stats["status"])
}

type fixedQuerier []core.RetrievalResult

func (q fixedQuerier) Query(context.Context, string, int) ([]core.RetrievalResult, error) {
	return q, nil
}

func TestSearch_AllBelowMinRelevance(t *testing.T) {
	retriever, err := retrieval.New(fixedQuerier{{Content: "weak", RelevanceScore: 0.1}}, retrieval.WithMinRelevance(0.5))
	require.NoError(t, err)
	api := &testAPI{handler: NewServer(Services{Search: retriever}).Handler()}

	rec := api.do(t, http.MethodPost, "/search", map[string]any{"query": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[searchResponse](t, rec)
	assert.Zero(t, resp.TotalResults)
	assert.Empty(t, resp.Results)
}

func TestChatAndHistory(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusOK, api.upload(t, "physics.txt", []byte("Force equals mass times acceleration.")).Code)

	rec := api.do(t, http.MethodPost, "/chat", map[string]any{"question": "What is force?"})
	require.Equal(t, http.StatusOK, rec.Code)
	ans := decode[core.Answer](t, rec)
	assert.Equal(t, "mock answer", ans.Text)
	assert.Equal(t, core.ModeQA, ans.Mode)
	require.NotEmpty(t, ans.ConversationID)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "physics.txt", ans.Sources[0].Document)

	rec = api.do(t, http.MethodPost, "/chat", map[string]any{
		"question": "Quiz me", "mode": "quiz", "conversation_id": ans.ConversationID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.ModeQuiz, decode[core.Answer](t, rec).Mode)

	rec = api.do(t, http.MethodGet, "/chat/history/"+ans.ConversationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	record := decode[core.ConversationRecord](t, rec)
	assert.Len(t, record.Messages, 4)

	rec = api.do(t, http.MethodGet, "/chat/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]core.ConversationSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, 4, summaries[0].MessageCount)

	rec = api.do(t, http.MethodDelete, "/chat/history/"+ans.ConversationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Conversation "+ans.ConversationID+" deleted", decode[messageResponse](t, rec).Message)

	rec = api.do(t, http.MethodGet, "/chat/history/"+ans.ConversationID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decode[errorResponse](t, rec).Detail)

	rec = api.do(t, http.MethodDelete, "/chat/history/"+ans.ConversationID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/chat", map[string]any{"question": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/chat", map[string]any{"question": "hi", "mode": "essay"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Detail, "Invalid mode")

	rec = api.do(t, http.MethodPost, "/chat", map[string]any{"question": "hi", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEmptyCorpus(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/chat", map[string]any{"question": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	ans := decode[core.Answer](t, rec)
	assert.Contains(t, ans.Text, "upload some documents")
	assert.Empty(t, ans.Sources)
}

func TestNotFoundIsJSON(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/", nil)
	rec := api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studyrag_http_requests_total")
}

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[errorResponse](t, rec).Detail)
}
