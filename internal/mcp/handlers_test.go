package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/storage"
)

type stubAsker struct {
	got  rag.AskRequest
	resp *rag.AskResponse
	err  error
}

func (s *stubAsker) Ask(ctx context.Context, req rag.AskRequest) (*rag.AskResponse, error) {
	s.got = req
	return s.resp, s.err
}

type stubSearcher struct {
	limit int
	hits  []storage.Hit
	err   error
}

func (s *stubSearcher) Search(ctx context.Context, query, department string, limit int) ([]storage.Hit, error) {
	s.limit = limit
	return s.hits, s.err
}

type stubLister struct {
	docs []indexer.Document
}

func (s stubLister) Documents(ctx context.Context) ([]indexer.Document, error) {
	return s.docs, nil
}

func TestAskHandler(t *testing.T) {
	asker := &stubAsker{resp: &rag.AskResponse{
		Answer:         "Три дня.",
		Sources:        []rag.Source{{Source: "policy.txt"}},
		ConversationID: "c1",
	}}
	h := makeAskHandler(asker, zap.NewNop())

	_, out, err := h(context.Background(), nil, AskInput{Question: "Сколько дней?", Department: "hr", ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "Три дня.", out.Answer)
	assert.Equal(t, []string{"policy.txt"}, out.Sources)
	assert.Equal(t, "c1", out.ConversationID)
	assert.Equal(t, "hr", asker.got.Department)

	_, _, err = h(context.Background(), nil, AskInput{Question: "  "})
	assert.Error(t, err)

	asker.err = errors.New("boom")
	_, _, err = h(context.Background(), nil, AskInput{Question: "q"})
	assert.Error(t, err)
}

func TestSearchHandler(t *testing.T) {
	s := &stubSearcher{hits: []storage.Hit{
		{Point: storage.Point{Source: "a.txt", Text: "alpha"}, Score: 0.9},
		{Point: storage.Point{Source: "b.txt", Text: "beta"}, Score: 0.5},
	}}
	h := makeSearchHandler(s)

	_, out, err := h(context.Background(), nil, SearchDocumentsInput{Query: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxResults, s.limit)
	require.Len(t, out.Results, 2)
	assert.Equal(t, SearchResult{Source: "a.txt", Score: 0.9, Text: "alpha"}, out.Results[0])

	_, _, err = h(context.Background(), nil, SearchDocumentsInput{Query: "alpha", MaxResults: 100})
	require.NoError(t, err)
	assert.Equal(t, maxMaxResults, s.limit)

	s.hits = nil
	_, out, err = h(context.Background(), nil, SearchDocumentsInput{Query: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.NotEmpty(t, out.Message)
}

func TestListHandler(t *testing.T) {
	now := time.Now().UTC()
	h := makeListHandler(stubLister{docs: []indexer.Document{
		{Source: "policy.txt", Department: "hr", Chunks: 3, UploadedAt: now},
	}})

	_, out, err := h(context.Background(), nil, ListDocumentsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, DocumentInfo{Filename: "policy.txt", Department: "hr", Chunks: 3, UploadedAt: now}, out.Documents[0])
}

func TestNewServer(t *testing.T) {
	s := NewServer(&Config{Asker: &stubAsker{}, Searcher: &stubSearcher{}, Lister: stubLister{}})
	require.NotNil(t, s.MCPServer())
	assert.NotNil(t, NewHTTPHandler(s, nil))
}
