package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/znatok/internal/settings"
)

func githubServer(t *testing.T, commitDate string) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/handbook/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			"sha":    "c0ffee",
			"commit": map[string]any{"committer": map[string]any{"date": commitDate}},
		}})
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"type": "file", "name": "remote.md", "path": "docs/remote.md"},
			{"type": "file", "name": "blank.md", "path": "docs/blank.md"},
		})
	})
	file := func(content string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"type": "file", "encoding": "base64", "sha": "1",
				"content": base64.StdEncoding.EncodeToString([]byte(content)),
			})
		}
	}
	mux.HandleFunc("/repos/acme/handbook/contents/docs/remote.md", file("# Remote\n\nThree days a week."))
	mux.HandleFunc("/repos/acme/handbook/contents/docs/blank.md", file(""))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func githubStore(lastSync string) *settings.Store {
	s := settings.Default()
	s.KnowledgeSources.GitHub = settings.GitHubConfig{
		Enabled: true, Owner: "acme", Repo: "handbook", Path: "docs", LastSync: lastSync,
	}
	return settings.NewMemoryStore(s)
}

func TestGitHubDocs_Sync(t *testing.T) {
	srv := githubServer(t, "2024-05-20T08:00:00Z")
	idx := newRecordingIndexer()
	store := githubStore("2024-05-01T00:00:00Z")
	runner := newRunner(store, NewGitHubDocs(idx, "", srv.URL, nil))

	res, err := runner.Run(context.Background(), NameGitHub)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Skipped: 1}, res)
	assert.Contains(t, idx.texts["github:docs/remote.md"], "Three days a week.")
	assert.Equal(t, "2024-06-01T12:00:00Z", store.Get().KnowledgeSources.GitHub.LastSync)
}

func TestGitHubDocs_NoNewCommits(t *testing.T) {
	srv := githubServer(t, "2024-04-20T08:00:00Z")
	idx := newRecordingIndexer()
	store := githubStore("2024-05-01T00:00:00Z")
	g := NewGitHubDocs(idx, "", srv.URL, nil)

	res, err := newRunner(store, g).Run(context.Background(), NameGitHub)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, idx.texts)

	assert.NoError(t, g.Test(context.Background(), store.Get()))
}
