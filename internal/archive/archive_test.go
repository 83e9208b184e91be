package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("Политика удалёнки.pdf")
	assert.True(t, strings.HasSuffix(key, "_Политика_удалёнки.pdf"), key)
	assert.Len(t, strings.SplitN(key, "_", 2)[0], 8)

	assert.Equal(t, ObjectKey("a.txt"), ObjectKey("a.txt"))
	assert.NotEqual(t, ObjectKey("a?.txt"), ObjectKey("a.txt"), "same sanitized name, different key")

	assert.NotContains(t, ObjectKey("../../etc/passwd"), "/")
	assert.True(t, strings.HasSuffix(ObjectKey("..."), "_file"))
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := a.Save(ctx, "policy.txt", []byte("Remote work."), "text/plain")
	require.NoError(t, err)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "Remote work.", string(data))

	require.NoError(t, a.Delete(ctx, "policy.txt"))
	_, err = os.Stat(loc)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, a.Delete(ctx, "never-saved.txt"))
}

func TestNop(t *testing.T) {
	loc, err := Nop{}.Save(context.Background(), "a.txt", nil, "")
	assert.NoError(t, err)
	assert.Empty(t, loc)
	assert.NoError(t, Nop{}.Delete(context.Background(), "a.txt"))
}

func TestS3_SaveAndDelete(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
			w.Header().Set("ETag", `"etag"`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := NewS3(context.Background(), S3Config{
		Bucket: "originals", Region: "us-east-1", AccessKey: "k", SecretKey: "s",
		Endpoint: srv.URL, Prefix: "uploads/",
	})
	require.NoError(t, err)

	loc, err := a.Save(context.Background(), "policy.txt", []byte("Remote work."), "text/plain")
	require.NoError(t, err)
	key := "uploads/" + ObjectKey("policy.txt")
	assert.Equal(t, "s3://originals/"+key, loc)

	require.NoError(t, a.Delete(context.Background(), "policy.txt"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /originals/" + key, "DELETE /originals/" + key}, calls)
	assert.Contains(t, body, "Remote work.")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
