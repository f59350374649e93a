package buildio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file contents"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out")
	result, err := DownloadToFile(context.Background(), newTestEngine(t), srv.URL+"/f", path, 0o600)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file contents", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDownloadToFileFailureKeepsExistingFile(t *testing.T) {
	tests := []struct {
		name    string
		replies []reply
	}{
		{
			name:    "setup failure",
			replies: []reply{{status: "404 Not Found", headers: "content-length: 0\r\n", content: once("")}},
		},
		{
			name: "deferred failure",
			replies: []reply{{
				status:  "200 OK",
				headers: "content-length: 100\r\n",
				content: once("truncated"),
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := serveHTTP(t, tt.replies...)
			dir := t.TempDir()
			path := filepath.Join(dir, "out")
			require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

			_, err := DownloadToFile(context.Background(), newTestEngine(t), url+"/f", path, 0o644)
			require.Error(t, err)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "previous", string(data))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temporary file is left behind")
		})
	}
}
