package sceneserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeAndRejectTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shapes.svg"), []byte("<svg/>"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	s, err := Start(dir)
	require.NoError(t, err)
	defer s.Shutdown()

	resp, err := http.Get(s.URL() + "shapes.svg")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<svg/>", string(body))

	resp2, err := http.Get(s.URL() + "sub/")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(s.URL() + "../../../etc/passwd")
	require.NoError(t, err)
	resp3.Body.Close()
	require.NotEqual(t, http.StatusOK, resp3.StatusCode)
}
