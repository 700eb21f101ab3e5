package vfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/procvfs/pkg/httputil"
	"github.com/platinummonkey/procvfs/pkg/plugins"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	fsys := setupFS(t, newFakeProcesses(42))

	router := mux.NewRouter()
	NewHandlers(fsys, quietLogger()).RegisterRoutes(router)

	server := httptest.NewServer(NewServerHandler(router, quietLogger()))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHTTP_Modules(t *testing.T) {
	server := setupServer(t)

	resp, body := do(t, http.MethodGet, server.URL+"/modules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var modules []plugins.ModuleInfo
	require.NoError(t, json.Unmarshal([]byte(body), &modules))
	require.Len(t, modules, 3)
	assert.Equal(t, "notes", modules[0].Name)
	assert.NotEmpty(t, resp.Header.Get(httputil.RequestIDHeader))
}

func TestHTTP_List(t *testing.T) {
	server := setupServer(t)

	resp, body := do(t, http.MethodGet, server.URL+"/ls/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing ListResponse
	require.NoError(t, json.Unmarshal([]byte(body), &listing))
	assert.Equal(t, "/", listing.Path)
	assert.Equal(t, []string{"notes", PIDDir, "sysinfo"}, names(listing.Entries))

	resp, body = do(t, http.MethodGet, server.URL+"/ls/pid/42/notes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &listing))
	assert.Equal(t, plugins.Entries{{Name: "note"}}, listing.Entries)
}

func TestHTTP_ReadWrite(t *testing.T) {
	server := setupServer(t)

	resp, body := do(t, http.MethodGet, server.URL+"/fs/sysinfo/system_type", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "linux\n", body)

	_, body = do(t, http.MethodGet, server.URL+"/fs/sysinfo/system_type?offset=2", "")
	assert.Equal(t, "nux\n", body)

	_, body = do(t, http.MethodGet, server.URL+"/fs/sysinfo/system_type?offset=99", "")
	assert.Equal(t, "", body)

	resp, body = do(t, http.MethodPut, server.URL+"/fs/pid/42/notes/note", "remember")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var written WriteResponse
	require.NoError(t, json.Unmarshal([]byte(body), &written))
	assert.Equal(t, WriteResponse{Path: "/pid/42/notes/note", Written: 8}, written)

	_, body = do(t, http.MethodGet, server.URL+"/fs/pid/42/notes/note", "")
	assert.Equal(t, "remember", body)
}

func TestHTTP_Errors(t *testing.T) {
	server := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown module", http.MethodGet, "/fs/ghost/file", "", http.StatusNotFound},
		{"unknown process", http.MethodGet, "/ls/pid/7", "", http.StatusNotFound},
		{"missing file", http.MethodGet, "/fs/sysinfo/nope", "", http.StatusNotFound},
		{"read directory", http.MethodGet, "/fs/", "", http.StatusBadRequest},
		{"bad pid", http.MethodGet, "/ls/pid/x", "", http.StatusBadRequest},
		{"bad offset", http.MethodGet, "/fs/sysinfo/system_type?offset=x", "", http.StatusBadRequest},
		{"read only module", http.MethodPut, "/fs/sysinfo/modules", "x", http.StatusMethodNotAllowed},
		{"body too large", http.MethodPut, "/fs/notes/note", strings.Repeat("x", MaxBodySize+1), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, server.URL+tt.path, tt.body)

			assert.Equal(t, tt.want, resp.StatusCode, body)
			var errResp httputil.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &errResp))
			assert.NotEmpty(t, errResp.Error)
			assert.Equal(t, resp.Header.Get(httputil.RequestIDHeader), errResp.RequestID)
		})
	}
}

func TestHTTP_Refresh(t *testing.T) {
	server := setupServer(t)

	do(t, http.MethodPut, server.URL+"/fs/notes/note", "temp")

	resp, _ := do(t, http.MethodPost, server.URL+"/refresh", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body := do(t, http.MethodGet, server.URL+"/fs/notes/note", "")
	assert.Equal(t, "", body)

	resp, _ = do(t, http.MethodGet, server.URL+"/refresh", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", plugins.ErrNotFound), http.StatusNotFound},
		{ErrNoProcess, http.StatusNotFound},
		{fs.ErrNotExist, http.StatusNotFound},
		{plugins.ErrUnsupported, http.StatusMethodNotAllowed},
		{fs.ErrPermission, http.StatusForbidden},
		{ErrIsDir, http.StatusBadRequest},
		{ErrInvalidPath, http.StatusBadRequest},
		{fs.ErrInvalid, http.StatusBadRequest},
		{ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{plugins.ErrModulePanic, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
