package appstore_test

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appstore/deploy/pkg/appstore"
)

type recordedRequest struct {
	Method   string
	Path     string
	Query    map[string]string
	FormFile string
}

// testServer replays canned JSON responses and records every request.
type testServer struct {
	*httptest.Server
	requests  []recordedRequest
	responses map[string]any
	status    int
}

func newTestServer(t *testing.T, responses map[string]any) *testServer {
	ts := &testServer{
		responses: responses,
		status:    http.StatusOK,
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
		}
		for key := range r.URL.Query() {
			rec.Query[key] = r.URL.Query().Get(key)
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			content, err := io.ReadAll(file)
			require.NoError(t, err)
			rec.FormFile = header.Filename + ":" + string(content)
		}
		ts.requests = append(ts.requests, rec)

		response, ok := ts.responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func packageFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "acme.timesheet.zip")
	require.NoError(t, os.WriteFile(path, []byte("archive-bytes"), 0o644))
	return path
}

func TestLegacyCurrentVersionFound(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps": []map[string]any{
			{"id": "other.app", "version": "3.0.0"},
			{"id": "acme.timesheet", "version": "1.2.0"},
		},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	version, found, err := api.CurrentVersion(context.Background(), "acme.timesheet")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1.2.0", version)
	assert.Equal(t, "global", server.requests[0].Query["scope"])
}

func TestLegacyCurrentVersionNotFound(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps": []map[string]any{
			{"id": "other.app", "version": "3.0.0"},
		},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeFor("t-100"))
	require.NoError(t, err)

	_, found, err := api.CurrentVersion(context.Background(), "acme.timesheet")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "t-100", server.requests[0].Query["scope"])
}

func TestCurrentCurrentVersionFound(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/app/store/all": []map[string]any{
			{"model": map[string]any{"id": "acme.timesheet", "version": "2.0.1"}},
		},
	})

	api, err := appstore.New(appstore.PlatformCurrent, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	version, found, err := api.CurrentVersion(context.Background(), "acme.timesheet")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2.0.1", version)
	assert.Equal(t, "global", server.requests[0].Query["collectionScope"])
}

func TestCurrentCurrentVersionNotFound(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/app/store/all": []map[string]any{},
	})

	api, err := appstore.New(appstore.PlatformCurrent, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, found, err := api.CurrentVersion(context.Background(), "acme.timesheet")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCurrentVersionMalformedListing(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps": map[string]any{"unexpected": "object"},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, _, err = api.CurrentVersion(context.Background(), "acme.timesheet")
	assert.ErrorIs(t, err, appstore.ErrUnexpectedResponse)
}

func TestCurrentVersionRequestFailed(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps": []map[string]any{},
	})
	server.status = http.StatusInternalServerError

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, _, err = api.CurrentVersion(context.Background(), "acme.timesheet")
	assert.ErrorIs(t, err, appstore.ErrAPIRequestFailed)
}

func TestLegacyFirstUpload(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps/upload": map[string]any{"id": "acme.timesheet", "version": "1.0.0"},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	version, err := api.Upload(context.Background(), packageFile(t), "acme.timesheet", false)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.Len(t, server.requests, 1)
	request := server.requests[0]
	assert.Equal(t, http.MethodPost, request.Method)
	assert.Equal(t, "/apps/upload", request.Path)
	assert.Equal(t, "acme.timesheet", request.Query["appId"])
	assert.Equal(t, "global", request.Query["scope"])
	assert.Equal(t, "acme.timesheet.zip:archive-bytes", request.FormFile)
}

func TestLegacyUpdate(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps/update": map[string]any{"id": "acme.timesheet", "version": "1.3.0"},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	version, err := api.Upload(context.Background(), packageFile(t), "acme.timesheet", true)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", version)

	require.Len(t, server.requests, 1)
	assert.Equal(t, "/apps/update", server.requests[0].Path)
}

func TestCurrentFirstUpload(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/files/file": map[string]any{"fileId": "f-123", "size": 13},
		"/app/store":  map[string]any{"model": map[string]any{"id": "acme.timesheet", "version": "1.0.0"}},
	})

	api, err := appstore.New(appstore.PlatformCurrent, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	version, err := api.Upload(context.Background(), packageFile(t), "acme.timesheet", false)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.Len(t, server.requests, 2)

	upload := server.requests[0]
	assert.Equal(t, http.MethodPost, upload.Method)
	assert.Equal(t, "/files/file", upload.Path)
	assert.Equal(t, "apps", upload.Query["virtualPath"])
	assert.Equal(t, "global", upload.Query["collectionScope"])
	assert.Equal(t, "acme.timesheet.zip:archive-bytes", upload.FormFile)

	register := server.requests[1]
	assert.Equal(t, http.MethodPost, register.Method)
	assert.Equal(t, "/app/store", register.Path)
	assert.Equal(t, "acme.timesheet", register.Query["appId"])
	assert.Equal(t, "f-123", register.Query["fileId"])
}

func TestCurrentUpdateUsesPut(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/files/file": map[string]any{"id": "f-456", "size": 13},
		"/app/store":  map[string]any{"model": map[string]any{"id": "acme.timesheet", "version": "2.1.0"}},
	})

	api, err := appstore.New(appstore.PlatformCurrent, server.Client(), server.URL, appstore.ScopeFor("t-100"))
	require.NoError(t, err)

	version, err := api.Upload(context.Background(), packageFile(t), "acme.timesheet", true)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", version)

	require.Len(t, server.requests, 2)
	assert.Equal(t, http.MethodPut, server.requests[1].Method)
	assert.Equal(t, "f-456", server.requests[1].Query["fileId"])
	assert.Equal(t, "t-100", server.requests[0].Query["collectionScope"])
	assert.Equal(t, "t-100", server.requests[1].Query["collectionScope"])
}

func TestCurrentUploadRejectedAbortsRegistration(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/files/file": map[string]any{"fileId": "f-123"},
		"/app/store":  map[string]any{},
	})
	server.status = http.StatusConflict

	api, err := appstore.New(appstore.PlatformCurrent, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, err = api.Upload(context.Background(), packageFile(t), "acme.timesheet", false)
	assert.ErrorIs(t, err, appstore.ErrRequestRejected)
	assert.ErrorIs(t, err, appstore.ErrAPIRequestFailed)
	assert.Len(t, server.requests, 1)
}

func TestUploadResponseMissingVersion(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps/upload": map[string]any{"id": "acme.timesheet"},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, err = api.Upload(context.Background(), packageFile(t), "acme.timesheet", false)
	assert.ErrorIs(t, err, appstore.ErrUnexpectedResponse)
}

func TestUploadMissingPackageFile(t *testing.T) {
	server := newTestServer(t, map[string]any{
		"/apps/upload": map[string]any{"id": "acme.timesheet", "version": "1.0.0"},
	})

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, err = api.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), "acme.timesheet", false)
	assert.Error(t, err)
	assert.Len(t, server.requests, 0)
}

func TestNewUnknownPlatform(t *testing.T) {
	_, err := appstore.New(appstore.Platform("v1"), http.DefaultClient, "http://localhost", appstore.ScopeGlobal)
	assert.Error(t, err)
}

func TestParsePlatform(t *testing.T) {
	platform, err := appstore.ParsePlatform("v2")
	require.NoError(t, err)
	assert.Equal(t, appstore.PlatformLegacy, platform)

	platform, err = appstore.ParsePlatform("v3")
	require.NoError(t, err)
	assert.Equal(t, appstore.PlatformCurrent, platform)

	_, err = appstore.ParsePlatform("v4")
	assert.Error(t, err)
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, appstore.ScopeGlobal, appstore.ScopeFor(""))
	assert.Equal(t, appstore.Scope("t-100"), appstore.ScopeFor("t-100"))
	assert.NotEqual(t, appstore.ScopeFor("t-100"), appstore.ScopeFor("t-200"))
}

func TestCorrelationHeaderAttached(t *testing.T) {
	var correlation string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlation = r.Header.Get("X-Correlation-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(server.Close)

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, _, err = api.CurrentVersion(context.Background(), "acme.timesheet")
	require.NoError(t, err)
	assert.NotEmpty(t, correlation)
}

// guards against the form writer being closed before the file content is
// flushed through the pipe
func TestMultipartBodyIsWellFormed(t *testing.T) {
	var parseErr error
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			parseErr = err
		} else {
			reader := multipart.NewReader(r.Body, params["boundary"])
			_, parseErr = reader.ReadForm(1 << 20)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version": "1.0.0"}`))
	}))
	t.Cleanup(server.Close)

	api, err := appstore.New(appstore.PlatformLegacy, server.Client(), server.URL, appstore.ScopeGlobal)
	require.NoError(t, err)

	_, err = api.Upload(context.Background(), packageFile(t), "acme.timesheet", false)
	require.NoError(t, err)
	assert.NoError(t, parseErr)
}
