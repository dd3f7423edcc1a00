package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oneconcern/smartes/pkg/core"
	"github.com/oneconcern/smartes/pkg/core/status"
	"github.com/oneconcern/smartes/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Serve(_ context.Context, treeish, p string) (*core.Response, error) {
	args := m.Called(treeish, p)
	resp, _ := args.Get(0).(*core.Response)
	return resp, args.Error(1)
}

func setupTests(t *testing.T, debug bool) (*ServiceMock, http.Handler) {
	svc := new(ServiceMock)
	srv, err := NewServer(svc, ServerParams{Debug: debug, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err, "create web server instance")
	return svc, InitRouter(srv)
}

func doRequest(t *testing.T, routes http.Handler, method, target string) (*http.Response, string) {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, req)
	res := rr.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func fileResponse(p string, immutable bool) *core.Response {
	return &core.Response{
		Path:        p,
		Revision:    model.Revision{ID: "6dcb09b5b57875f334f61aebed695e2e4193db5e"},
		ContentType: "text/javascript; charset=utf-8",
		Body:        []byte("gzipped " + p),
		Immutable:   immutable,
	}
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, ServerParams{})
	require.Error(t, err)
}

func TestServeFile(t *testing.T) {
	for _, toPin := range []struct {
		name      string
		target    string
		treeish   string
		path      string
		immutable bool
		cache     string
	}{
		{name: "entry", target: "/main/entry.js", treeish: "main", path: "entry.js", cache: "no-cache"},
		{name: "versioned", target: "/v1.0/lib/util-3.js", treeish: "v1.0", path: "lib/util-3.js", immutable: true, cache: "public, max-age=31536000, immutable"},
		{name: "HEAD", target: "/HEAD/entry.js", treeish: "HEAD", path: "entry.js", cache: "no-cache"},
		{name: "escaped", target: "/main/my%20lib-0.js", treeish: "main", path: "my lib-0.js", immutable: true, cache: "public, max-age=31536000, immutable"},
		{name: "header-like branch", target: "/HEADER/entry.js", treeish: "HEADER", path: "entry.js", cache: "no-cache"},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			svc, routes := setupTests(t, false)
			svc.On("Serve", fixture.treeish, fixture.path).Return(fileResponse(fixture.path, fixture.immutable), nil).Once()

			res, body := doRequest(t, routes, http.MethodGet, fixture.target)
			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "gzipped "+fixture.path, body)
			assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
			assert.Equal(t, "text/javascript; charset=utf-8", res.Header.Get("Content-Type"))
			assert.Equal(t, fixture.cache, res.Header.Get("Cache-Control"))
			assert.Equal(t, "6dcb09b5b57875f334f61aebed695e2e4193db5e", res.Header.Get(RevisionHeader))
			assert.Equal(t, fmt.Sprintf("%d", len(body)), res.Header.Get("Content-Length"))
			svc.AssertExpectations(t)
		})
	}
}

func TestHeadRequest(t *testing.T) {
	svc, routes := setupTests(t, false)
	svc.On("Serve", "main", "entry.js").Return(fileResponse("entry.js", false), nil).Once()

	res, body := doRequest(t, routes, http.MethodHead, "/main/entry.js")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, body)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
}

func TestCanonicalRedirects(t *testing.T) {
	for _, toPin := range []struct {
		target   string
		location string
	}{
		{target: "/main/entry.js?v=1", location: "/main/entry.js"},
		{target: "/main/entry.js?", location: "/main/entry.js"},
		{target: "//main//entry.js", location: "/main/entry.js"},
		{target: "/main/./lib/../entry.js", location: "/main/entry.js"},
		{target: "/main//lib/", location: "/main/lib/"},
		{target: "/head/entry.js", location: "/HEAD/entry.js"},
		{target: "/Head", location: "/HEAD"},
		{target: "/hEaD/lib/./a-1.js?x", location: "/HEAD/lib/a-1.js"},
		{target: "/main/my%20lib.js?q", location: "/main/my%20lib.js"},
	} {
		fixture := toPin
		t.Run(fixture.target, func(t *testing.T) {
			svc, routes := setupTests(t, false)

			res, _ := doRequest(t, routes, http.MethodGet, fixture.target)
			require.Equal(t, http.StatusMovedPermanently, res.StatusCode)
			assert.Equal(t, fixture.location, res.Header.Get("Location"))
			svc.AssertNotCalled(t, "Serve", mock.Anything, mock.Anything)
		})
	}
}

func TestNotFoundRoutes(t *testing.T) {
	for _, target := range []string{"/", "/main", "/main/"} {
		target := target
		t.Run(target, func(t *testing.T) {
			svc, routes := setupTests(t, false)

			res, body := doRequest(t, routes, http.MethodGet, target)
			require.Equal(t, http.StatusNotFound, res.StatusCode)
			assert.Equal(t, "404 Not found.", body)
			svc.AssertNotCalled(t, "Serve", mock.Anything, mock.Anything)
		})
	}
}

func TestServeErrors(t *testing.T) {
	schema := model.Schema{"entry.js": {Version: 0, Dependencies: []string{"lib.js"}, Hash: "abc"}}

	for _, toPin := range []struct {
		name     string
		debug    bool
		err      error
		code     int
		body     string
		contains []string
	}{
		{
			name: "invalid reference",
			err:  status.ErrInvalidReference.Wrapf("reference not found"),
			code: http.StatusBadRequest,
			body: `Invalid branch/hash/tag "nope"`,
		},
		{
			name: "missing file",
			err:  &core.MissingFileError{Path: "lib-3.js", Schema: schema},
			code: http.StatusNotFound,
			body: "No such file.",
		},
		{
			name:     "missing file in debug mode",
			debug:    true,
			err:      &core.MissingFileError{Path: "lib-3.js", Schema: schema},
			code:     http.StatusNotFound,
			contains: []string{"No such file.\n\n", `"entry.js"`, `"dependencies"`},
		},
		{
			name: "internal",
			err:  status.ErrInternal.Wrap(fmt.Errorf("disk on fire")),
			code: http.StatusInternalServerError,
			body: "500 Internal Server Error",
		},
		{
			name:     "internal in debug mode",
			debug:    true,
			err:      status.ErrInternal.Wrap(fmt.Errorf("disk on fire")),
			code:     http.StatusInternalServerError,
			contains: []string{"500 Internal Server Error\n\n", "disk on fire"},
		},
		{
			name: "interrupted",
			err:  status.ErrInterrupted.Wrap(context.Canceled),
			code: http.StatusInternalServerError,
			body: "500 Internal Server Error",
		},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			svc, routes := setupTests(t, fixture.debug)
			svc.On("Serve", "nope", "lib-3.js").Return(nil, fixture.err).Once()

			res, body := doRequest(t, routes, http.MethodGet, "/nope/lib-3.js")
			require.Equal(t, fixture.code, res.StatusCode)
			assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))
			assert.Empty(t, res.Header.Get("Content-Encoding"))
			if fixture.body != "" {
				assert.Equal(t, fixture.body, body)
			}
			for _, part := range fixture.contains {
				assert.Contains(t, body, part)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestRecoverFromPanic(t *testing.T) {
	svc, routes := setupTests(t, false)
	svc.On("Serve", "main", "entry.js").Panic("boom").Once()

	res, _ := doRequest(t, routes, http.MethodGet, "/main/entry.js")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestCanonicalPath(t *testing.T) {
	for in, expected := range map[string]string{
		"":            "/",
		"/":           "/",
		"/a/b":        "/a/b",
		"a/b":         "/a/b",
		"/a/../../b":  "/b",
		"/a/b/":       "/a/b/",
		"/heads/x":    "/heads/x",
		"/HEAD/x":     "/HEAD/x",
		"/head":       "/HEAD",
		"/hEAD/x/./y": "/HEAD/x/y",
	} {
		assert.Equal(t, expected, canonicalPath(in), "canonical form of %q", in)
	}
}
