package web

import (
    "bytes"
    "context"
    "encoding/json"
    "image/png"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/local/tileview/internal/docsource"
    "github.com/local/tileview/internal/layout"
    "github.com/local/tileview/internal/pdfdoc"
    "github.com/local/tileview/internal/session"
    "github.com/local/tileview/internal/statuscheck"
    "github.com/local/tileview/internal/view"
    "github.com/local/tileview/internal/worker"
)

type passthrough struct{}

func (passthrough) Resolve(_ context.Context, ref string) (*docsource.Resolved, error) {
    return &docsource.Resolved{Ref: ref, Path: ref}, nil
}

func newServer(t *testing.T, opts Options) *httptest.Server {
    t.Helper()
    o := pdfdoc.NewMemoryOpener()
    o.Add("doc.pdf", pdfdoc.MemoryDoc{Sizes: [][2]float64{{8.5, 11}, {8.5, 11}, {11, 8.5}}})
    s := session.New(session.Options{
        Base: view.Options{
            Workers: 2,
            Opener:  o,
            Layout:  layout.New(96, nil, 3, 5),
            Worker:  worker.Options{Tick: time.Millisecond},
        },
        Tick:     time.Millisecond,
        Resolver: passthrough{},
    })
    t.Cleanup(s.Close)
    mux := http.NewServeMux()
    New(s, opts).RegisterRoutes(mux)
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
    t.Helper()
    var buf bytes.Buffer
    if body != nil {
        require.NoError(t, json.NewEncoder(&buf).Encode(body))
    }
    req, err := http.NewRequest(method, srv.URL+path, &buf)
    require.NoError(t, err)
    resp, err := srv.Client().Do(req)
    require.NoError(t, err)
    t.Cleanup(func() { resp.Body.Close() })
    return resp
}

func viewInfo(t *testing.T, resp *http.Response) ViewInfo {
    t.Helper()
    require.Equal(t, http.StatusOK, resp.StatusCode)
    var info ViewInfo
    require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
    return info
}

func openDoc(t *testing.T, srv *httptest.Server) {
    t.Helper()
    viewInfo(t, call(t, srv, http.MethodPost, "/views/main/resize", map[string]any{"width": 800, "height": 600}))
    resp := call(t, srv, http.MethodPost, "/open", map[string]any{"ref": "doc.pdf"})
    require.Equal(t, http.StatusAccepted, resp.StatusCode)
    require.Eventually(t, func() bool {
        resp := call(t, srv, http.MethodGet, "/views/main", nil)
        var info ViewInfo
        return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&info) == nil && info.Loaded
    }, 5*time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
    srv := newServer(t, Options{})
    resp := call(t, srv, http.MethodGet, "/health", nil)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOpenAndNavigate(t *testing.T) {
    srv := newServer(t, Options{})
    openDoc(t, srv)

    info := viewInfo(t, call(t, srv, http.MethodGet, "/views/main", nil))
    assert.Equal(t, 3, info.PageCount)
    assert.True(t, info.FitWidth)
    assert.Equal(t, 0, info.CurrentPage)
    require.NotEmpty(t, info.Regions)
    assert.Equal(t, 0, info.Regions[0].Page)

    info = viewInfo(t, call(t, srv, http.MethodPost, "/views/main/zoom", map[string]any{"action": "in"}))
    assert.False(t, info.FitWidth)
    assert.Equal(t, 7, info.ZoomIndex)

    info = viewInfo(t, call(t, srv, http.MethodPost, "/views/main/columns", map[string]any{"count": 2}))
    assert.Equal(t, 2, info.Columns)
    info = viewInfo(t, call(t, srv, http.MethodPost, "/views/main/leading", map[string]any{"count": 1}))
    assert.Equal(t, 1, info.Leading)

    viewInfo(t, call(t, srv, http.MethodPost, "/views/main/goto", map[string]any{"page": 2}))
    viewInfo(t, call(t, srv, http.MethodPost, "/views/main/scroll", map[string]any{"x": 0, "y": 10, "relative": true}))
    viewInfo(t, call(t, srv, http.MethodPost, "/views/main/relocate", map[string]any{"x": 10, "y": 10}))

    resp := call(t, srv, http.MethodGet, "/views/main/state", nil)
    require.Equal(t, http.StatusOK, resp.StatusCode)
    var st view.State
    require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
    assert.Equal(t, 2, st.ColumnCount)

    resp = call(t, srv, http.MethodGet, "/toc", nil)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFrame(t *testing.T) {
    srv := newServer(t, Options{})
    openDoc(t, srv)

    resp := call(t, srv, http.MethodGet, "/views/main/frame.png", nil)
    require.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
    img, err := png.Decode(resp.Body)
    require.NoError(t, err)
    assert.Equal(t, 800, img.Bounds().Dx())
    assert.Equal(t, 600, img.Bounds().Dy())
}

func TestErrors(t *testing.T) {
    srv := newServer(t, Options{})

    assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/views/nope", nil).StatusCode)
    assert.Equal(t, http.StatusConflict, call(t, srv, http.MethodGet, "/views/main/state", nil).StatusCode)
    assert.Equal(t, http.StatusNotImplemented, call(t, srv, http.MethodPut, "/views/main/state", nil).StatusCode)
    assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/views/main/zoom", map[string]any{"action": "sideways"}).StatusCode)
    assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/views/main/goto", map[string]any{}).StatusCode)
    assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/open", map[string]any{}).StatusCode)
    assert.Equal(t, http.StatusMethodNotAllowed, call(t, srv, http.MethodGet, "/views/main/zoom", nil).StatusCode)
}

func TestBasicAuth(t *testing.T) {
    srv := newServer(t, Options{Username: "u", Password: "p"})

    assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/health", nil).StatusCode)
    assert.Equal(t, http.StatusUnauthorized, call(t, srv, http.MethodGet, "/views/main", nil).StatusCode)

    req, err := http.NewRequest(http.MethodGet, srv.URL+"/views/main", nil)
    require.NoError(t, err)
    req.SetBasicAuth("u", "p")
    resp, err := srv.Client().Do(req)
    require.NoError(t, err)
    defer resp.Body.Close()
    assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus(t *testing.T) {
    srv := newServer(t, Options{})
    assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/status", nil).StatusCode)

    srv = newServer(t, Options{Status: statuscheck.New(statuscheck.Options{})})
    resp := call(t, srv, http.MethodGet, "/status", nil)
    require.Equal(t, http.StatusOK, resp.StatusCode)
    var sum statuscheck.Summary
    require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
    assert.Equal(t, "Disabled", sum.Store.Message)
}
