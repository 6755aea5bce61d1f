package web

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "os"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/tileview/internal/docsource"
    "github.com/local/tileview/internal/geom"
    "github.com/local/tileview/internal/imagerender"
    "github.com/local/tileview/internal/metrics"
    "github.com/local/tileview/internal/session"
    "github.com/local/tileview/internal/statuscheck"
    "github.com/local/tileview/internal/view"
)

// Options configures the API.
type Options struct {
    // Username and Password enable basic auth on every route but /health.
    Username string
    Password string
    // CallTimeout bounds one call into the session.
    CallTimeout time.Duration
    // Status serves GET /status when set.
    Status *statuscheck.StatusChecker
}

// API exposes a session over HTTP.
type API struct {
    sess     *session.Session
    username string
    password string
    timeout  time.Duration
    status   *statuscheck.StatusChecker
}

func New(s *session.Session, opts Options) *API {
    if opts.CallTimeout <= 0 { opts.CallTimeout = 10 * time.Second }
    return &API{sess: s, username: opts.Username, password: opts.Password, timeout: opts.CallTimeout, status: opts.Status}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    if a.status != nil {
        mux.HandleFunc("GET /status", a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
            writeJSON(w, http.StatusOK, a.status.Summary(r.Context()))
        }))
    }
    mux.Handle("GET /metrics", a.requireAuth(metrics.Handler().ServeHTTP))
    mux.HandleFunc("POST /open", a.requireAuth(a.handleOpen))
    mux.HandleFunc("GET /toc", a.requireAuth(a.handleTOC))
    mux.HandleFunc("GET /views/{name}", a.requireAuth(a.handleView))
    mux.HandleFunc("POST /views/{name}/resize", a.requireAuth(a.handleResize))
    mux.HandleFunc("POST /views/{name}/scroll", a.requireAuth(a.handleScroll))
    mux.HandleFunc("POST /views/{name}/zoom", a.requireAuth(a.handleZoom))
    mux.HandleFunc("POST /views/{name}/columns", a.requireAuth(a.handleColumns))
    mux.HandleFunc("POST /views/{name}/leading", a.requireAuth(a.handleLeading))
    mux.HandleFunc("POST /views/{name}/goto", a.requireAuth(a.handleGoto))
    mux.HandleFunc("POST /views/{name}/relocate", a.requireAuth(a.handleRelocate))
    mux.HandleFunc("GET /views/{name}/frame.png", a.requireAuth(a.handleFrame))
    mux.HandleFunc("GET /views/{name}/state", a.requireAuth(a.handleGetState))
    mux.HandleFunc("PUT /views/{name}/state", a.requireAuth(a.handleSaveState))
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        if a.username == "" && a.password == "" {
            next(w, r)
            return
        }
        u, p, ok := r.BasicAuth()
        if !ok || u != a.username || p != a.password {
            w.Header().Set("WWW-Authenticate", `Basic realm="tileview"`)
            http.Error(w, "unauthorized", http.StatusUnauthorized)
            return
        }
        next(w, r)
    }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
    var unsupported *docsource.UnsupportedRefError
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, session.ErrUnknownView), errors.Is(err, os.ErrNotExist):
        status = http.StatusNotFound
    case errors.Is(err, session.ErrNoDocument):
        status = http.StatusConflict
    case errors.As(err, &unsupported):
        status = http.StatusUnprocessableEntity
    case errors.As(err, new(badRequestError)):
        status = http.StatusBadRequest
    case errors.Is(err, session.ErrNoStore):
        status = http.StatusNotImplemented
    case errors.Is(err, session.ErrClosed):
        status = http.StatusServiceUnavailable
    case errors.Is(err, context.DeadlineExceeded):
        status = http.StatusGatewayTimeout
    }
    if status == http.StatusInternalServerError {
        log.Error().Err(err).Msg("request failed")
    }
    writeJSON(w, status, map[string]any{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
    defer r.Body.Close()
    if err := json.NewDecoder(r.Body).Decode(v); err != nil {
        http.Error(w, "invalid json", http.StatusBadRequest)
        return false
    }
    return true
}

// withView runs fn on the session's control goroutine with the view named in
// the path.
func (a *API) withView(r *http.Request, fn func(v *view.Controller) error) error {
    ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
    defer cancel()
    name := r.PathValue("name")
    return a.sess.Do(ctx, func() error {
        v, err := a.sess.View(name)
        if err != nil { return err }
        return fn(v)
    })
}

// ViewInfo is the JSON description of a view.
type ViewInfo struct {
    Name        string       `json:"name"`
    Filename    string       `json:"filename"`
    Loaded      bool         `json:"loaded"`
    PageCount   int          `json:"page_count"`
    CurrentPage int          `json:"current_page"`
    ZoomIndex   int          `json:"zoom_index"`
    FitWidth    bool         `json:"fit_width"`
    Columns     int          `json:"columns"`
    Leading     int          `json:"leading_empty_page"`
    Viewport    geom.Rect    `json:"viewport"`
    Canvas      geom.Size    `json:"canvas"`
    Regions     []RegionInfo `json:"regions"`
}

// RegionInfo is one visible page region in page pixels.
type RegionInfo struct {
    Page int     `json:"page"`
    X    int     `json:"x"`
    Y    int     `json:"y"`
    W    int     `json:"w"`
    H    int     `json:"h"`
    DPI  float64 `json:"dpi"`
}

func describe(v *view.Controller) ViewInfo {
    zi, fit := v.Zoom()
    cols, lead := v.Columns()
    x, y := v.Scroll()
    w, h := v.ViewportSize()
    info := ViewInfo{
        Name: v.Name(), Filename: v.Filename(), Loaded: v.Loaded(), PageCount: v.PageCount(),
        CurrentPage: v.CurrentPage(), ZoomIndex: zi, FitWidth: fit, Columns: cols, Leading: lead,
        Viewport: geom.R(x, y, w, h), Canvas: v.Canvas(), Regions: []RegionInfo{},
    }
    for _, r := range v.VisibleRegions() {
        info.Regions = append(info.Regions, RegionInfo{
            Page: r.Page, X: r.Local.Min.X, Y: r.Local.Min.Y, W: r.Local.Dx(), H: r.Local.Dy(), DPI: v.PageDPI(r.Page),
        })
    }
    return info
}

func (a *API) handleOpen(w http.ResponseWriter, r *http.Request) {
    var req struct {
        Ref string `json:"ref"`
    }
    if !decode(w, r, &req) { return }
    if req.Ref == "" { http.Error(w, "missing ref", http.StatusBadRequest); return }
    if err := a.sess.Open(r.Context(), req.Ref); err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok", "ref": req.Ref})
}

func (a *API) handleTOC(w http.ResponseWriter, r *http.Request) {
    name := r.URL.Query().Get("view")
    if name == "" { name = session.Main }
    r.SetPathValue("name", name)
    var info view.TOCInfo
    if err := a.withView(r, func(v *view.Controller) error { info = v.TOC(); return nil }); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, info)
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
    var info ViewInfo
    if err := a.withView(r, func(v *view.Controller) error { info = describe(v); return nil }); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, info)
}

// update decodes req, applies fn and answers with the view description.
func (a *API) update(w http.ResponseWriter, r *http.Request, req any, fn func(v *view.Controller) error) {
    if req != nil && !decode(w, r, req) { return }
    var info ViewInfo
    err := a.withView(r, func(v *view.Controller) error {
        if err := fn(v); err != nil { return err }
        info = describe(v)
        return nil
    })
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusOK, info)
}

type point struct {
    X float64 `json:"x"`
    Y float64 `json:"y"`
}

func (a *API) handleResize(w http.ResponseWriter, r *http.Request) {
    var req struct {
        Width  float64 `json:"width"`
        Height float64 `json:"height"`
    }
    a.update(w, r, &req, func(v *view.Controller) error {
        if req.Width <= 0 || req.Height <= 0 { return badRequest("width and height must be positive") }
        v.Resize(req.Width, req.Height)
        return nil
    })
}

func (a *API) handleScroll(w http.ResponseWriter, r *http.Request) {
    var req struct {
        point
        Relative bool `json:"relative"`
    }
    a.update(w, r, &req, func(v *view.Controller) error {
        if req.Relative {
            v.ScrollBy(req.X, req.Y)
        } else {
            v.ScrollTo(req.X, req.Y)
        }
        return nil
    })
}

func (a *API) handleZoom(w http.ResponseWriter, r *http.Request) {
    var req struct {
        Action string `json:"action"`
        Anchor *point `json:"anchor,omitempty"`
    }
    a.update(w, r, &req, func(v *view.Controller) error {
        var anchor *view.Anchor
        if req.Anchor != nil {
            if an, ok := v.PageAt(req.Anchor.X, req.Anchor.Y); ok { anchor = &an }
        }
        switch req.Action {
        case "in":
            v.ZoomIn(anchor)
        case "out":
            v.ZoomOut(anchor)
        case "fit":
            v.ZoomFitWidth()
        case "actual":
            v.ToggleActualSize()
        default:
            return badRequest(fmt.Sprintf("unknown zoom action %q", req.Action))
        }
        return nil
    })
}

type countReq struct {
    Count int `json:"count"`
}

func (a *API) handleColumns(w http.ResponseWriter, r *http.Request) {
    var req countReq
    a.update(w, r, &req, func(v *view.Controller) error { v.SetColumnCount(req.Count); return nil })
}

func (a *API) handleLeading(w http.ResponseWriter, r *http.Request) {
    var req countReq
    a.update(w, r, &req, func(v *view.Controller) error { v.SetLeadingEmptyPage(req.Count); return nil })
}

func (a *API) handleGoto(w http.ResponseWriter, r *http.Request) {
    var req struct {
        Page   *int   `json:"page,omitempty"`
        Action string `json:"action,omitempty"`
    }
    a.update(w, r, &req, func(v *view.Controller) error {
        switch {
        case req.Page != nil:
            v.GotoPage(*req.Page)
        case req.Action == "next":
            v.NextPage()
        case req.Action == "prev":
            v.PrevPage()
        default:
            return badRequest("page or action (next, prev) required")
        }
        return nil
    })
}

func (a *API) handleRelocate(w http.ResponseWriter, r *http.Request) {
    var req point
    a.update(w, r, &req, func(v *view.Controller) error { v.RequestRelocation(req.X, req.Y); return nil })
}

func (a *API) handleFrame(w http.ResponseWriter, r *http.Request) {
    var data []byte
    err := a.withView(r, func(v *view.Controller) error {
        var err error
        data, err = imagerender.Encode(v.Frame(), imagerender.Options{Format: imagerender.FormatPNG})
        return err
    })
    if err != nil { writeError(w, err); return }
    w.Header().Set("Content-Type", "image/png")
    w.Header().Set("Cache-Control", "no-store")
    _, _ = w.Write(data)
}

func (a *API) handleGetState(w http.ResponseWriter, r *http.Request) {
    var st view.State
    err := a.withView(r, func(v *view.Controller) error {
        var ok bool
        if st, ok = v.State(); !ok { return session.ErrNoDocument }
        return nil
    })
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusOK, st)
}

func (a *API) handleSaveState(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
    defer cancel()
    st, err := a.sess.SaveState(ctx, r.PathValue("name"))
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusOK, st)
}

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func badRequest(msg string) error { return badRequestError(msg) }
