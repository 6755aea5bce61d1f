package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/tileview/internal/config"
    "github.com/local/tileview/internal/docsource"
    "github.com/local/tileview/internal/imagerender"
    "github.com/local/tileview/internal/layout"
    logpkg "github.com/local/tileview/internal/logger"
    "github.com/local/tileview/internal/metrics"
    "github.com/local/tileview/internal/pdfdoc"
    "github.com/local/tileview/internal/session"
    "github.com/local/tileview/internal/statestore"
    "github.com/local/tileview/internal/statuscheck"
    "github.com/local/tileview/internal/view"
    web "github.com/local/tileview/internal/web"
    "github.com/local/tileview/internal/worker"
)

func main() {
    cfg, err := cfgpkg.Load()
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()

    // View state store
    var st statestore.Store
    switch cfg.Store.Backend {
    case "redis":
        rs, err := statestore.NewRedisStore(cfg.Store.RedisURL)
        if err != nil { log.Fatal().Err(err).Msg("failed to connect to redis") }
        st = rs
    case "file":
        st = statestore.NewFileStore(cfg.Store.FilePath)
    default:
        log.Info().Str("backend", cfg.Store.Backend).Msg("view state persistence disabled")
    }
    if st != nil { defer st.Close() }

    // Document sources
    var conv *docsource.Converter
    if cfg.Source.ConvertOffice {
        conv = docsource.NewConverter(cfg.Source.LibreOffice, cfg.Source.ConvertWorkers, cfg.Source.ConvertTimeout)
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        if err := conv.Check(ctx); err != nil {
            log.Warn().Err(err).Msg("office conversion disabled")
            conv = nil
        }
        cancel()
    }
    resolverS3 := docsource.S3Options{
        Region:       cfg.Source.S3.Region,
        Endpoint:     cfg.Source.S3.Endpoint,
        AccessKey:    cfg.Source.S3.AccessKey,
        SecretKey:    cfg.Source.S3.SecretKey,
        UsePathStyle: cfg.Source.S3.UsePathStyle,
    }
    resolver := docsource.New(docsource.Options{
        TempDir:     cfg.Source.TempDir,
        HTTPTimeout: cfg.Source.HTTPTimeout,
        S3:          resolverS3,
        Converter:   conv,
    })

    // Views
    sess := session.New(session.Options{
        Base: view.Options{
            Workers:        cfg.Render.Workers,
            Opener:         pdfdoc.FitzOpener{CacheSize: cfg.Render.RasterCachePages},
            Layout:         layout.New(cfg.View.ScreenDPI, cfg.View.ZoomLevels, cfg.View.HSpacing, cfg.View.VSpacing),
            PatchSize:      cfg.Render.PatchSize,
            CoverThreshold: cfg.View.CoverThreshold,
            ResizeDebounce: cfg.View.ResizeDebounce,
            Worker: worker.Options{
                Tick: cfg.Render.Tick,
                Encode: imagerender.Options{
                    Format:  imagerender.ParseFormat(cfg.Render.TileFormat),
                    Quality: cfg.Render.TileJPEGQuality,
                    Color:   imagerender.ColorRGB,
                },
            },
        },
        ScreenDPI: cfg.View.ScreenDPI,
        Tick:      cfg.View.ControlTick,
        Resolver:  resolver,
        Store:     st,
    })
    defer sess.Close()

    if ref := cfg.Server.OpenOnStart; ref != "" {
        ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.HTTPTimeout)
        if err := sess.Open(ctx, ref); err != nil {
            log.Error().Err(err).Str("ref", ref).Msg("failed to open initial document")
        }
        cancel()
    }

    // Dependency status
    statusOpts := statuscheck.Options{S3: resolverS3}
    if p, ok := st.(statuscheck.Pinger); ok { statusOpts.Store = p }
    if conv != nil { statusOpts.Converter = conv }

    mux := http.NewServeMux()
    web.New(sess, web.Options{
        Username:    cfg.Server.Username,
        Password:    cfg.Server.Password,
        CallTimeout: cfg.Server.CallTimeout,
        Status:      statuscheck.New(statusOpts),
    }).RegisterRoutes(mux)

    srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

    go func() {
        log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(ctx)
    fmt.Println("shutdown complete")
}
