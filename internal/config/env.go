package config

import (
    "errors"
    "io/fs"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// RenderConfig controls the render workers of every view.
type RenderConfig struct {
    Workers          int
    Tick             time.Duration
    PatchSize        int
    TileFormat       string // "png"|"jpeg"
    TileJPEGQuality  int
    RasterCachePages int
}

// ViewConfig controls layout and the view controllers.
type ViewConfig struct {
    ScreenDPI      float64
    ZoomLevels     []float64
    HSpacing       float64
    VSpacing       float64
    ControlTick    time.Duration
    ResizeDebounce time.Duration
    CoverThreshold float64
}

// StoreConfig selects where view states are persisted.
type StoreConfig struct {
    Backend  string // "redis"|"file"|"none"
    RedisURL string
    FilePath string
}

// S3Config holds credentials for s3:// document references.
type S3Config struct {
    Region       string
    Endpoint     string
    AccessKey    string
    SecretKey    string
    UsePathStyle bool
}

// SourceConfig controls how document references are fetched and converted.
type SourceConfig struct {
    TempDir        string
    HTTPTimeout    time.Duration
    S3             S3Config
    ConvertOffice  bool
    LibreOffice    string
    ConvertWorkers int
    ConvertTimeout time.Duration
}

// ServerConfig holds the HTTP control surface settings.
type ServerConfig struct {
    Port        string
    Username    string
    Password    string
    CallTimeout time.Duration
    OpenOnStart string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    Render  RenderConfig
    View    ViewConfig
    Store   StoreConfig
    Source  SourceConfig
    Server  ServerConfig
}

var defaultZoomLevels = []float64{0.12, 0.25, 0.33, 0.50, 0.66, 0.75, 1.0, 1.25, 1.5, 2.0, 4.0, 8.0, 16.0}

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set win over the file.
func Load(files ...string) (Config, error) {
    if len(files) == 0 { files = []string{".env"} }
    for _, f := range files {
        if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return Config{}, err
        }
    }
    return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/tileview.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_tileview",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // Render defaults
    cfg.Render = RenderConfig{
        Workers:          parseInt(getEnv("RENDER_WORKERS", "4"), 4),
        Tick:             parseDuration(getEnv("RENDER_TICK", "20ms"), 20*time.Millisecond),
        PatchSize:        parseInt(getEnv("PATCH_SIZE", "800"), 800),
        TileFormat:       strings.ToLower(getEnv("TILE_FORMAT", "png")),
        TileJPEGQuality:  parseInt(getEnv("TILE_JPEG_QUALITY", "85"), 85),
        RasterCachePages: parseInt(getEnv("RASTER_CACHE_PAGES", "4"), 4),
    }
    if cfg.Render.Workers < 1 { cfg.Render.Workers = 1 }

    // View defaults
    cfg.View = ViewConfig{
        ScreenDPI:      parseFloat(getEnv("SCREEN_DPI", "96"), 96),
        ZoomLevels:     parseFloatList(getEnv("ZOOM_LEVELS", ""), defaultZoomLevels),
        HSpacing:       parseFloat(getEnv("VIEW_HSPACING", "3"), 3),
        VSpacing:       parseFloat(getEnv("VIEW_VSPACING", "5"), 5),
        ControlTick:    parseDuration(getEnv("CONTROL_TICK", "20ms"), 20*time.Millisecond),
        ResizeDebounce: parseDuration(getEnv("RESIZE_DEBOUNCE", "200ms"), 200*time.Millisecond),
        CoverThreshold: parseFloat(getEnv("COVER_THRESHOLD", "0.9"), 0.9),
    }

    // Store defaults
    cfg.Store = StoreConfig{
        Backend:  strings.ToLower(getEnv("STATE_STORE", "file")),
        RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
        FilePath: getEnv("STATE_FILE", "data/views.json"),
    }

    // Source defaults
    cfg.Source = SourceConfig{
        TempDir:     getEnv("SOURCE_TEMP_DIR", ""),
        HTTPTimeout: parseDuration(getEnv("SOURCE_HTTP_TIMEOUT", "60s"), 60*time.Second),
        S3: S3Config{
            Region:       getEnv("S3_REGION", "us-east-1"),
            Endpoint:     getEnv("S3_ENDPOINT", ""),
            AccessKey:    getEnv("S3_ACCESS_KEY", ""),
            SecretKey:    getEnv("S3_SECRET_KEY", ""),
            UsePathStyle: parseBool(getEnv("S3_USE_PATH_STYLE", "0")),
        },
        ConvertOffice:  parseBool(getEnv("CONVERT_OFFICE", "0")),
        LibreOffice:    getEnv("LIBREOFFICE_BIN", "soffice"),
        ConvertWorkers: parseInt(getEnv("CONVERT_WORKERS", "2"), 2),
        ConvertTimeout: parseDuration(getEnv("CONVERT_TIMEOUT", "180s"), 180*time.Second),
    }

    // Server defaults
    cfg.Server = ServerConfig{
        Port:        getEnv("PORT", "8080"),
        Username:    getEnv("WEB_USERNAME", ""),
        Password:    getEnv("WEB_PASSWORD", ""),
        CallTimeout: parseDuration(getEnv("WEB_CALL_TIMEOUT", "10s"), 10*time.Second),
        OpenOnStart: getEnv("OPEN_DOCUMENT", ""),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

// parseFloatList parses a comma separated ascending list of positive
// numbers; anything else yields def.
func parseFloatList(s string, def []float64) []float64 {
    if strings.TrimSpace(s) == "" { return append([]float64(nil), def...) }
    var out []float64
    for _, part := range strings.Split(s, ",") {
        f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
        if err != nil || f <= 0 { return append([]float64(nil), def...) }
        if len(out) > 0 && f <= out[len(out)-1] { return append([]float64(nil), def...) }
        out = append(out, f)
    }
    return out
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
