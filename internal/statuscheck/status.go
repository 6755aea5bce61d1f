package statuscheck

import (
    "context"
    "errors"
    "time"

    "github.com/aws/aws-sdk-go-v2/aws"
    awscfg "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/s3"

    "github.com/local/tileview/internal/docsource"
)

// Pinger is implemented by the view state stores.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Prober is implemented by the office converter.
type Prober interface {
    Check(ctx context.Context) error
}

// S3Lister is the part of the S3 client the check uses.
type S3Lister interface {
    ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Options configures a StatusChecker. Nil members report as disabled.
type Options struct {
    Store     Pinger
    Converter Prober
    S3        docsource.S3Options
    // S3Client overrides the client built from S3.
    S3Client S3Lister
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Store       Status `json:"store"`
    S3          Status `json:"s3"`
    LibreOffice Status `json:"libreoffice"`
}

// StatusChecker reports on the dependencies that document loading and state
// persistence rely on.
type StatusChecker struct {
    store     Pinger
    converter Prober
    s3opts    docsource.S3Options
    s3        S3Lister
}

// New creates a new StatusChecker with the provided options.
func New(opts Options) *StatusChecker {
    return &StatusChecker{
        store:     opts.Store,
        converter: opts.Converter,
        s3opts:    opts.S3,
        s3:        opts.S3Client,
    }
}

// Summary returns the current status snapshot.
func (c *StatusChecker) Summary(ctx context.Context) Summary {
    return Summary{
        Store:       c.checkStore(ctx),
        S3:          c.checkS3(ctx),
        LibreOffice: c.checkLibreOffice(ctx),
    }
}

func (c *StatusChecker) checkStore(ctx context.Context) Status {
    if c.store == nil {
        return Status{OK: false, Message: "Disabled"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.store.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *StatusChecker) checkS3(ctx context.Context) Status {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    cli := c.s3
    if cli == nil {
        if c.s3opts.AccessKey == "" {
            return Status{OK: false, Message: "Not configured"}
        }
        cfg, err := awscfg.LoadDefaultConfig(ctx,
            awscfg.WithRegion(c.s3opts.Region),
            awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.s3opts.AccessKey, c.s3opts.SecretKey, "")),
        )
        if err != nil {
            return Status{OK: false, Message: trimError(err)}
        }
        cli = s3.NewFromConfig(cfg, func(o *s3.Options) {
            if c.s3opts.Endpoint != "" { o.BaseEndpoint = aws.String(c.s3opts.Endpoint) }
            o.UsePathStyle = c.s3opts.UsePathStyle
        })
    }
    if _, err := cli.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *StatusChecker) checkLibreOffice(ctx context.Context) Status {
    if c.converter == nil {
        return Status{OK: false, Message: "Disabled"}
    }
    ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
    defer cancel()
    if err := c.converter.Check(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
