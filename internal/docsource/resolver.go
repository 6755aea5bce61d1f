// Package docsource turns document references into local PDF files:
// plain paths and file:// URLs are used in place, http(s) and s3 objects are
// downloaded, and office documents are converted when a converter is set.
package docsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// UnsupportedRefError reports a reference that cannot be opened as a PDF.
type UnsupportedRefError struct {
	Ref    string
	Reason string
}

func (e *UnsupportedRefError) Error() string {
	return fmt.Sprintf("unsupported document %q: %s", e.Ref, e.Reason)
}

// S3Options configures access to s3:// references. Empty keys fall back to
// the default AWS credential chain.
type S3Options struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Options configures a Resolver.
type Options struct {
	TempDir     string
	HTTPTimeout time.Duration
	S3          S3Options
	// Converter converts office documents; nil rejects them.
	Converter *Converter
}

// Resolved is a local PDF ready to open.
type Resolved struct {
	Ref       string
	Path      string
	Converted bool
	temp      []string
}

// Cleanup removes downloaded and converted files.
func (r *Resolved) Cleanup() {
	for _, p := range r.temp {
		if err := os.RemoveAll(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to remove temp file")
		}
	}
	r.temp = nil
}

// Resolver resolves references. It is safe for concurrent use.
type Resolver struct {
	opts Options
	http *http.Client

	s3once sync.Once
	s3     *manager.Downloader
	s3err  error
}

// New returns a Resolver.
func New(opts Options) *Resolver {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 60 * time.Second
	}
	return &Resolver{opts: opts, http: &http.Client{Timeout: opts.HTTPTimeout}}
}

// Resolve fetches ref if needed and returns the local PDF for it.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolved, error) {
	res := &Resolved{Ref: ref}
	local, err := r.fetch(ctx, ref, res)
	if err != nil {
		res.Cleanup()
		return nil, err
	}

	ft, err := Detect(local)
	if err != nil {
		res.Cleanup()
		return nil, err
	}
	switch ft.Class {
	case ClassPDF:
		res.Path = local
	case ClassOffice:
		if r.opts.Converter == nil {
			res.Cleanup()
			return nil, &UnsupportedRefError{Ref: ref, Reason: "office conversion disabled"}
		}
		dir, err := os.MkdirTemp(r.opts.TempDir, "tileview-convert-")
		if err != nil {
			res.Cleanup()
			return nil, fmt.Errorf("create conversion dir: %w", err)
		}
		res.temp = append(res.temp, dir)
		out, err := r.opts.Converter.Convert(ctx, local, dir)
		if err != nil {
			res.Cleanup()
			return nil, fmt.Errorf("convert %s: %w", ref, err)
		}
		res.Path, res.Converted = out, true
	default:
		res.Cleanup()
		return nil, &UnsupportedRefError{Ref: ref, Reason: ft.MIMEType}
	}
	log.Info().Str("ref", ref).Str("path", res.Path).Bool("converted", res.Converted).Msg("document resolved")
	return res, nil
}

func (r *Resolver) fetch(ctx context.Context, ref string, res *Resolved) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || len(u.Scheme) <= 1 {
		// plain path; a one letter scheme is a windows drive
		return checkLocal(ref)
	}
	switch u.Scheme {
	case "file":
		return checkLocal(u.Path)
	case "http", "https":
		return r.download(ctx, ref, res, func(f *os.File) error { return r.fetchHTTP(ctx, ref, f) })
	case "s3":
		bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
		if bucket == "" || key == "" {
			return "", &UnsupportedRefError{Ref: ref, Reason: "s3 reference needs bucket and key"}
		}
		return r.download(ctx, ref, res, func(f *os.File) error { return r.fetchS3(ctx, bucket, key, f) })
	default:
		return "", &UnsupportedRefError{Ref: ref, Reason: "scheme " + u.Scheme}
	}
}

func checkLocal(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("open document %s: is a directory", p)
	}
	return p, nil
}

// download writes the object into a temp file named after the ref, so
// extension based detection keeps working.
func (r *Resolver) download(ctx context.Context, ref string, res *Resolved, get func(*os.File) error) (string, error) {
	dir, err := os.MkdirTemp(r.opts.TempDir, "tileview-dl-")
	if err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	res.temp = append(res.temp, dir)

	name := path.Base(strings.SplitN(ref, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "document"
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer f.Close()
	start := time.Now()
	if err := get(f); err != nil {
		return "", err
	}
	log.Debug().Str("ref", ref).Str("file", f.Name()).Dur("duration", time.Since(start)).Msg("document downloaded")
	return f.Name(), nil
}

func (r *Resolver) fetchHTTP(ctx context.Context, ref string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", ref, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", ref, err)
	}
	return nil
}

func (r *Resolver) fetchS3(ctx context.Context, bucket, key string, w io.WriterAt) error {
	d, err := r.downloader(ctx)
	if err != nil {
		return err
	}
	n, err := d.Download(ctx, w, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("s3 object downloaded")
	return nil
}

func (r *Resolver) downloader(ctx context.Context) (*manager.Downloader, error) {
	r.s3once.Do(func() {
		var opts []func(*awscfg.LoadOptions) error
		if o := r.opts.S3; o.Region != "" {
			opts = append(opts, awscfg.WithRegion(o.Region))
		}
		if o := r.opts.S3; o.AccessKey != "" {
			opts = append(opts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			r.s3err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if r.opts.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(r.opts.S3.Endpoint)
			}
			o.UsePathStyle = r.opts.S3.UsePathStyle
		})
		r.s3 = manager.NewDownloader(client)
	})
	return r.s3, r.s3err
}
