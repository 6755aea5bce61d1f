package docsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultConvertTimeout bounds one office conversion.
const DefaultConvertTimeout = 180 * time.Second

// Converter turns office documents into PDF with a headless LibreOffice.
type Converter struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
}

// NewConverter returns a converter running binary (default "libreoffice")
// with at most maxWorkers conversions at a time.
func NewConverter(binary string, maxWorkers int, timeout time.Duration) *Converter {
	if binary == "" {
		binary = "libreoffice"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}
	return &Converter{binary: binary, timeout: timeout, semaphore: make(chan struct{}, maxWorkers)}
}

// Check verifies the binary is installed.
func (c *Converter) Check(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, c.binary, "--version").Output()
	if err != nil {
		return fmt.Errorf("%s not available: %w", c.binary, err)
	}
	log.Info().Str("version", strings.TrimSpace(string(out))).Msg("LibreOffice found")
	return nil
}

// Convert writes a PDF rendition of input into outDir and returns its path.
func (c *Converter) Convert(ctx context.Context, input, outDir string) (string, error) {
	select {
	case c.semaphore <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.semaphore }()

	start := time.Now()
	if err := validateInput(input); err != nil {
		return "", fmt.Errorf("input validation failed: %w", err)
	}

	// one profile per run
	profileDir := filepath.Join(os.TempDir(), "libreoffice_profile_"+uuid.NewString())
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return "", fmt.Errorf("create profile directory: %w", err)
	}
	defer os.RemoveAll(profileDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, c.binary,
		"-env:UserInstallation=file://"+profileDir,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		input,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("conversion timeout after %v", c.timeout)
		}
		lower := strings.ToLower(string(out))
		if strings.Contains(lower, "password") || strings.Contains(lower, "encrypted") {
			return "", fmt.Errorf("document is password protected: %w", err)
		}
		return "", fmt.Errorf("conversion failed: %w", err)
	}

	output := expectedOutputPath(input, outDir)
	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("output file not created: %w", err)
	}
	log.Info().Str("input", input).Str("output", output).Dur("duration", time.Since(start)).Msg("conversion successful")
	return output, nil
}

func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

// expectedOutputPath is where LibreOffice writes the PDF for inputPath.
func expectedOutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
}
