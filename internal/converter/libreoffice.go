package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	u "docx2pdf/internal/utils"
)

// LibreOffice converts documents by spawning soffice in headless mode.
type LibreOffice struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewLibreOffice returns a LibreOffice backend. An empty binaryPath falls
// back to the LIBREOFFICE_PATH env var and then to "libreoffice" on PATH.
func NewLibreOffice(binaryPath string, timeout time.Duration) *LibreOffice {
	if binaryPath == "" {
		binaryPath = os.Getenv("LIBREOFFICE_PATH")
	}
	if binaryPath == "" {
		binaryPath = "libreoffice"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LibreOffice{BinaryPath: binaryPath, Timeout: timeout}
}

// Name implements Backend.
func (lo *LibreOffice) Name() string { return "libreoffice" }

// Convert implements Backend. LibreOffice always names its output after the
// input stem, so when that differs from the requested outputPath the
// produced file is moved into place.
func (lo *LibreOffice) Convert(ctx context.Context, inputPath, outputPath string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}

	outDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, lo.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		lo.BinaryPath,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)
	// Isolated profile per run; concurrent conversions otherwise fight over
	// the shared profile lock.
	cmd.Env = append(os.Environ(),
		"HOME="+outDir,
		"UserInstallation=file://"+outDir+"/.lo-profile",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, lo.Timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrEngineFailed, msg)
	}

	base := filepath.Base(inputPath)
	produced := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")

	if produced != outputPath {
		if err := os.Rename(produced, outputPath); err != nil {
			return fmt.Errorf("%w: expected %s", ErrNoOutput, produced)
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrNoOutput, outputPath)
	}

	u.Info("Conversion finished", "backend", lo.Name(), "output", outputPath, "bytes", info.Size())
	return nil
}
