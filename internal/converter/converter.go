// Package converter turns DOCX documents into PDFs by driving one of two
// external engines: a headless LibreOffice child process, or Word COM
// automation when running on Windows with Word installed.
package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	u "docx2pdf/internal/utils"
)

// Errors returned by Backend.Convert.
var (
	// ErrInputNotFound is returned when the input file does not exist.
	ErrInputNotFound = errors.New("input file not found")

	// ErrTimeout is returned when the engine exceeds its wall-clock budget.
	ErrTimeout = errors.New("conversion timed out")

	// ErrEngineFailed is returned when the engine exits non-zero or the
	// automation call raises. The engine's diagnostic text is wrapped in.
	ErrEngineFailed = errors.New("conversion engine failed")

	// ErrNoOutput is returned when the engine reports success but no PDF
	// exists at the expected location.
	ErrNoOutput = errors.New("conversion produced no output")
)

// Backend converts a single document at inputPath into a PDF at outputPath.
// A Backend is chosen once at process start and is safe for concurrent use.
type Backend interface {
	Name() string
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// Detect probes host capability once and returns the backend to use for the
// lifetime of the process. cfg.Convert.Backend forces a specific engine;
// "auto" picks Word automation where it is available and LibreOffice
// everywhere else.
func Detect(cfg u.Config) (Backend, error) {
	timeout := time.Duration(cfg.Convert.TimeoutSecs) * time.Second

	switch cfg.Convert.Backend {
	case "libreoffice":
		return NewLibreOffice(cfg.Convert.LibreOfficePath, timeout), nil
	case "word":
		b := newWordBackend()
		if b == nil {
			return nil, fmt.Errorf("word backend requested but not available on this platform")
		}
		return b, nil
	case "auto", "":
		if b := newWordBackend(); b != nil {
			return b, nil
		}
		return NewLibreOffice(cfg.Convert.LibreOfficePath, timeout), nil
	default:
		return nil, fmt.Errorf("unknown convert backend %q", cfg.Convert.Backend)
	}
}
