package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"docx2pdf/internal/converter"
	u "docx2pdf/internal/utils"
)

// ConvertService bundles configuration and dependencies for the conversion
// endpoints. One instance is shared by the interactive and API routes.
type ConvertService struct {
	Config  *u.Config
	Redis   *redis.Client
	Backend converter.Backend
}

// NewConvertService creates a new ConvertService instance.
func NewConvertService(cfg u.Config, rdb *redis.Client, backend converter.Backend) *ConvertService {
	return &ConvertService{
		Config:  &cfg,
		Redis:   rdb,
		Backend: backend,
	}
}

// HandleHealth reports process liveness. It deliberately checks nothing
// beyond the process itself.
func (svc *ConvertService) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "docx2pdf",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleAPIConversion serves POST /api/convert. Failures become flat JSON
// errors via the app error handler.
func (svc *ConvertService) HandleAPIConversion(c *fiber.Ctx) error {
	fh, name, err := validateUpload(c)
	if err != nil {
		return err
	}
	return svc.processConversion(c, fh, name)
}

// HandleFormConversion serves POST /convert. Any failure redirects back to
// the upload form carrying a one-shot flash message.
func (svc *ConvertService) HandleFormConversion(c *fiber.Ctx) error {
	fh, name, err := validateUpload(c)
	if err == nil {
		err = svc.processConversion(c, fh, name)
	}
	if err != nil {
		msg := "Error converting file"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			msg = fe.Message
		}
		return c.Redirect("/?flash="+url.QueryEscape(msg), fiber.StatusSeeOther)
	}
	return nil
}

// validateUpload checks the multipart upload before anything touches disk:
// field present, filename non-empty, extension allowed.
func validateUpload(c *fiber.Ctx) (*multipart.FileHeader, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "No file provided")
	}

	name := sanitizeFilename(fh.Filename)
	if name == "" {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "No file selected")
	}

	if !strings.EqualFold(filepath.Ext(name), ".docx") {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "Invalid file type. Please upload a .docx file")
	}

	return fh, name, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// sanitizeFilename strips path components and collapses anything outside a
// conservative character set, so the client-supplied name is safe to join
// into the shared temp directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" || name == "." {
		return ""
	}
	return name
}

// processConversion stages the upload, runs the backend and streams the PDF
// back. Every temp artifact is removed on every exit path.
func (svc *ConvertService) processConversion(c *fiber.Ctx, fh *multipart.FileHeader, name string) error {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	pdfName := stem + ".pdf"

	// Random prefix keeps concurrent uploads of identically-named files from
	// overwriting each other in the shared temp dir.
	prefix := xid.New().String()
	docxPath := filepath.Join(svc.Config.Convert.TempDir, prefix+"_"+name)
	pdfPath := filepath.Join(svc.Config.Convert.TempDir, prefix+"_"+pdfName)

	defer func() {
		removeQuietly(docxPath)
		removeQuietly(pdfPath)
	}()

	if err := c.SaveFile(fh, docxPath); err != nil {
		u.Error("Failed to stage upload", "path", docxPath, "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to save uploaded file")
	}

	cacheKey, keyErr := computeCacheKey(docxPath)
	if keyErr == nil && svc.cacheEnabled() {
		if cached := svc.getCachedPDF(c, cacheKey, pdfName); cached != nil {
			return c.Send(cached)
		}
	}

	// Background context: a client that disconnects mid-conversion does not
	// cancel the engine, which runs to completion or its own deadline.
	if err := svc.Backend.Convert(context.Background(), docxPath, pdfPath); err != nil {
		return convertError(err)
	}

	pdfBuf, err := os.ReadFile(pdfPath)
	if err != nil {
		u.Error("Converted PDF unreadable", "path", pdfPath, "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Converted PDF could not be read")
	}

	if keyErr == nil && svc.cacheEnabled() {
		svc.setCachedPDF(c, cacheKey, pdfBuf)
	}

	requestID := c.Get("X-Request-ID")
	u.Info("PDF generated", "backend", svc.Backend.Name(), "filename", pdfName, "request_id", requestID)

	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", "attachment; filename="+pdfName)
	return c.Send(pdfBuf)
}

// convertError maps dispatcher failures onto HTTP errors. Timeouts and
// engine failures are server-side faults.
func convertError(err error) error {
	switch {
	case errors.Is(err, converter.ErrInputNotFound):
		u.Error("Staged input vanished before conversion", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Uploaded file disappeared before conversion")
	case errors.Is(err, converter.ErrTimeout):
		u.Error("Conversion timed out", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Conversion timed out")
	case errors.Is(err, converter.ErrNoOutput):
		u.Error("Engine reported success but produced no PDF", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Conversion produced no output")
	default:
		u.Error("Conversion failed", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Error converting file: "+err.Error())
	}
}

// removeQuietly deletes a temp artifact. Cleanup failures never surface to
// the caller; they are logged and swallowed.
func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.Warn("Temp cleanup failed", "path", path, "error", err.Error())
	}
}

func (svc *ConvertService) cacheEnabled() bool {
	return svc.Redis != nil && svc.Config.Cache.PDFCacheEnabled
}

// computeCacheKey hashes the staged upload so identical documents hit the
// same cache entry regardless of filename.
func computeCacheKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "pdfcache:" + hex.EncodeToString(h.Sum(nil)), nil
}

// getCachedPDF attempts to serve a previously converted PDF from Redis.
func (svc *ConvertService) getCachedPDF(c *fiber.Ctx, key, filename string) []byte {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := svc.Redis.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err.Error())
		return nil
	}

	u.Info("PDF cache hit", "key", key)
	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return cached
}

// setCachedPDF stores a converted PDF in Redis. Best effort.
func (svc *ConvertService) setCachedPDF(c *fiber.Ctx, key string, data []byte) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	ttl := svc.Config.Cache.PDFCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := svc.Redis.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err.Error())
	}
}
