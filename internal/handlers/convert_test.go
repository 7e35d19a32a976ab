package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"docx2pdf/internal/converter"
	u "docx2pdf/internal/utils"
)

// fakeBackend implements converter.Backend for tests. It writes a canned PDF
// to outputPath, or fails with a configured error.
type fakeBackend struct {
	err   error
	calls int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Convert(ctx context.Context, inputPath, outputPath string) error {
	f.calls++
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("%w: %s", converter.ErrInputNotFound, inputPath)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("%PDF-1.4 converted by fake backend"), 0o644)
}

func testConvertCfg(t *testing.T) u.Config {
	t.Helper()
	cfg := u.DefaultConfig()
	cfg.Convert.TempDir = t.TempDir()
	cfg.Cache.PDFCacheEnabled = false
	return cfg
}

// newTestApp wires the service routes with the same flat JSON error handler
// the real app uses.
func newTestApp(svc *ConvertService) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})
	app.Get("/", svc.HandleIndex)
	app.Get("/health", svc.HandleHealth)
	app.Post("/convert", svc.HandleFormConversion)
	app.Post("/api/convert", svc.HandleAPIConversion)
	return app
}

func multipartUpload(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest("POST", target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestAPIConvert_Success(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	resp, err := app.Test(multipartUpload(t, "/api/convert", "Report.DOCX", []byte("docx bytes")))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=Report.pdf" {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if body := readBody(t, resp); !strings.HasPrefix(body, "%PDF") {
		t.Fatalf("expected PDF payload, got %q", body)
	}
}

func TestAPIConvert_NoFileProvided(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	req := httptest.NewRequest("POST", "/api/convert", strings.NewReader(""))
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); body != `{"error":"No file provided"}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestAPIConvert_InvalidExtension(t *testing.T) {
	cfg := testConvertCfg(t)
	backend := &fakeBackend{}
	svc := NewConvertService(cfg, nil, backend)
	app := newTestApp(svc)

	resp, _ := app.Test(multipartUpload(t, "/api/convert", "notes.txt", []byte("plain text")))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Invalid file type") {
		t.Fatalf("expected invalid file type message, got %q", body)
	}

	// Validation short-circuits before anything is staged or converted.
	if backend.calls != 0 {
		t.Fatalf("backend should not have been invoked")
	}
	entries, err := os.ReadDir(cfg.Convert.TempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no staged files, found %d", len(entries))
	}
}

func TestAPIConvert_EmptyFilename(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	resp, _ := app.Test(multipartUpload(t, "/api/convert", "..", []byte("x")))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "No file selected") {
		t.Fatalf("expected no-file-selected message, got %q", body)
	}
}

func TestHealth(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, `"status":"healthy"`) {
		t.Fatalf("unexpected health body %q", body)
	}
}

func TestTempArtifactsCleanedUp(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		status  int
	}{
		{"success", &fakeBackend{}, fiber.StatusOK},
		{"engine failure", &fakeBackend{err: fmt.Errorf("%w: exit 77", converter.ErrEngineFailed)}, fiber.StatusInternalServerError},
		{"timeout", &fakeBackend{err: fmt.Errorf("%w after 120s", converter.ErrTimeout)}, fiber.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConvertCfg(t)
			svc := NewConvertService(cfg, nil, tc.backend)
			app := newTestApp(svc)

			resp, err := app.Test(multipartUpload(t, "/api/convert", "doc.docx", []byte("docx bytes")))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}

			entries, err := os.ReadDir(cfg.Convert.TempDir)
			if err != nil {
				t.Fatalf("read temp dir: %v", err)
			}
			if len(entries) != 0 {
				t.Fatalf("expected empty temp dir after request, found %d entries", len(entries))
			}
		})
	}
}

func TestTimeoutMapsToServerError(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{err: fmt.Errorf("%w after 100ms", converter.ErrTimeout)})
	app := newTestApp(svc)

	resp, _ := app.Test(multipartUpload(t, "/api/convert", "slow.docx", []byte("docx bytes")))
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "timed out") {
		t.Fatalf("expected timeout message, got %q", body)
	}
}

func TestFormConvert_FailureRedirectsWithFlash(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	resp, _ := app.Test(multipartUpload(t, "/convert", "notes.txt", []byte("plain text")))
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("expected 303 redirect, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "/?flash=") || !strings.Contains(loc, "Invalid+file+type") {
		t.Fatalf("unexpected redirect location %q", loc)
	}
}

func TestFormConvert_Success(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	resp, err := app.Test(multipartUpload(t, "/convert", "letter.docx", []byte("docx bytes")))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=letter.pdf" {
		t.Fatalf("unexpected content disposition %q", cd)
	}
}

func TestSequentialConversionsBothSucceed(t *testing.T) {
	cfg := testConvertCfg(t)
	backend := &fakeBackend{}
	svc := NewConvertService(cfg, nil, backend)
	app := newTestApp(svc)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(multipartUpload(t, "/api/convert", "repeat.docx", []byte("same bytes")))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	if backend.calls != 2 {
		t.Fatalf("expected 2 backend invocations without cache, got %d", backend.calls)
	}
}

func TestCacheHitSkipsBackend(t *testing.T) {
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mrs.Close()

	cfg := testConvertCfg(t)
	cfg.Cache.PDFCacheEnabled = true
	cfg.Cache.PDFCacheTTL = time.Minute

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	backend := &fakeBackend{}
	svc := NewConvertService(cfg, rdb, backend)
	app := newTestApp(svc)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(multipartUpload(t, "/api/convert", "cached.docx", []byte("identical document")))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	if backend.calls != 1 {
		t.Fatalf("expected second request to hit the cache, backend called %d times", backend.calls)
	}
}

func TestIndexRendersFormAndFlash(t *testing.T) {
	cfg := testConvertCfg(t)
	svc := NewConvertService(cfg, nil, &fakeBackend{})
	app := newTestApp(svc)

	resp, _ := app.Test(httptest.NewRequest("GET", "/", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `action="/convert"`) {
		t.Fatalf("expected upload form in page")
	}

	resp2, _ := app.Test(httptest.NewRequest("GET", "/?flash=Conversion+failed", nil))
	if body2 := readBody(t, resp2); !strings.Contains(body2, "Conversion failed") {
		t.Fatalf("expected flash message rendered")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Report.DOCX", "Report.DOCX"},
		{"../../etc/passwd.docx", "passwd.docx"},
		{`..\..\win\path.docx`, "path.docx"},
		{"my report (final).docx", "my_report_final_.docx"},
		{"..", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
