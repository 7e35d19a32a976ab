package handlers

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"
)

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>DOCX to PDF Converter</title>
  <style>
    body { font-family: sans-serif; max-width: 40rem; margin: 4rem auto; padding: 0 1rem; }
    .flash { background: #fdecea; border: 1px solid #f5c6cb; padding: .75rem 1rem; border-radius: 4px; margin-bottom: 1.5rem; }
    form { border: 2px dashed #ccc; border-radius: 8px; padding: 2rem; text-align: center; }
    button { margin-top: 1rem; padding: .5rem 1.5rem; }
  </style>
</head>
<body>
  <h1>DOCX to PDF Converter</h1>
  {{if .Flash}}<div class="flash">{{.Flash}}</div>{{end}}
  <form action="/convert" method="post" enctype="multipart/form-data">
    <p>Select a .docx file to convert</p>
    <input type="file" name="file" accept=".docx" required>
    <br>
    <button type="submit">Convert to PDF</button>
  </form>
</body>
</html>
`))

// HandleIndex renders the upload form. A flash query parameter set by a
// failed interactive conversion is shown once above the form.
func (svc *ConvertService) HandleIndex(c *fiber.Ctx) error {
	var buf bytes.Buffer
	data := struct{ Flash string }{Flash: c.Query("flash")}
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to render page")
	}
	c.Set("Content-Type", fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
