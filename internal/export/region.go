package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/zombar/litmatrix/internal/models"
)

// ReportSelector locates the report region inside a rendered page
const ReportSelector = "#report"

// Region is a standalone HTML page whose report lives under ReportSelector
type Region struct {
	HTML     string
	Selector string
}

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #f8fafc; font-family: -apple-system, "Segoe UI", "PingFang SC", "Noto Sans CJK SC", sans-serif; }
#report { width: 800px; padding: 40px; background: #ffffff; color: #0f172a; line-height: 1.6; box-sizing: border-box; }
#report h1 { font-size: 24px; border-bottom: 2px solid #2563eb; padding-bottom: 8px; }
#report h2 { font-size: 18px; color: #1e3a8a; margin-top: 24px; }
#report li { margin: 4px 0; }
</style>
</head>
<body>
<div id="report">{{.Body}}</div>
</body>
</html>`))

// RenderRegion converts the report into a sanitized standalone HTML page
func RenderRegion(r *models.AnalysisResult, generatedAt time.Time) (Region, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(r, generatedAt)), &body); err != nil {
		return Region{}, &ExportError{Op: "render", Err: fmt.Errorf("failed to convert markdown: %w", err)}
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: Title,
		Body:  template.HTML(policy.SanitizeBytes(body.Bytes())),
	})
	if err != nil {
		return Region{}, &ExportError{Op: "render", Err: fmt.Errorf("failed to build page: %w", err)}
	}

	return Region{HTML: page.String(), Selector: ReportSelector}, nil
}
