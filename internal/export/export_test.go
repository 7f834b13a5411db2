package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/litmatrix/internal/models"
)

var fixedNow = time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		EvidenceList: []models.EvidenceAssessment{
			{Name: "Bank transfer receipt", ProvedFact: "¥50,000 was paid", Reliability: models.ReliabilityHigh},
			{Name: "WeChat chat log", ProvedFact: "borrower promised repayment", Reliability: models.ReliabilityMedium},
		},
		Strategy:      "File for repayment under the loan contract",
		KeyPoints:     []string{"Whether a loan relationship existed"},
		Reinforcement: []models.ReinforcementPoint{{Gap: "No written IOU", Suggestion: "Notarize the chat log"}},
		Risks:         []models.LitigationRisk{{RiskPoint: "Gift defence", Description: "Defendant may claim a gift", Mitigation: "Show repayment requests"}},
		Confrontation: []models.Confrontation{{OpponentArgument: "It was a gift", CounterStrategy: "Repayment promise in chat"}},
		Statutes:      []models.Statute{{Name: "Civil Code Art. 667", Content: "A loan contract is..."}},
		CaseLaw:       []models.CaseReference{{Title: "Zhang v. Li", Court: "Pudong Court", Year: "2021", Summary: "Transfer plus chat suffices"}},
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 37, G: 99, B: 235, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMarkdownSections(t *testing.T) {
	md := Markdown(sampleResult(), fixedNow)

	assert.True(t, strings.HasPrefix(md, "# "+Title))
	assert.Contains(t, md, "Generated: 2024-05-01 14:30")
	assert.Contains(t, md, "- **[Strong] Bank transfer receipt**: ¥50,000 was paid")
	assert.Contains(t, md, "- **[Needs reinforcement] WeChat chat log**")
	assert.Contains(t, md, "- **Gap**: No written IOU\n  * **Suggestion**: Notarize the chat log")
	assert.Contains(t, md, "  * **Mitigation**: Show repayment requests")
	assert.Contains(t, md, "- **Zhang v. Li** (Pudong Court, 2021)")
	assert.Contains(t, md, "Civil Code Art. 667")

	order := []string{"## 1.", "## 2.", "## 3.", "## 6."}
	last := -1
	for _, h := range order {
		i := strings.Index(md, h)
		require.Greater(t, i, last, "section %s out of order", h)
		last = i
	}
}

func TestMarkdownEmptyResult(t *testing.T) {
	md := Markdown(&models.AnalysisResult{}, fixedNow)
	assert.Contains(t, md, "## 1. Evidence and Fact Matrix")
	assert.NotContains(t, md, "## Strategy")
	assert.NotContains(t, md, "## 5. Statutes")
}

func TestRenderRegionSanitizes(t *testing.T) {
	r := sampleResult()
	r.Strategy = `Settle <script>alert("x")</script> early`

	region, err := RenderRegion(r, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, ReportSelector, region.Selector)
	assert.Contains(t, region.HTML, `<div id="report">`)
	assert.Contains(t, region.HTML, "<h1")
	assert.Contains(t, region.HTML, "<strong>[Strong] Bank transfer receipt</strong>")
	assert.NotContains(t, region.HTML, "<script>")
}

func TestNewBitmap(t *testing.T) {
	b, err := NewBitmap(testPNG(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, 40, b.Width)
	assert.Equal(t, 30, b.Height)

	_, err = NewBitmap([]byte("not a png"))
	var exportErr *ExportError
	assert.ErrorAs(t, err, &exportErr)
}

func TestFileNames(t *testing.T) {
	b, err := NewBitmap(testPNG(t, 8, 8))
	require.NoError(t, err)

	img := ToImageFile(b, fixedNow)
	assert.Equal(t, "litigation-report-2024-05-01.png", img.Name)
	assert.Equal(t, "image/png", img.ContentType)

	pdf, err := ToPDFFile(b, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "litigation-report-2024-05-01.pdf", pdf.Name)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, bytes.HasPrefix(pdf.Data, []byte("%PDF-")))
}

func TestToPDFFileRejectsEmptyBitmap(t *testing.T) {
	_, err := ToPDFFile(Bitmap{}, fixedNow)
	var exportErr *ExportError
	assert.ErrorAs(t, err, &exportErr)
}

type fakeRasterizer struct {
	bitmap Bitmap
	err    error
	region Region
}

func (f *fakeRasterizer) Rasterize(_ context.Context, region Region) (Bitmap, error) {
	f.region = region
	return f.bitmap, f.err
}

func TestExporter(t *testing.T) {
	b, err := NewBitmap(testPNG(t, 16, 24))
	require.NoError(t, err)

	raster := &fakeRasterizer{bitmap: b}
	e := NewExporter(raster, nil)
	e.now = func() time.Time { return fixedNow }

	file, err := e.Export(context.Background(), sampleResult(), FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "litigation-report-2024-05-01.pdf", file.Name)
	assert.Equal(t, ReportSelector, raster.region.Selector)

	file, err = e.Export(context.Background(), sampleResult(), FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, b.PNG, file.Data)
}

func TestExporterErrors(t *testing.T) {
	e := NewExporter(&fakeRasterizer{err: errors.New("chrome crashed")}, nil)

	_, err := e.Export(context.Background(), nil, FormatPNG)
	assert.ErrorIs(t, err, ErrNoReport)

	_, err = e.Export(context.Background(), sampleResult(), "docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = e.Export(context.Background(), sampleResult(), FormatPNG)
	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "rasterize", exportErr.Op)
}

func TestRodRasterizer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if !ChromeAvailable() {
		t.Skip("chrome not available")
	}

	region, err := RenderRegion(sampleResult(), fixedNow)
	require.NoError(t, err)

	r := &RodRasterizer{Width: 900, Timeout: time.Minute}
	bitmap, err := r.Rasterize(context.Background(), region)
	require.NoError(t, err)
	assert.Greater(t, bitmap.Width, 0)
	assert.Greater(t, bitmap.Height, 0)
}
