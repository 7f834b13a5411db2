package export

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// Formats
const (
	FormatPNG = "png"
	FormatPDF = "pdf"
)

// ExportError means a report could not be turned into a file. It never invalidates the session.
type ExportError struct {
	Op  string
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s failed: %v", e.Op, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedFormat is returned for formats other than png and pdf
var ErrUnsupportedFormat = errors.New("unsupported export format")

// File is a downloadable export
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileName builds litigation-report-YYYY-MM-DD.<ext>
func FileName(now time.Time, ext string) string {
	return fmt.Sprintf("litigation-report-%s.%s", now.Format("2006-01-02"), ext)
}

// ToImageFile wraps the bitmap as a PNG download
func ToImageFile(b Bitmap, now time.Time) File {
	return File{
		Name:        FileName(now, FormatPNG),
		ContentType: "image/png",
		Data:        b.PNG,
	}
}

// pxToPt converts CSS pixels at 96 dpi into PDF points
const pxToPt = 72.0 / 96.0

// ToPDFFile embeds the bitmap in a single page PDF sized to the bitmap
func ToPDFFile(b Bitmap, now time.Time) (File, error) {
	if b.Width <= 0 || b.Height <= 0 {
		return File{}, &ExportError{Op: "pdf", Err: fmt.Errorf("empty bitmap")}
	}

	w := float64(b.Width) * pxToPt
	h := float64(b.Height) * pxToPt

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(now)
	pdf.SetTitle(Title, true)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("report", opts, bytes.NewReader(b.PNG))
	pdf.ImageOptions("report", 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return File{}, &ExportError{Op: "pdf", Err: err}
	}

	return File{
		Name:        FileName(now, FormatPDF),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	}, nil
}

// Encode produces the file for format from a bitmap
func Encode(format string, b Bitmap, now time.Time) (File, error) {
	switch format {
	case FormatPNG:
		return ToImageFile(b, now), nil
	case FormatPDF:
		return ToPDFFile(b, now)
	}
	return File{}, &ExportError{Op: "encode", Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)}
}
