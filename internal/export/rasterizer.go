package export

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Bitmap is a rasterized report region
type Bitmap struct {
	PNG    []byte
	Width  int
	Height int
}

// Rasterizer turns a rendered region into a bitmap
type Rasterizer interface {
	Rasterize(ctx context.Context, region Region) (Bitmap, error)
}

// RodRasterizer screenshots the region in headless Chrome.
// With ControlURL set it attaches to a running browser; otherwise it launches one per call.
type RodRasterizer struct {
	ControlURL string
	Bin        string
	Width      int
	Timeout    time.Duration
}

// ChromeAvailable reports whether a local Chrome binary can be found
func ChromeAvailable() bool {
	_, ok := launcher.LookPath()
	return ok
}

// Rasterize renders region.HTML and captures the element matching region.Selector as PNG
func (r *RodRasterizer) Rasterize(ctx context.Context, region Region) (Bitmap, error) {
	width := r.Width
	if width == 0 {
		width = 900
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controlURL := r.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if r.Bin != "" {
			l = l.Bin(r.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to launch chrome: %w", err)}
		}
		defer func() {
			l.Kill()
			l.Cleanup()
		}()
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to connect to chrome: %w", err)}
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to open page: %w", err)}
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            1200,
		DeviceScaleFactor: 2,
	}); err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to set viewport: %w", err)}
	}

	if err := page.SetDocumentContent(region.HTML); err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to load report: %w", err)}
	}
	if err := page.WaitLoad(); err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to wait for load: %w", err)}
	}

	el, err := page.Element(region.Selector)
	if err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("report region %s not found: %w", region.Selector, err)}
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("failed to capture report: %w", err)}
	}

	bitmap, err := NewBitmap(data)
	if err != nil {
		return Bitmap{}, err
	}

	slog.Default().With("component", "export").DebugContext(ctx, "report rasterized",
		"width", bitmap.Width,
		"height", bitmap.Height,
		"bytes", len(data),
	)
	return bitmap, nil
}

// NewBitmap wraps PNG bytes, reading the dimensions from the header
func NewBitmap(data []byte) (Bitmap, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("invalid PNG: %w", err)}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Bitmap{}, &ExportError{Op: "rasterize", Err: fmt.Errorf("empty bitmap")}
	}
	return Bitmap{PNG: data, Width: cfg.Width, Height: cfg.Height}, nil
}
