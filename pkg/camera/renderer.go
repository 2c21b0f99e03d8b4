package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// renderDelay self-limits the preview rate; duplicate frames are fine.
	renderDelay = 10 * time.Millisecond

	// idleDelay is the poll interval while streaming is disabled or the
	// buffer is still empty.
	idleDelay = 100 * time.Millisecond

	placeholderText = "Initializing..."
)

// Renderer turns the latest buffered frame into an encoded JPEG for the
// preview transport. It never blocks on the device: a stalled acquisition
// loop only degrades smoothness.
type Renderer struct {
	buf     *RingBuffer
	width   int
	height  int
	quality int

	mu         sync.Mutex
	streaming  bool
	zoomFactor float64
	zoomCX     float64
	zoomCY     float64
	maxZoom    float64
}

// NewRenderer creates a preview renderer producing width×height JPEG
// frames at the given quality. maxZoom is the factor applied by
// SetZoomPoint.
func NewRenderer(buf *RingBuffer, width, height, quality int, maxZoom float64) *Renderer {
	if maxZoom < 1.0 {
		maxZoom = 2.0
	}
	return &Renderer{
		buf:        buf,
		width:      width,
		height:     height,
		quality:    quality,
		streaming:  true,
		zoomFactor: 1.0,
		zoomCX:     0.5,
		zoomCY:     0.5,
		maxZoom:    maxZoom,
	}
}

// SetStreaming enables or disables preview production. While disabled,
// Next polls cooperatively instead of returning frames.
func (r *Renderer) SetStreaming(on bool) {
	r.mu.Lock()
	r.streaming = on
	r.mu.Unlock()
}

// Streaming reports whether preview production is enabled.
func (r *Renderer) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streaming
}

// SetZoomPoint zooms at the configured factor centered on the fractional
// coordinate (x, y). Last write wins; there is no command queue.
func (r *Renderer) SetZoomPoint(x, y float64) {
	r.mu.Lock()
	r.zoomFactor = r.maxZoom
	r.zoomCX = clamp01(x)
	r.zoomCY = clamp01(y)
	r.mu.Unlock()
}

// ResetZoom restores factor 1.0 centered at (0.5, 0.5).
func (r *Renderer) ResetZoom() {
	r.mu.Lock()
	r.zoomFactor = 1.0
	r.zoomCX = 0.5
	r.zoomCY = 0.5
	r.mu.Unlock()
}

// Zoom returns the current zoom factor and fractional center.
func (r *Renderer) Zoom() (factor, x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoomFactor, r.zoomCX, r.zoomCY
}

// Next produces the next encoded preview frame. It blocks while streaming
// is disabled, synthesizes a placeholder while the buffer is empty, and
// paces itself with a short delay so the render rate may exceed the true
// acquisition rate.
func (r *Renderer) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.Streaming() {
			if err := sleepCtx(ctx, idleDelay); err != nil {
				return nil, err
			}
			continue
		}

		frame := r.buf.Latest()
		if frame == nil {
			data, err := r.placeholder()
			if err != nil {
				return nil, err
			}
			if err := sleepCtx(ctx, idleDelay); err != nil {
				return nil, err
			}
			return data, nil
		}

		data, err := r.render(frame)
		frame.Close()
		if err != nil {
			return nil, err
		}
		if err := sleepCtx(ctx, renderDelay); err != nil {
			return nil, err
		}
		return data, nil
	}
}

func (r *Renderer) render(frame *Frame) ([]byte, error) {
	factor, cx, cy := r.Zoom()
	if factor <= 1.0 {
		return encodeJPEG(frame.Mat, r.quality)
	}

	rect := zoomRect(frame.Width, frame.Height, factor, cx, cy)
	crop := frame.Mat.Region(rect)
	defer crop.Close()

	zoomed := gocv.NewMat()
	defer zoomed.Close()
	gocv.Resize(crop, &zoomed, image.Pt(frame.Width, frame.Height), 0, 0, gocv.InterpolationLinear)

	return encodeJPEG(zoomed, r.quality)
}

// placeholder synthesizes a solid frame with status text for the preview
// while no real frame is available yet.
func (r *Renderer) placeholder() ([]byte, error) {
	mat := gocv.NewMatWithSize(r.height, r.width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	org := image.Pt(r.width/3, r.height/2)
	gocv.PutText(&mat, placeholderText, org, gocv.FontHersheySimplex, 1.0,
		color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)

	return encodeJPEG(mat, r.quality)
}

// zoomRect computes the centered crop box for a digital zoom: a box of
// size (w/factor, h/factor) around the fractional center, clamped to the
// image bounds.
func zoomRect(w, h int, factor, cx, cy float64) image.Rectangle {
	boxW := int(float64(w) / factor)
	boxH := int(float64(h) / factor)

	px := int(clamp01(cx) * float64(w))
	py := int(clamp01(cy) * float64(h))

	x1 := px - boxW/2
	if x1 < 0 {
		x1 = 0
	}
	y1 := py - boxH/2
	if y1 < 0 {
		y1 = 0
	}
	x2 := x1 + boxW
	if x2 > w {
		x2 = w
		x1 = w - boxW
	}
	y2 := y1 + boxH
	if y2 > h {
		y2 = h
		y1 = h - boxH
	}
	return image.Rect(x1, y1, x2, y2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// encodeJPEG encodes a Mat as JPEG at the given quality. The returned
// slice is an independent copy.
func encodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
