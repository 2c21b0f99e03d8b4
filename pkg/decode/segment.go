package decode

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// whitePixelCutoff is the brightness above which a pixel counts toward
// the region whiteness ratio. Slightly below the segmentation threshold
// so anti-aliased label edges still count.
const whitePixelCutoff = 200

// Region is a candidate label found by segmentation.
type Region struct {
	Rect       image.Rectangle
	Vertices   int
	Score      float64
	WhiteRatio float64
}

// findLabelRegion segments the brightest rectangular blob in a grayscale
// image. It binarizes at the white threshold, cleans speckle with a
// close/open pass, and ranks external contours by area, rectangularity
// and compactness. Returns false when no candidate survives the filters
// or the winner is not white enough to be a printed label.
func findLabelRegion(gray gocv.Mat, opts Options) (Region, bool) {
	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, float32(opts.WhiteThreshold), 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	gocv.MorphologyEx(bin, &bin, gocv.MorphClose, kernel)
	gocv.MorphologyEx(bin, &bin, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	imageArea := float64(gray.Cols() * gray.Rows())
	maxArea := opts.MaxAreaFrac * imageArea

	var best Region
	found := false
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		area := gocv.ContourArea(contour)
		if area < float64(opts.MinContourArea) || area > maxArea {
			continue
		}

		perimeter := gocv.ArcLength(contour, true)
		if perimeter <= 0 {
			continue
		}
		approx := gocv.ApproxPolyDP(contour, 0.02*perimeter, true)
		vertices := approx.Size()
		approx.Close()
		if vertices < 4 || vertices > 8 {
			continue
		}

		rect := gocv.BoundingRect(contour)
		w, h := float64(rect.Dx()), float64(rect.Dy())
		if w <= 0 || h <= 0 {
			continue
		}
		aspect := math.Max(w, h) / math.Min(w, h)
		if aspect > 4 {
			continue
		}

		compactness := 4 * math.Pi * area / (perimeter * perimeter)
		score := area * (2 - math.Abs(float64(vertices)/4-1)) * compactness
		if !found || score > best.Score {
			best = Region{Rect: rect, Vertices: vertices, Score: score}
			found = true
		}
	}
	if !found {
		return Region{}, false
	}

	best.Rect = expandRect(best.Rect, opts.LabelMargin, gray.Cols(), gray.Rows())
	best.WhiteRatio = whiteRatio(gray, best.Rect)
	if best.WhiteRatio < opts.MinWhiteRatio {
		return Region{}, false
	}
	return best, true
}

// expandRect grows the box by a margin capped at a tenth of each side,
// clamped to the image bounds.
func expandRect(r image.Rectangle, margin, cols, rows int) image.Rectangle {
	m := margin
	if tenth := r.Dx() / 10; tenth < m {
		m = tenth
	}
	if tenth := r.Dy() / 10; tenth < m {
		m = tenth
	}
	out := image.Rect(r.Min.X-m, r.Min.Y-m, r.Max.X+m, r.Max.Y+m)
	return out.Intersect(image.Rect(0, 0, cols, rows))
}

// whiteRatio is the fraction of pixels in the region brighter than the
// white-pixel cutoff.
func whiteRatio(gray gocv.Mat, rect image.Rectangle) float64 {
	crop := gray.Region(rect)
	defer crop.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(crop, &bin, whitePixelCutoff, 255, gocv.ThresholdBinary)

	total := rect.Dx() * rect.Dy()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(bin)) / float64(total)
}
