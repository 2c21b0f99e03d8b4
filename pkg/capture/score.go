// Package capture orchestrates still captures: it pauses the preview
// pipeline, reconfigures the device for a capture profile, takes and
// scores the shots, post-processes the winner and persists it, then
// restores streaming no matter what went wrong along the way.
package capture

import (
	"gocv.io/x/gocv"
)

// Scorer rates frame quality. Higher is better. Multi-shot and
// bracketed profiles keep the highest-scored frame.
type Scorer func(mat gocv.Mat) float64

// Weights for the quality score. Sharpness dominates because blur is
// what actually kills matrix decoding; contrast only breaks ties.
const (
	sharpnessWeight = 0.7
	contrastWeight  = 0.3
)

// QualityScore combines focus sharpness (variance of the Laplacian)
// with global contrast (grayscale standard deviation).
func QualityScore(mat gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	if mat.Channels() > 1 {
		gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	} else {
		mat.CopyTo(&gray)
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 3, 1, 0, gocv.BorderDefault)

	lapMean := gocv.NewMat()
	lapStd := gocv.NewMat()
	gocv.MeanStdDev(lap, &lapMean, &lapStd)
	sharpness := lapStd.GetDoubleAt(0, 0)
	sharpness *= sharpness
	lapMean.Close()
	lapStd.Close()

	grayMean := gocv.NewMat()
	grayStd := gocv.NewMat()
	gocv.MeanStdDev(gray, &grayMean, &grayStd)
	contrast := grayStd.GetDoubleAt(0, 0)
	grayMean.Close()
	grayStd.Close()

	return sharpnessWeight*sharpness + contrastWeight*contrast
}
