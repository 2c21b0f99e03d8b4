package capture

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/labelscan/go-labelscan/pkg/camera"
)

// postProcess applies the profile's optional enhancement chain and
// returns a new Mat the caller must Close. When no steps are enabled it
// returns a plain clone.
func postProcess(src gocv.Mat, p camera.Profile) gocv.Mat {
	out := src.Clone()

	if p.Denoise {
		denoised := gocv.NewMat()
		gocv.FastNlMeansDenoisingColored(out, &denoised)
		out.Close()
		out = denoised
	}

	if p.Contrast {
		stretched := gocv.NewMat()
		// Mild linear stretch; label prints sit near the top of the range
		// so a small gain is enough to separate modules from substrate.
		out.ConvertToWithParams(&stretched, gocv.MatTypeCV8UC3, 1.25, -20)
		out.Close()
		out = stretched
	}

	if p.Sharpen {
		blur := gocv.NewMat()
		gocv.GaussianBlur(out, &blur, image.Pt(0, 0), 3, 3, gocv.BorderDefault)
		sharp := gocv.NewMat()
		gocv.AddWeighted(out, 1.5, blur, -0.5, 0, &sharp)
		blur.Close()
		out.Close()
		out = sharp
	}

	return out
}
