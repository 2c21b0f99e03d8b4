package decode

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/labelscan/go-labelscan/internal/log"
)

// ErrUnreadable is returned when the image file cannot be loaded.
var ErrUnreadable = errors.New("decode: unreadable image")

// Options tunes segmentation and decode behavior. Zero values are
// replaced with defaults by New.
type Options struct {
	WhiteThreshold int     // segmentation binarize cutoff
	MinContourArea int     // smallest label candidate, in pixels
	MaxAreaFrac    float64 // largest candidate as a fraction of the frame
	LabelMargin    int     // crop margin around the label box
	MinWhiteRatio  float64 // reject crops with fewer white pixels
	DebugArtifacts bool    // persist intermediate images
}

func (o Options) withDefaults() Options {
	if o.WhiteThreshold == 0 {
		o.WhiteThreshold = 220
	}
	if o.MinContourArea == 0 {
		o.MinContourArea = 2000
	}
	if o.MaxAreaFrac == 0 {
		o.MaxAreaFrac = 0.3
	}
	if o.LabelMargin == 0 {
		o.LabelMargin = 10
	}
	if o.MinWhiteRatio == 0 {
		o.MinWhiteRatio = 0.3
	}
	return o
}

// Outcome is the result of running the pipeline over one image. A miss
// is a normal outcome, not an error: Found is false and Payload empty.
type Outcome struct {
	Found   bool
	Payload string
	Attempt Attempt // the matrix cell that decoded, when Found
	Region  *Region // segmented label, when segmentation ran and succeeded
	Cropped bool    // payload came from the cropped region sweep
}

// ArtifactSaver persists a debug image under the given file name.
type ArtifactSaver func(name string, data []byte)

// Pipeline runs the two-stage label decode: a full-frame sweep across
// every threshold strategy and quarter rotation, then segmentation plus
// an adaptive-only sweep on the cropped label.
type Pipeline struct {
	dec  Decoder
	opts Options

	saveArtifact ArtifactSaver

	// OnAttempt, when set, observes every decode attempt in matrix
	// order. Used for diagnostics.
	OnAttempt func(Attempt)
}

// New builds a pipeline around the given decoder.
func New(dec Decoder, opts Options) *Pipeline {
	return &Pipeline{dec: dec, opts: opts.withDefaults()}
}

// SetArtifactSaver installs the sink for debug artifacts. Artifacts are
// only produced when Options.DebugArtifacts is set.
func (p *Pipeline) SetArtifactSaver(fn ArtifactSaver) {
	p.saveArtifact = fn
}

// Run loads the image at path and decodes it. The file's base name
// (without extension) tags any debug artifacts.
func (p *Pipeline) Run(path string) (Outcome, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnreadable, path)
	}
	defer img.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return p.RunMat(img, base)
}

// RunMat decodes an in-memory image. base tags debug artifacts.
func (p *Pipeline) RunMat(img gocv.Mat, base string) (Outcome, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	// Stage 1: full frame, raw then lightly preprocessed.
	if out, ok := p.sweep(gray, directStrategies); ok {
		return out, nil
	}
	pre := preprocess(gray)
	hit, ok := p.sweep(pre, directStrategies)
	pre.Close()
	if ok {
		return hit, nil
	}

	// Stage 2: segment the label and retry on the crop alone.
	region, ok := findLabelRegion(gray, p.opts)
	if !ok {
		log.Debug("no label region segmented", "image", base)
		return Outcome{}, nil
	}

	view := gray.Region(region.Rect)
	crop := view.Clone()
	view.Close()
	defer crop.Close()
	p.debugArtifact(base+"_label_debug.jpg", crop)

	out, ok := p.sweep(crop, croppedStrategies)
	out.Region = &region
	if ok {
		out.Cropped = true
		return out, nil
	}
	log.Debug("label region decoded nothing", "image", base,
		"white_ratio", region.WhiteRatio, "score", region.Score)
	return out, nil
}

// sweep tries every strategy × rotation cell in priority order and stops
// at the first decode.
func (p *Pipeline) sweep(gray gocv.Mat, strategies []Strategy) (Outcome, bool) {
	for _, s := range strategies {
		bin := binarize(s, gray)
		for _, r := range rotations {
			att := Attempt{Strategy: s, Rotation: r}
			if p.OnAttempt != nil {
				p.OnAttempt(att)
			}

			rotated := rotateExact(bin, r)
			payload, err := p.dec.Decode(rotated)
			rotated.Close()
			if err == nil {
				bin.Close()
				return Outcome{Found: true, Payload: payload, Attempt: att}, true
			}
			if !errors.Is(err, ErrNoCode) {
				log.Debug("decode attempt failed", "attempt", att.String(), "err", err)
			}
		}
		bin.Close()
	}
	return Outcome{}, false
}

// preprocess equalizes contrast and applies a mild unsharp mask, which
// recovers low-contrast prints without distorting module geometry.
func preprocess(gray gocv.Mat) gocv.Mat {
	eq := gocv.NewMat()
	gocv.EqualizeHist(gray, &eq)

	blur := gocv.NewMat()
	gocv.GaussianBlur(eq, &blur, image.Pt(0, 0), 3, 3, gocv.BorderDefault)

	sharp := gocv.NewMat()
	gocv.AddWeighted(eq, 1.5, blur, -0.5, 0, &sharp)
	eq.Close()
	blur.Close()
	return sharp
}

func (p *Pipeline) debugArtifact(name string, mat gocv.Mat) {
	if !p.opts.DebugArtifacts || p.saveArtifact == nil {
		return
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		log.Warn("could not encode debug artifact", "name", name, "err", err)
		return
	}
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	buf.Close()
	p.saveArtifact(name, data)
}
