// Package decode locates a printed label in a captured image and reads
// the matrix code on it, sweeping image transforms until one decodes.
package decode

import (
	"errors"
	"fmt"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"gocv.io/x/gocv"
)

// ErrNoCode is returned by a Decoder when the image contains no readable
// code. The pipeline treats it as a normal miss, not a failure.
var ErrNoCode = errors.New("decode: no code in image")

// Decoder reads a matrix code from a prepared single-channel image.
// Implementations must be safe for sequential reuse.
type Decoder interface {
	Decode(img gocv.Mat) (string, error)
}

// DataMatrixDecoder adapts the gozxing DataMatrix reader.
type DataMatrixDecoder struct {
	reader gozxing.Reader
}

// NewDataMatrixDecoder returns the production decoder.
func NewDataMatrixDecoder() *DataMatrixDecoder {
	return &DataMatrixDecoder{reader: datamatrix.NewDataMatrixReader()}
}

// Decode attempts to read a DataMatrix symbol from the image.
func (d *DataMatrixDecoder) Decode(mat gocv.Mat) (string, error) {
	img, err := mat.ToImage()
	if err != nil {
		return "", fmt.Errorf("convert image: %w", err)
	}

	source := gozxing.NewLuminanceSourceFromImage(img)
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(source))
	if err != nil {
		return "", fmt.Errorf("binarize: %w", err)
	}

	result, err := d.reader.Decode(bmp, nil)
	if err != nil {
		// gozxing reports "not found" through its exception types; any
		// decode failure at this level means this attempt had no code.
		return "", ErrNoCode
	}
	return result.GetText(), nil
}
